//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package scmi

import (
	"context"
	"sort"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/common/fwerr"
	"github.com/mongoose-os/socclk/common/spinlock"
)

// MaxLevels is the number of operating points kept per domain.
const MaxLevels = 16

// maxLevelsPerMsg bounds a DESCRIBE_LEVELS response.
const maxLevelsPerMsg = 8

// Level is an operating performance point.
type Level struct {
	Freq  uint64
	Level uint32
}

// LevelOf maps a frequency to its performance level: the frequency in kHz,
// rounded down. The mapping has no state, so a table rebuilt from the same
// rates always yields the same levels.
func LevelOf(freq uint64) uint32 {
	return uint32(freq / 1000)
}

// PerfDomain is a performance domain backed by a clock whose rate list
// defines the operating points.
type PerfDomain struct {
	Name  string
	Clock clk.Clock
}

type perfDomain struct {
	PerfDomain

	opps     [MaxLevels]Level
	n        int
	min, max uint32
}

// PerfMapper translates between performance levels and clock rates.
// The operating point tables may be read and rebuilt from several cores;
// they are guarded by a spin lock that is never held across a clock
// operation.
type PerfMapper struct {
	agents  *Agents
	lock    spinlock.Lock
	domains []perfDomain
}

func NewPerfMapper(agents *Agents, domains []PerfDomain) *PerfMapper {
	m := &PerfMapper{agents: agents, domains: make([]perfDomain, len(domains))}
	for i, d := range domains {
		m.domains[i].PerfDomain = d
	}
	return m
}

func (m *PerfMapper) Len() int { return len(m.domains) }

func (m *PerfMapper) domain(id uint32) (*perfDomain, error) {
	if id >= uint32(len(m.domains)) {
		return nil, errors.NotFoundf("perf domain %d", id)
	}
	return &m.domains[id], nil
}

// refresh rebuilds the table of d from the clock's rate list. Limits
// outside the new table are clamped into it; an empty or inverted range
// becomes the whole table.
func (m *PerfMapper) refresh(ctx context.Context, d *perfDomain) error {
	rates, err := d.Clock.Rates(ctx)
	if err != nil {
		return errors.Annotatef(err, "perf domain %s", d.Name)
	}
	if len(rates) == 0 {
		return errors.NotFoundf("operating points of %s", d.Name)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	var opps []Level
	for _, r := range rates {
		l := LevelOf(r)
		if len(opps) > 0 && opps[len(opps)-1].Level == l {
			continue
		}
		opps = append(opps, Level{Freq: r, Level: l})
	}
	if len(opps) > MaxLevels {
		glog.Warningf("perf domain %s: %d operating points, keeping the top %d", d.Name, len(opps), MaxLevels)
		opps = opps[len(opps)-MaxLevels:]
	}

	m.lock.Lock()
	d.n = copy(d.opps[:], opps)
	lo, hi := d.opps[0].Level, d.opps[d.n-1].Level
	if d.max == 0 || d.max > hi {
		d.max = hi
	}
	if d.min < lo || d.min > d.max {
		d.min = lo
	}
	m.lock.Unlock()
	return nil
}

// table returns a copy of the table of d, building it on first use.
func (m *PerfMapper) table(ctx context.Context, d *perfDomain) ([]Level, uint32, uint32, error) {
	m.lock.Lock()
	n := d.n
	m.lock.Unlock()
	if n == 0 {
		if err := m.refresh(ctx, d); err != nil {
			return nil, 0, 0, errors.Trace(err)
		}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]Level(nil), d.opps[:d.n]...), d.min, d.max, nil
}

// DescribeLevels rebuilds the table of domain and returns the levels from
// index start on, with the number of levels left for further calls.
func (m *PerfMapper) DescribeLevels(ctx context.Context, agent, domain uint32, start int) ([]Level, int, error) {
	if _, err := m.agents.Get(agent); err != nil {
		return nil, 0, errors.Trace(err)
	}
	d, err := m.domain(domain)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if err := m.refresh(ctx, d); err != nil {
		return nil, 0, errors.Trace(err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if start < 0 || start > d.n {
		return nil, 0, fwerr.OutOfRangef("level index %d of %s", start, d.Name)
	}
	end := start + maxLevelsPerMsg
	if end > d.n {
		end = d.n
	}
	return append([]Level(nil), d.opps[start:end]...), d.n - end, nil
}

// Level returns the level of the current rate of domain: the highest
// operating point not above the rate, or the lowest one when the rate is
// below the whole table.
func (m *PerfMapper) Level(ctx context.Context, domain uint32) (uint32, error) {
	d, err := m.domain(domain)
	if err != nil {
		return 0, errors.Trace(err)
	}
	rate, err := d.Clock.Rate(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	opps, _, _, err := m.table(ctx, d)
	if err != nil {
		return 0, errors.Trace(err)
	}
	level := opps[0].Level
	for _, o := range opps {
		if o.Freq <= rate {
			level = o.Level
		}
	}
	return level, nil
}

func (m *PerfMapper) privileged(agent uint32) error {
	a, err := m.agents.Get(agent)
	if err != nil {
		return errors.Trace(err)
	}
	if !a.Privileged {
		return errors.Unauthorizedf("agent %s changing performance", a.Name)
	}
	return nil
}

// SetLevel moves domain to level. Only privileged agents may do this, and
// level must be an operating point within the current limits.
func (m *PerfMapper) SetLevel(ctx context.Context, agent, domain, level uint32) error {
	if err := m.privileged(agent); err != nil {
		return errors.Trace(err)
	}
	d, err := m.domain(domain)
	if err != nil {
		return errors.Trace(err)
	}
	opps, min, max, err := m.table(ctx, d)
	if err != nil {
		return errors.Trace(err)
	}
	if level < min || level > max {
		return fwerr.OutOfRangef("level %d of %s (limits [%d, %d])", level, d.Name, min, max)
	}
	for _, o := range opps {
		if o.Level == level {
			return errors.Trace(m.apply(ctx, d, o))
		}
	}
	return errors.NotValidf("level %d of %s", level, d.Name)
}

func (m *PerfMapper) apply(ctx context.Context, d *perfDomain, o Level) error {
	got, err := d.Clock.SetRate(ctx, o.Freq)
	if err != nil {
		return errors.Trace(err)
	}
	if got != o.Freq {
		return fwerr.HardwareFaultf("%s runs at %d for level %d (%d)", d.Name, got, o.Level, o.Freq)
	}
	glog.V(2).Infof("perf domain %s: level %d (%d Hz)", d.Name, o.Level, o.Freq)
	return nil
}

func (m *PerfMapper) Limits(ctx context.Context, domain uint32) (max, min uint32, err error) {
	d, err := m.domain(domain)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	_, min, max, err = m.table(ctx, d)
	return max, min, errors.Trace(err)
}

// SetLimits restricts domain to levels in [min, max]. Only privileged
// agents may do this. If the current level falls outside, the domain
// moves to the nearest allowed operating point.
func (m *PerfMapper) SetLimits(ctx context.Context, agent, domain, max, min uint32) error {
	if err := m.privileged(agent); err != nil {
		return errors.Trace(err)
	}
	d, err := m.domain(domain)
	if err != nil {
		return errors.Trace(err)
	}
	opps, _, _, err := m.table(ctx, d)
	if err != nil {
		return errors.Trace(err)
	}
	if min > max || min < opps[0].Level || max > opps[len(opps)-1].Level {
		return fwerr.OutOfRangef("limits [%d, %d] of %s", min, max, d.Name)
	}
	var allowed []Level
	for _, o := range opps {
		if o.Level >= min && o.Level <= max {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		return fwerr.OutOfRangef("limits [%d, %d] of %s (no operating point)", min, max, d.Name)
	}
	m.lock.Lock()
	d.min, d.max = min, max
	m.lock.Unlock()

	cur, err := m.Level(ctx, domain)
	if err != nil {
		return errors.Trace(err)
	}
	switch {
	case cur > max:
		return errors.Trace(m.apply(ctx, d, allowed[len(allowed)-1]))
	case cur < min:
		return errors.Trace(m.apply(ctx, d, allowed[0]))
	}
	return nil
}

// DomainInfo is what PERFORMANCE_DOMAIN_ATTRIBUTES reports.
type DomainInfo struct {
	Name           string
	CanSetLimits   bool
	CanSetLevel    bool
	SustainedLevel uint32
	SustainedKHz   uint32
}

func (m *PerfMapper) DomainAttributes(ctx context.Context, agent, domain uint32) (DomainInfo, error) {
	a, err := m.agents.Get(agent)
	if err != nil {
		return DomainInfo{}, errors.Trace(err)
	}
	d, err := m.domain(domain)
	if err != nil {
		return DomainInfo{}, errors.Trace(err)
	}
	opps, _, _, err := m.table(ctx, d)
	if err != nil {
		return DomainInfo{}, errors.Trace(err)
	}
	top := opps[len(opps)-1]
	return DomainInfo{
		Name:           d.Name,
		CanSetLimits:   a.Privileged,
		CanSetLevel:    a.Privileged,
		SustainedLevel: top.Level,
		SustainedKHz:   uint32(top.Freq / 1000),
	}, nil
}
