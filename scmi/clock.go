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
	"github.com/mongoose-os/socclk/common/multierror"
)

// MaxRefCount is the saturation point of the per-agent enable counts.
const MaxRefCount = 255

// maxRatesPerMsg bounds a DESCRIBE_RATES response.
const maxRatesPerMsg = 16

// ExposedClock is a clock made visible to agents under its index.
type ExposedClock struct {
	Name  string
	Clock clk.Clock
}

// ClockTracker keeps an enable count per agent and clock and forwards
// every accepted request to the clock driver.
type ClockTracker struct {
	agents *Agents
	clocks []ExposedClock
	counts [][]uint8
}

func NewClockTracker(agents *Agents, clocks []ExposedClock) *ClockTracker {
	t := &ClockTracker{
		agents: agents,
		clocks: append([]ExposedClock(nil), clocks...),
		counts: make([][]uint8, agents.Len()),
	}
	for i := range t.counts {
		t.counts[i] = make([]uint8, len(clocks))
	}
	return t
}

func (t *ClockTracker) Len() int { return len(t.clocks) }

func (t *ClockTracker) lookup(agent, clock uint32) (*Agent, *ExposedClock, error) {
	a, err := t.agents.Get(agent)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if clock >= uint32(len(t.clocks)) {
		return nil, nil, errors.NotFoundf("clock %d", clock)
	}
	return a, &t.clocks[clock], nil
}

// check validates agent and clock and the agent's right to change clock.
func (t *ClockTracker) check(agent, clock uint32) (*ExposedClock, error) {
	a, c, err := t.lookup(agent, clock)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !a.MayUseClock(clock) {
		return nil, errors.Unauthorizedf("agent %s on clock %s", a.Name, c.Name)
	}
	return c, nil
}

// SetState enables or disables clock on behalf of agent. Disabling a clock
// the agent does not hold and enabling past MaxRefCount are rejected
// without touching the hardware. Every other request reaches the driver,
// including repeated enables, and the count only moves if the driver
// succeeds.
func (t *ClockTracker) SetState(ctx context.Context, agent, clock uint32, enable bool) error {
	c, err := t.check(agent, clock)
	if err != nil {
		return errors.Trace(err)
	}
	cnt := &t.counts[agent][clock]
	switch {
	case !enable && *cnt == 0:
		return errors.NotValidf("disable of %s by agent %d (not enabled)", c.Name, agent)
	case enable && *cnt == MaxRefCount:
		return errors.NotValidf("enable of %s by agent %d (count saturated)", c.Name, agent)
	}
	if err := c.Clock.Enable(ctx, enable); err != nil {
		return errors.Trace(err)
	}
	if enable {
		*cnt++
	} else {
		*cnt--
	}
	glog.V(2).Infof("agent %d: %s enable=%t count=%d", agent, c.Name, enable, *cnt)
	return nil
}

// State reports whether agent holds clock enabled.
func (t *ClockTracker) State(agent, clock uint32) (bool, error) {
	if _, _, err := t.lookup(agent, clock); err != nil {
		return false, errors.Trace(err)
	}
	return t.counts[agent][clock] > 0, nil
}

// Count returns the enable count of agent on clock.
func (t *ClockTracker) Count(agent, clock uint32) (int, error) {
	if _, _, err := t.lookup(agent, clock); err != nil {
		return 0, errors.Trace(err)
	}
	return int(t.counts[agent][clock]), nil
}

// ResetAgent drops every enable agent still holds. All clocks are
// attempted; the first failure is reported.
func (t *ClockTracker) ResetAgent(ctx context.Context, agent uint32) error {
	a, err := t.agents.Get(agent)
	if err != nil {
		return errors.Trace(err)
	}
	var errs error
	for clock, cnt := range t.counts[agent] {
		if cnt == 0 {
			continue
		}
		glog.Infof("agent %s: releasing %s (count %d)", a.Name, t.clocks[clock].Name, cnt)
		for t.counts[agent][clock] > 0 {
			if err := t.SetState(ctx, agent, uint32(clock), false); err != nil {
				errs = multierror.Append(errs, err)
				break
			}
		}
	}
	return errs
}

func (t *ClockTracker) Rate(ctx context.Context, agent, clock uint32) (uint64, error) {
	_, c, err := t.lookup(agent, clock)
	if err != nil {
		return 0, errors.Trace(err)
	}
	rate, err := c.Clock.Rate(ctx)
	return rate, errors.Trace(err)
}

// SetRate changes the rate of clock. If agent holds the clock enabled, the
// clock is disabled around the change; a failed or inexact change is rolled
// back to the previous rate before the clock is enabled again. The first
// failure of the sequence is reported.
func (t *ClockTracker) SetRate(ctx context.Context, agent, clock uint32, rate uint64) (uint64, error) {
	c, err := t.check(agent, clock)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if t.counts[agent][clock] == 0 {
		got, err := c.Clock.SetRate(ctx, rate)
		return got, errors.Trace(err)
	}

	prev, err := c.Clock.Rate(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if err := t.SetState(ctx, agent, clock, false); err != nil {
		return 0, errors.Trace(err)
	}
	var errs error
	got, err := c.Clock.SetRate(ctx, rate)
	switch {
	case err != nil:
		errs = multierror.Append(errs, err)
	case got != rate:
		errs = multierror.Append(errs, fwerr.OutOfRangef("rate %d of %s (got %d)", rate, c.Name, got))
	}
	if errs != nil {
		glog.Warningf("agent %d: %s: restoring rate %d", agent, c.Name, prev)
		if _, err := c.Clock.SetRate(ctx, prev); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := t.SetState(ctx, agent, clock, true); err != nil {
		errs = multierror.Append(errs, err)
	}
	return got, errs
}

// ClockInfo is what CLOCK_ATTRIBUTES reports.
type ClockInfo struct {
	Name    string
	Enabled bool
}

func (t *ClockTracker) Attributes(agent, clock uint32) (ClockInfo, error) {
	_, c, err := t.lookup(agent, clock)
	if err != nil {
		return ClockInfo{}, errors.Trace(err)
	}
	return ClockInfo{Name: c.Name, Enabled: t.counts[agent][clock] > 0}, nil
}

// RateList is one DESCRIBE_RATES page. A Linear list holds exactly
// min, max and step.
type RateList struct {
	Rates     []uint64
	Linear    bool
	Remaining int
}

func (t *ClockTracker) DescribeRates(ctx context.Context, agent, clock uint32, index int) (RateList, error) {
	_, c, err := t.lookup(agent, clock)
	if err != nil {
		return RateList{}, errors.Trace(err)
	}
	if min, max, step, err := c.Clock.RateRange(ctx); err == nil {
		return RateList{Rates: []uint64{min, max, step}, Linear: true}, nil
	} else if !errors.IsNotSupported(err) {
		return RateList{}, errors.Trace(err)
	}
	rates, err := c.Clock.Rates(ctx)
	if err != nil {
		return RateList{}, errors.Trace(err)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	if index < 0 || index > len(rates) {
		return RateList{}, fwerr.OutOfRangef("rate index %d of %s", index, c.Name)
	}
	rates = rates[index:]
	res := RateList{Rates: rates}
	if len(rates) > maxRatesPerMsg {
		res.Rates = rates[:maxRatesPerMsg]
		res.Remaining = len(rates) - maxRatesPerMsg
	}
	return res, nil
}
