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
// Package platform puts the clock, reset and management components of a
// board together and boots them from the device tree.
package platform

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/clk/soc"
	"github.com/mongoose-os/socclk/common/ourutil"
	"github.com/mongoose-os/socclk/config"
	"github.com/mongoose-os/socclk/hw"
	"github.com/mongoose-os/socclk/reset"
	"github.com/mongoose-os/socclk/scmi"
	"github.com/mongoose-os/socclk/topology"
	"github.com/mongoose-os/socclk/version"
)

type Platform struct {
	Board    *config.Board
	Target   hw.Target
	Registry *clk.Registry
	Tree     *soc.Tree
	Resets   *reset.Controller
	Agents   *scmi.Agents

	// Set by Boot.
	Providers *topology.Providers
	Clocks    *scmi.ClockTracker
	Perf      *scmi.PerfMapper
	Server    *scmi.Server
}

// remote hands the forwarded clock ids of the tree to the clock tracker,
// which only exists once the device tree has been discovered.
type remote struct {
	p *Platform
}

func (r remote) tracker() (*scmi.ClockTracker, error) {
	if r.p.Clocks == nil {
		return nil, errors.NotFoundf("remote clocks before boot")
	}
	return r.p.Clocks, nil
}

func (r remote) SetState(ctx context.Context, agent, clock uint32, on bool) error {
	t, err := r.tracker()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(t.SetState(ctx, agent, clock, on))
}

func (r remote) SetRate(ctx context.Context, agent, clock uint32, rate uint64) (uint64, error) {
	t, err := r.tracker()
	if err != nil {
		return 0, errors.Trace(err)
	}
	got, err := t.SetRate(ctx, agent, clock, rate)
	return got, errors.Trace(err)
}

func (r remote) Rate(ctx context.Context, agent, clock uint32) (uint64, error) {
	t, err := r.tracker()
	if err != nil {
		return 0, errors.Trace(err)
	}
	rate, err := t.Rate(ctx, agent, clock)
	return rate, errors.Trace(err)
}

// New creates the components of board b on top of target. Nothing touches
// the hardware until Boot.
func New(b *config.Board, target hw.Target) (*Platform, error) {
	p := &Platform{Board: b, Target: target, Registry: clk.NewRegistry(b.Capacity)}
	var err error
	if p.Agents, err = scmi.NewAgents(b.SCMI.Agents); err != nil {
		return nil, errors.Trace(err)
	}
	opts := []soc.Option{soc.WithTarget(target), soc.WithExternal(p.Registry)}
	if b.Platform.RemoteBase != 0 {
		opts = append(opts, soc.WithRemote(b.Platform.RemoteBase, b.Platform.RemoteAgent, remote{p}))
	}
	if p.Tree, err = soc.New(b.Name, b.Platform.Clocks, opts...); err != nil {
		return nil, errors.Annotatef(err, "clock tree")
	}
	if p.Resets, err = reset.New(target, p.Registry, b.Resets); err != nil {
		return nil, errors.Annotatef(err, "resets")
	}
	return p, nil
}

func (p *Platform) resolve(ctx context.Context, refs []config.ClockRef) ([]clk.Clock, error) {
	var res []clk.Clock
	for _, ref := range refs {
		c, err := p.Registry.GetByName(ctx, ref.Provider, ref.ID)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", ref.Name)
		}
		// A forwarded id would come straight back to the tracker.
		if c.Rec.Driver == clk.Driver(p.Tree) && p.Board.Platform.RemoteBase != 0 && ref.ID >= p.Board.Platform.RemoteBase {
			return nil, errors.NotValidf("%s: clock %d of %s is forwarded to the management interface", ref.Name, ref.ID, ref.Provider)
		}
		res = append(res, c)
	}
	return res, nil
}

// Boot registers the clock providers of the device tree, brings the clock
// tree to its boot state, sets up the management interface and applies
// the clock assignments of the device tree. Assignment failures do not
// stop the others, but any of them fails the boot.
func (p *Platform) Boot(ctx context.Context, root *dt.Node) error {
	var err error
	b := p.Board
	p.Providers, err = topology.Discover(root, p.Registry, b.Platform.Compatible, p.Tree)
	if err != nil {
		return errors.Annotatef(err, "discovery")
	}
	if err := p.Tree.Init(ctx); err != nil {
		return errors.Trace(err)
	}

	clocks, err := p.resolve(ctx, b.SCMI.Clocks)
	if err != nil {
		return errors.Annotatef(err, "exposed clocks")
	}
	var exposed []scmi.ExposedClock
	for i, c := range clocks {
		exposed = append(exposed, scmi.ExposedClock{Name: b.SCMI.Clocks[i].Name, Clock: c})
	}
	p.Clocks = scmi.NewClockTracker(p.Agents, exposed)

	perf, err := p.resolve(ctx, b.SCMI.Perf)
	if err != nil {
		return errors.Annotatef(err, "perf domains")
	}
	var domains []scmi.PerfDomain
	for i, c := range perf {
		domains = append(domains, scmi.PerfDomain{Name: b.SCMI.Perf[i].Name, Clock: c})
	}
	p.Perf = scmi.NewPerfMapper(p.Agents, domains)

	p.Server = scmi.NewServer(p.Agents,
		scmi.WithClocks(p.Clocks),
		scmi.WithPerf(p.Perf),
		scmi.WithResets(scmi.NewResetDomains(p.Agents, p.Resets)),
		scmi.WithVendor(b.SCMI.Vendor, b.SCMI.SubVendor),
		scmi.WithImplementationVersion(version.Implementation(version.Version)),
	)

	if err := topology.Apply(ctx, root, p.Registry); err != nil {
		return errors.Annotatef(err, "clock assignments")
	}
	glog.Infof("%s: %d clock providers, %d exposed clocks, %d perf domains, %d reset domains",
		b.Name, p.Registry.Len(), p.Clocks.Len(), p.Perf.Len(), len(p.Resets.Entries()))
	return nil
}

// Summary writes one line per clock: providers registered from the
// device tree, then the clocks of the managed tree.
func (p *Platform) Summary(ctx context.Context, w io.Writer) error {
	var err error
	p.Registry.Each(func(rec *clk.Record) bool {
		if rec.Driver == clk.Driver(p.Tree) {
			return true
		}
		var c clk.Clock
		if c, err = rec.Clock(ctx, 0); err != nil {
			return false
		}
		var rate uint64
		if rate, err = c.Rate(ctx); err != nil {
			return false
		}
		fmt.Fprintf(w, "%-12s %-12s %12s\n", rec.Name(), rec.Driver.Kind(), ourutil.FormatHz(rate))
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}
	if p.Providers == nil || p.Providers.Platform == nil {
		return nil
	}
	for _, id := range p.Tree.IDs() {
		prm, _ := p.Tree.Params(id)
		c := clk.Clock{Rec: p.Providers.Platform, ID: id}
		rate, err := c.Rate(ctx)
		if err != nil {
			return errors.Annotatef(err, "%s", prm.Name)
		}
		parent := "-"
		if pc, err := c.Parent(ctx); err == nil {
			pp, _ := p.Tree.Params(pc.ID)
			parent = pp.Name
		}
		state := "on"
		if !p.Tree.Enabled(id) {
			state = "off"
		}
		fmt.Fprintf(w, "%-12s %-12s %12s  %-3s <- %s\n", prm.Name, prm.Model, ourutil.FormatHz(rate), state, parent)
	}
	return nil
}

// Simulate makes every reset status register of the board follow its
// control register, so that resets settle immediately on an in-memory
// register file.
func (p *Platform) Simulate(m *hw.Mem) {
	for _, g := range p.Board.Resets.Groups {
		m.Mirror(g.Ctrl, g.Status)
	}
	for _, part := range p.Board.Resets.Partitions {
		m.Mirror(part.Ctrl, part.Status)
	}
}
