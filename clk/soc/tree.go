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
package soc

import (
	"context"
	"sort"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/hw"
)

const Kind = "soc-clock-tree"

// Control register layout. Step and table clocks keep their rate selector
// (multiplier or table index) in the following word.
const (
	ctrlMuxMask  = 0xf
	ctrlDivShift = 8
	ctrlDivMask  = 0xffff << ctrlDivShift
	ctrlEnable   = 1 << 31
	selOffset    = 4
)

// maxDepth bounds parent chain walks; a deeper chain means a cycle.
const maxDepth = 32

// Remote receives operations on clock ids that are managed through the
// remote management protocol rather than by this tree.
type Remote interface {
	SetState(ctx context.Context, agent, clock uint32, enable bool) error
	SetRate(ctx context.Context, agent, clock uint32, rate uint64) (uint64, error)
	Rate(ctx context.Context, agent, clock uint32) (uint64, error)
}

type node struct {
	Params

	sel  int
	div  uint32
	rate uint64
	on   bool
}

type Tree struct {
	name  string
	nodes map[clk.ID]*node
	order []clk.ID

	target hw.Target
	ext    *clk.Registry

	remote      Remote
	remoteBase  clk.ID
	remoteAgent uint32
}

type Option func(t *Tree)

// WithTarget makes the tree program clock control registers through t.
func WithTarget(target hw.Target) Option {
	return func(t *Tree) { t.target = target }
}

// WithExternal lets external inputs resolve their driver in r.
func WithExternal(r *clk.Registry) Option {
	return func(t *Tree) { t.ext = r }
}

// WithRemote forwards clock ids >= base to r, acting as agent.
func WithRemote(base clk.ID, agent uint32, r Remote) Option {
	return func(t *Tree) {
		t.remoteBase = base
		t.remoteAgent = agent
		t.remote = r
	}
}

func New(name string, params []Params, opts ...Option) (*Tree, error) {
	t := &Tree{name: name, nodes: map[clk.ID]*node{}}
	for _, opt := range opts {
		opt(t)
	}
	ids := map[clk.ID]bool{}
	for _, p := range params {
		if ids[p.ID] {
			return nil, errors.AlreadyExistsf("clock id %d in %s", p.ID, name)
		}
		ids[p.ID] = true
	}
	for _, p := range params {
		if t.remote != nil && p.ID >= t.remoteBase {
			return nil, errors.NotValidf("clock %q id %d in the remote range", p.Name, p.ID)
		}
		if err := p.validate(ids); err != nil {
			return nil, errors.Trace(err)
		}
		n := &node{Params: p, div: p.Div, rate: p.Rate, on: p.On}
		if p.Parent != nil {
			n.sel = p.parentIndex(*p.Parent)
		}
		switch p.Model {
		case ModelDivider:
			if n.div == 0 {
				n.div = 1
			}
		case ModelStep:
			if n.rate == 0 {
				n.rate = p.Min
			}
		case ModelTable:
			if n.rate == 0 {
				n.rate = p.Rates[0]
			} else if indexOf(p.Rates, n.rate) < 0 {
				return nil, errors.NotValidf("table clock %q boot rate %d", p.Name, n.rate)
			}
		}
		t.nodes[p.ID] = n
		t.order = append(t.order, p.ID)
	}
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	return t, nil
}

func (t *Tree) Kind() string { return Kind }

func (t *Tree) Name() string { return t.name }

// IDs returns the ids of the local clocks, ascending.
func (t *Tree) IDs() []clk.ID {
	return append([]clk.ID(nil), t.order...)
}

// Params returns the parameter table entry of a local clock.
func (t *Tree) Params(id clk.ID) (Params, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Params{}, false
	}
	return n.Params, true
}

// Init programs every clock with its boot configuration.
func (t *Tree) Init(ctx context.Context) error {
	for _, id := range t.order {
		if err := t.program(ctx, t.nodes[id]); err != nil {
			return errors.Annotatef(err, "init %s", t.nodes[id].Name)
		}
	}
	glog.V(1).Infof("%s: %d clocks initialized", t.name, len(t.order))
	return nil
}

func (t *Tree) isRemote(id clk.ID) bool {
	return t.remote != nil && id >= t.remoteBase
}

func (t *Tree) node(id clk.ID) (*node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, errors.NotFoundf("clock %d in %s", id, t.name)
	}
	return n, nil
}

func (t *Tree) Request(ctx context.Context, id clk.ID) error {
	if t.isRemote(id) {
		return nil
	}
	_, err := t.node(id)
	return errors.Trace(err)
}

func (t *Tree) program(ctx context.Context, n *node) error {
	if t.target == nil || n.Reg == 0 {
		return nil
	}
	ctrl := uint32(n.sel) & ctrlMuxMask
	if n.Model == ModelDivider {
		ctrl |= ((n.div - 1) << ctrlDivShift) & ctrlDivMask
	}
	if n.Gate && n.on {
		ctrl |= ctrlEnable
	}
	if err := t.target.WriteReg(ctx, n.Reg, ctrl); err != nil {
		return errors.Annotatef(err, "clock %s control", n.Name)
	}
	var sel uint32
	switch n.Model {
	case ModelStep:
		sel = uint32(n.rate / n.Step)
	case ModelTable:
		sel = uint32(indexOf(n.Rates, n.rate))
	default:
		return nil
	}
	return errors.Annotatef(t.target.WriteReg(ctx, n.Reg+selOffset, sel), "clock %s rate select", n.Name)
}

// update applies f to n and programs the result, restoring the previous
// state if the hardware write fails.
func (t *Tree) update(ctx context.Context, n *node, f func(n *node)) error {
	saved := *n
	f(n)
	if err := t.program(ctx, n); err != nil {
		*n = saved
		return errors.Trace(err)
	}
	return nil
}

func (t *Tree) rateOf(ctx context.Context, id clk.ID, depth int) (uint64, error) {
	if depth > maxDepth {
		return 0, errors.NotValidf("parent chain of clock %d in %s (cycle)", id, t.name)
	}
	n, err := t.node(id)
	if err != nil {
		return 0, errors.Trace(err)
	}
	switch n.Model {
	case ModelStep, ModelTable:
		return n.rate, nil
	case ModelExternal:
		c, err := t.external(ctx, n)
		if err != nil {
			return 0, errors.Trace(err)
		}
		rate, err := c.Rate(ctx)
		return rate, errors.Trace(err)
	}
	pr, err := t.rateOf(ctx, n.Parents[n.sel], depth+1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if n.Model == ModelDivider {
		return pr / uint64(n.div), nil
	}
	return pr, nil
}

func (t *Tree) external(ctx context.Context, n *node) (clk.Clock, error) {
	if t.ext == nil {
		return clk.Clock{}, errors.NotValidf("external clock %q without a registry", n.Name)
	}
	c, err := t.ext.GetByName(ctx, n.External, n.ExternalID)
	return c, errors.Annotatef(err, "external clock %q", n.Name)
}

func (t *Tree) Rate(ctx context.Context, c clk.Clock) (uint64, error) {
	if t.isRemote(c.ID) {
		rate, err := t.remote.Rate(ctx, t.remoteAgent, uint32(c.ID-t.remoteBase))
		return rate, errors.Trace(err)
	}
	rate, err := t.rateOf(ctx, c.ID, 0)
	return rate, errors.Trace(err)
}

func (t *Tree) SetRate(ctx context.Context, c clk.Clock, rate uint64) (uint64, error) {
	if t.isRemote(c.ID) {
		got, err := t.remote.SetRate(ctx, t.remoteAgent, uint32(c.ID-t.remoteBase), rate)
		return got, errors.Trace(err)
	}
	n, err := t.node(c.ID)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if rate == 0 {
		return 0, errors.NotValidf("rate 0 for %s", n.Name)
	}
	switch n.Model {
	case ModelGate:
		// Nothing to adjust; the caller sees the parent rate.
		got, err := t.rateOf(ctx, c.ID, 0)
		return got, errors.Trace(err)
	case ModelExternal:
		ec, err := t.external(ctx, n)
		if err != nil {
			return 0, errors.Trace(err)
		}
		got, err := ec.SetRate(ctx, rate)
		return got, errors.Trace(err)
	case ModelDivider:
		pr, err := t.rateOf(ctx, n.Parents[n.sel], 1)
		if err != nil {
			return 0, errors.Trace(err)
		}
		div := (pr + rate - 1) / rate
		if div < 1 {
			div = 1
		}
		if div > uint64(n.MaxDiv) {
			div = uint64(n.MaxDiv)
		}
		if err := t.update(ctx, n, func(n *node) { n.div = uint32(div) }); err != nil {
			return 0, errors.Trace(err)
		}
		return pr / div, nil
	case ModelStep:
		got := rate - rate%n.Step
		if got < n.Min {
			got = n.Min
		}
		if got > n.Max {
			got = n.Max
		}
		if err := t.update(ctx, n, func(n *node) { n.rate = got }); err != nil {
			return 0, errors.Trace(err)
		}
		return got, nil
	case ModelTable:
		got := n.Rates[0]
		for _, r := range n.Rates {
			if r <= rate {
				got = r
			}
		}
		if err := t.update(ctx, n, func(n *node) { n.rate = got }); err != nil {
			return 0, errors.Trace(err)
		}
		return got, nil
	}
	return 0, errors.NotSupportedf("set_rate on %s", n.Name)
}

// localID maps a parent clock onto a clock of this tree: either a clock of
// the same record, or an external input fed by parent.
func (t *Tree) localID(c, parent clk.Clock) (clk.ID, error) {
	if parent.Rec == c.Rec {
		return parent.ID, nil
	}
	if parent.Rec != nil {
		for _, id := range t.order {
			n := t.nodes[id]
			if n.Model == ModelExternal && n.External == parent.Rec.Name() && n.ExternalID == parent.ID {
				return id, nil
			}
		}
	}
	return 0, errors.NotFoundf("input for %s in %s", parent, t.name)
}

func (t *Tree) SetParent(ctx context.Context, c clk.Clock, parent clk.Clock) error {
	if t.isRemote(c.ID) {
		return errors.NotSupportedf("set_parent on remote clock %d", c.ID)
	}
	n, err := t.node(c.ID)
	if err != nil {
		return errors.Trace(err)
	}
	pid, err := t.localID(c, parent)
	if err != nil {
		return errors.Trace(err)
	}
	idx := n.parentIndex(pid)
	if idx < 0 {
		return errors.NotValidf("parent %d of %s", pid, n.Name)
	}
	return errors.Trace(t.update(ctx, n, func(n *node) { n.sel = idx }))
}

func (t *Tree) Parent(ctx context.Context, c clk.Clock) (clk.Clock, error) {
	if t.isRemote(c.ID) {
		return clk.Clock{}, errors.NotSupportedf("get_parent on remote clock %d", c.ID)
	}
	n, err := t.node(c.ID)
	if err != nil {
		return clk.Clock{}, errors.Trace(err)
	}
	if len(n.Parents) == 0 {
		return clk.Clock{}, errors.NotFoundf("parent of %s", n.Name)
	}
	return clk.Clock{Rec: c.Rec, ID: n.Parents[n.sel]}, nil
}

// Enable drives the gate of c. Every call reaches the hardware, including
// repeated enables. Ungated clocks are always running and accept any
// request.
func (t *Tree) Enable(ctx context.Context, c clk.Clock, on bool) error {
	if t.isRemote(c.ID) {
		return errors.Trace(t.remote.SetState(ctx, t.remoteAgent, uint32(c.ID-t.remoteBase), on))
	}
	n, err := t.node(c.ID)
	if err != nil {
		return errors.Trace(err)
	}
	if !n.Gate {
		return nil
	}
	return errors.Trace(t.update(ctx, n, func(n *node) { n.on = on }))
}

// Enabled reports the gate state of a local clock.
func (t *Tree) Enabled(id clk.ID) bool {
	n, ok := t.nodes[id]
	return ok && (!n.Gate || n.on)
}

func (t *Tree) Rates(ctx context.Context, c clk.Clock) ([]uint64, error) {
	if t.isRemote(c.ID) {
		return nil, errors.NotSupportedf("rate list of remote clock %d", c.ID)
	}
	n, err := t.node(c.ID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch n.Model {
	case ModelTable:
		return append([]uint64(nil), n.Rates...), nil
	case ModelStep:
		if (n.Max-n.Min)/n.Step+1 > maxListedSteps {
			return nil, errors.NotSupportedf("rate list of %s (%d steps)", n.Name, (n.Max-n.Min)/n.Step+1)
		}
		var rates []uint64
		for r := n.Min; r <= n.Max; r += n.Step {
			rates = append(rates, r)
		}
		return rates, nil
	case ModelExternal:
		ec, err := t.external(ctx, n)
		if err != nil {
			return nil, errors.Trace(err)
		}
		rates, err := ec.Rates(ctx)
		return rates, errors.Trace(err)
	}
	pr, err := t.rateOf(ctx, n.Parents[n.sel], 1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if n.Model == ModelGate {
		return []uint64{pr}, nil
	}
	var rates []uint64
	for div := uint64(n.MaxDiv); div >= 1; div-- {
		r := pr / div
		if len(rates) > 0 && rates[len(rates)-1] == r {
			continue
		}
		rates = append(rates, r)
	}
	return rates, nil
}

func (t *Tree) RateRange(ctx context.Context, c clk.Clock) (min, max, step uint64, err error) {
	n, err := t.node(c.ID)
	if err != nil {
		return 0, 0, 0, errors.Trace(err)
	}
	if n.Model != ModelStep {
		return 0, 0, 0, errors.NotSupportedf("rate range of %s clock %s", n.Model, n.Name)
	}
	return n.Min, n.Max, n.Step, nil
}

func indexOf(rates []uint64, rate uint64) int {
	for i, r := range rates {
		if r == rate {
			return i
		}
	}
	return -1
}

var (
	_ clk.Requester    = (*Tree)(nil)
	_ clk.RateGetter   = (*Tree)(nil)
	_ clk.RateSetter   = (*Tree)(nil)
	_ clk.ParentSetter = (*Tree)(nil)
	_ clk.ParentGetter = (*Tree)(nil)
	_ clk.Enabler      = (*Tree)(nil)
	_ clk.RateLister   = (*Tree)(nil)
	_ clk.RateRanger   = (*Tree)(nil)
)
