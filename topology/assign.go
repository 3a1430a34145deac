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
// Package topology registers the clock providers found in the device tree
// and applies the parent and rate assignments of consumer nodes.
package topology

import (
	"context"
	"encoding/binary"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/common/fwerr"
	"github.com/mongoose-os/socclk/common/multierror"
)

const (
	PropAssignedClocks  = "assigned-clocks"
	PropAssignedParents = "assigned-clock-parents"
	PropAssignedRates   = "assigned-clock-rates"
)

// Ref names a clock by provider phandle and provider-local id.
// The zero Ref means "no clock".
type Ref struct {
	Phandle clk.Phandle
	ID      clk.ID
}

func (r Ref) IsZero() bool { return r.Phandle == clk.NoPhandle }

// Assignment is the parsed form of the assigned-* properties of one node.
// Parents and Rates are indexed like Clocks and may be shorter; a zero entry
// leaves the clock alone.
type Assignment struct {
	Node    string
	Clocks  []Ref
	Parents []Ref
	Rates   []uint64

	// ParentCells is the number of cells consumed from the parents array.
	ParentCells int
}

func cells(p *dt.Property) ([]uint32, error) {
	if len(p.Value)%4 != 0 {
		return nil, errors.NotValidf("%s of %d bytes", p.Name, len(p.Value))
	}
	res := make([]uint32, len(p.Value)/4)
	for i := range res {
		res[i] = binary.BigEndian.Uint32(p.Value[i*4:])
	}
	return res, nil
}

// ParseAssignment parses the assigned-* properties of n. It returns nil
// if n has no assigned-clocks.
//
// Clock entries are (phandle, id) pairs. A parent entry is a single zero
// cell when the clock keeps its parent and a (phandle, id) pair otherwise,
// so the parent cursor does not move in step with the clock index. Rates
// take one cell per clock.
func ParseAssignment(n *dt.Node) (*Assignment, error) {
	cp, ok := n.LookProperty(PropAssignedClocks)
	if !ok {
		return nil, nil
	}
	a := &Assignment{Node: n.Name}
	cs, err := cells(cp)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", n.Name)
	}
	if len(cs)%2 != 0 {
		return nil, errors.NotValidf("%s: %s with %d cells", n.Name, PropAssignedClocks, len(cs))
	}
	for i := 0; i < len(cs); i += 2 {
		a.Clocks = append(a.Clocks, Ref{Phandle: clk.Phandle(cs[i]), ID: clk.ID(cs[i+1])})
	}

	if pp, ok := n.LookProperty(PropAssignedParents); ok {
		ps, err := cells(pp)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", n.Name)
		}
		cur := 0
		for range a.Clocks {
			if cur >= len(ps) {
				break
			}
			if ps[cur] == 0 {
				a.Parents = append(a.Parents, Ref{})
				cur++
				continue
			}
			if cur+1 >= len(ps) {
				return nil, errors.NotValidf("%s: %s truncated at cell %d", n.Name, PropAssignedParents, cur)
			}
			a.Parents = append(a.Parents, Ref{Phandle: clk.Phandle(ps[cur]), ID: clk.ID(ps[cur+1])})
			cur += 2
		}
		a.ParentCells = cur
	}

	if rp, ok := n.LookProperty(PropAssignedRates); ok {
		rs, err := cells(rp)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", n.Name)
		}
		if len(rs) > len(a.Clocks) {
			rs = rs[:len(a.Clocks)]
		}
		for _, r := range rs {
			a.Rates = append(a.Rates, uint64(r))
		}
	}
	return a, nil
}

// Apply carries out a: all parents first, then all rates. Every entry is
// attempted; the returned error bundles every failure and its cause is the
// cause of the first one.
func (a *Assignment) Apply(ctx context.Context, reg *clk.Registry) error {
	var errs error
	resolved := make([]*clk.Clock, len(a.Clocks))
	for i, ref := range a.Clocks {
		c, err := reg.Get(ctx, ref.Phandle, ref.ID)
		if err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s: clock %d", a.Node, i))
			continue
		}
		resolved[i] = &c
	}

	for i, pref := range a.Parents {
		if pref.IsZero() || resolved[i] == nil {
			continue
		}
		p, err := reg.Get(ctx, pref.Phandle, pref.ID)
		if err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s: parent %d", a.Node, i))
			continue
		}
		glog.V(1).Infof("%s: %s parent -> %s", a.Node, resolved[i], p)
		if err := resolved[i].SetParent(ctx, p); err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", a.Node))
		}
	}

	for i, rate := range a.Rates {
		if rate == 0 || resolved[i] == nil {
			continue
		}
		glog.V(1).Infof("%s: %s rate -> %d", a.Node, resolved[i], rate)
		got, err := resolved[i].SetRate(ctx, rate)
		if err != nil {
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", a.Node))
			continue
		}
		if got != rate {
			glog.Warningf("%s: %s runs at %d instead of %d", a.Node, resolved[i], got, rate)
			errs = multierror.Append(errs, fwerr.OutOfRangef("%s: %s rate %d (got %d)", a.Node, resolved[i], rate, got))
		}
	}
	return errs
}

// Apply applies the assignments of every node under root. A node that
// fails does not stop the others.
func Apply(ctx context.Context, root *dt.Node, reg *clk.Registry) error {
	var errs error
	n := 0
	err := root.Walk(func(node *dt.Node) error {
		a, err := ParseAssignment(node)
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		if a == nil {
			return nil
		}
		n++
		errs = multierror.Append(errs, a.Apply(ctx, reg))
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	if errs != nil {
		for _, e := range errs.(*multierror.Error).Errors() {
			glog.Errorf("%s", e)
		}
	}
	glog.V(1).Infof("applied clock assignments of %d nodes", n)
	return errs
}
