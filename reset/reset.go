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
// Package reset drives the peripheral and partition reset lines of the SoC.
//
// A peripheral reset id falls into exactly one register group; its bit in
// the group's control register holds the line in reset while set, and the
// same bit of the status register reports the line state. A partition is a
// power domain with a single enable bit; taking it out of reset powers it
// up.
//
// Resets that feed a clock mux park the mux on a safe source for the
// duration of the transition and restore it afterwards.
package reset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/common/multierror"
	"github.com/mongoose-os/socclk/hw"
)

const DefaultTimeout = 1000 * time.Microsecond

// Group is a range of reset ids sharing a control and a status register.
type Group struct {
	Name   string `yaml:"name"`
	First  uint32 `yaml:"first"`
	Last   uint32 `yaml:"last"`
	Ctrl   uint32 `yaml:"ctrl"`
	Status uint32 `yaml:"status"`
}

type Partition struct {
	ID     uint32 `yaml:"id"`
	Name   string `yaml:"name"`
	Ctrl   uint32 `yaml:"ctrl"`
	Status uint32 `yaml:"status"`
	Bit    uint32 `yaml:"bit"`
}

// ClockRef names a clock by provider name and id.
type ClockRef struct {
	Provider string `yaml:"provider"`
	ID       clk.ID `yaml:"id"`
}

func (r ClockRef) String() string { return fmt.Sprintf("%s/%d", r.Provider, r.ID) }

type Mux struct {
	Clock ClockRef `yaml:"clock"`
	Safe  ClockRef `yaml:"safe"`
}

// Entry describes a reset domain. Partition entries refer to a Partition
// by ID; other entries to a peripheral reset id.
type Entry struct {
	ID        uint32 `yaml:"id"`
	Name      string `yaml:"name"`
	Partition bool   `yaml:"partition,omitempty"`
	Mux       *Mux   `yaml:"mux,omitempty"`
}

type Config struct {
	Groups     []Group       `yaml:"groups"`
	Partitions []Partition   `yaml:"partitions,omitempty"`
	Entries    []Entry       `yaml:"entries,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

type Controller struct {
	target  hw.Target
	clocks  *clk.Registry
	groups  []Group
	parts   map[uint32]Partition
	entries []Entry
	timeout time.Duration
}

func New(target hw.Target, clocks *clk.Registry, cfg Config) (*Controller, error) {
	c := &Controller{
		target:  target,
		clocks:  clocks,
		groups:  append([]Group(nil), cfg.Groups...),
		parts:   map[uint32]Partition{},
		timeout: cfg.Timeout,
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	sort.Slice(c.groups, func(i, j int) bool { return c.groups[i].First < c.groups[j].First })
	for i, g := range c.groups {
		if g.Last < g.First || g.Last-g.First >= 32 {
			return nil, errors.NotValidf("reset group %q range [%d, %d]", g.Name, g.First, g.Last)
		}
		if i > 0 && g.First <= c.groups[i-1].Last {
			return nil, errors.NotValidf("reset group %q overlaps %q", g.Name, c.groups[i-1].Name)
		}
	}
	for _, p := range cfg.Partitions {
		if _, ok := c.parts[p.ID]; ok {
			return nil, errors.AlreadyExistsf("partition %d", p.ID)
		}
		if p.Bit >= 32 {
			return nil, errors.NotValidf("partition %q bit %d", p.Name, p.Bit)
		}
		c.parts[p.ID] = p
	}
	seen := map[string]bool{}
	for _, e := range cfg.Entries {
		if seen[e.Name] {
			return nil, errors.AlreadyExistsf("reset domain %q", e.Name)
		}
		seen[e.Name] = true
		if e.Partition {
			if _, ok := c.parts[e.ID]; !ok {
				return nil, errors.NotValidf("reset domain %q partition %d", e.Name, e.ID)
			}
		} else if _, err := c.group(e.ID); err != nil {
			return nil, errors.Annotatef(err, "reset domain %q", e.Name)
		}
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Entries returns the configured reset domains in configuration order.
func (c *Controller) Entries() []Entry {
	return c.entries
}

// Entry returns the reset domain named name.
func (c *Controller) Entry(name string) (Entry, error) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, errors.NotFoundf("reset domain %q", name)
}

func (c *Controller) group(id uint32) (Group, error) {
	i := sort.Search(len(c.groups), func(i int) bool { return c.groups[i].Last >= id })
	if i == len(c.groups) || id < c.groups[i].First {
		return Group{}, errors.NotValidf("reset id %d", id)
	}
	return c.groups[i], nil
}

// Peripheral returns the entry of a plain peripheral reset id, with the
// mux of the configured domain if there is one.
func (c *Controller) Peripheral(id uint32) (Entry, error) {
	if _, err := c.group(id); err != nil {
		return Entry{}, errors.Trace(err)
	}
	for _, e := range c.entries {
		if !e.Partition && e.ID == id {
			return e, nil
		}
	}
	return Entry{ID: id, Name: fmt.Sprintf("rst%d", id)}, nil
}

func (c *Controller) Assert(ctx context.Context, e Entry) error {
	return errors.Trace(c.transition(ctx, e, true))
}

func (c *Controller) Deassert(ctx context.Context, e Entry) error {
	return errors.Trace(c.transition(ctx, e, false))
}

// Pulse asserts and then deasserts e with the mux parked once around both.
func (c *Controller) Pulse(ctx context.Context, e Entry) error {
	return errors.Trace(c.transition(ctx, e, true, false))
}

// Status reports whether e is currently held in reset.
func (c *Controller) Status(ctx context.Context, e Entry) (bool, error) {
	if e.Partition {
		p, err := c.partition(e.ID)
		if err != nil {
			return false, errors.Trace(err)
		}
		v, err := c.target.ReadReg(ctx, p.Status)
		if err != nil {
			return false, errors.Trace(err)
		}
		return v&(1<<p.Bit) == 0, nil
	}
	g, err := c.group(e.ID)
	if err != nil {
		return false, errors.Trace(err)
	}
	v, err := c.target.ReadReg(ctx, g.Status)
	if err != nil {
		return false, errors.Trace(err)
	}
	return v&(1<<(e.ID-g.First)) != 0, nil
}

func (c *Controller) transition(ctx context.Context, e Entry, states ...bool) error {
	return c.withSafeMux(ctx, e, func() error {
		for _, assert := range states {
			glog.V(2).Infof("reset %s: assert=%t", e.Name, assert)
			var err error
			if e.Partition {
				err = c.setPartition(ctx, e.ID, assert)
			} else {
				err = c.setPeripheral(ctx, e.ID, assert)
			}
			if err != nil {
				return errors.Annotatef(err, "reset %s", e.Name)
			}
		}
		return nil
	})
}

// withSafeMux runs f with the mux of e parked on its safe source. If the
// mux cannot be parked, f does not run. The mux is restored whatever f
// returns; a failure of f takes priority over a failure to restore.
func (c *Controller) withSafeMux(ctx context.Context, e Entry, f func() error) error {
	if e.Mux == nil {
		return f()
	}
	if c.clocks == nil {
		return errors.NotValidf("mux %s of %s without a clock registry", e.Mux.Clock, e.Name)
	}
	mux, err := c.clocks.GetByName(ctx, e.Mux.Clock.Provider, e.Mux.Clock.ID)
	if err != nil {
		return errors.Annotatef(err, "mux of %s", e.Name)
	}
	safe, err := c.clocks.GetByName(ctx, e.Mux.Safe.Provider, e.Mux.Safe.ID)
	if err != nil {
		return errors.Annotatef(err, "safe source of %s", e.Name)
	}
	orig, err := mux.Parent(ctx)
	if err != nil {
		return errors.Annotatef(err, "mux of %s", e.Name)
	}
	if err := mux.SetParent(ctx, safe); err != nil {
		return errors.Annotatef(err, "park mux of %s", e.Name)
	}
	resErr := f()
	restoreErr := mux.SetParent(ctx, orig)
	if restoreErr != nil {
		restoreErr = errors.Annotatef(restoreErr, "restore mux of %s to %s", e.Name, orig)
		glog.Errorf("%s", restoreErr)
	}
	return multierror.Append(resErr, restoreErr)
}

func (c *Controller) setPeripheral(ctx context.Context, id uint32, assert bool) error {
	g, err := c.group(id)
	if err != nil {
		return errors.Trace(err)
	}
	bit := uint32(1) << (id - g.First)
	want := uint32(0)
	if assert {
		want = bit
		err = hw.SetBits(ctx, c.target, g.Ctrl, bit)
	} else {
		err = hw.ClearBits(ctx, c.target, g.Ctrl, bit)
	}
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(hw.WaitBits(ctx, c.target, g.Status, bit, want, c.timeout))
}

func (c *Controller) partition(id uint32) (Partition, error) {
	p, ok := c.parts[id]
	if !ok {
		return Partition{}, errors.NotFoundf("partition %d", id)
	}
	return p, nil
}

func (c *Controller) AssertPartition(ctx context.Context, id uint32) error {
	return errors.Trace(c.setPartition(ctx, id, true))
}

func (c *Controller) DeassertPartition(ctx context.Context, id uint32) error {
	return errors.Trace(c.setPartition(ctx, id, false))
}

// setPartition powers the partition down (assert) or up (deassert).
func (c *Controller) setPartition(ctx context.Context, id uint32, assert bool) error {
	p, err := c.partition(id)
	if err != nil {
		return errors.Trace(err)
	}
	bit := uint32(1) << p.Bit
	want := bit
	if assert {
		want = 0
		err = hw.ClearBits(ctx, c.target, p.Ctrl, bit)
	} else {
		err = hw.SetBits(ctx, c.target, p.Ctrl, bit)
	}
	if err != nil {
		return errors.Annotatef(err, "partition %s", p.Name)
	}
	return errors.Annotatef(hw.WaitBits(ctx, c.target, p.Status, bit, want, c.timeout), "partition %s", p.Name)
}
