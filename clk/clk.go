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
// Package clk is the generic clock interface and the driver registry.
//
// A driver is registered once at boot under a device-tree phandle and a
// name. Consumers resolve a (driver, clock id) pair into a Clock and call
// its methods; the clock id is opaque to this package and only means
// something to the driver that owns it. Every operation is an optional
// capability of the driver, discovered with a type assertion.
package clk

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

type Phandle uint32

type ID uint32

// Driver is the minimum every clock driver implements.
type Driver interface {
	// Kind names the driver variant, e.g. "fixed-clock".
	Kind() string
}

type Requester interface {
	// Request is called when a consumer resolves a clock. A driver without
	// Request accepts every id.
	Request(ctx context.Context, id ID) error
}

type RateGetter interface {
	Rate(ctx context.Context, c Clock) (uint64, error)
}

type RateSetter interface {
	// SetRate returns the rate actually achieved, which may differ from the
	// requested one. A difference is not an error at this level.
	SetRate(ctx context.Context, c Clock, rate uint64) (uint64, error)
}

type ParentSetter interface {
	SetParent(ctx context.Context, c Clock, parent Clock) error
}

type ParentGetter interface {
	Parent(ctx context.Context, c Clock) (Clock, error)
}

type Enabler interface {
	Enable(ctx context.Context, c Clock, on bool) error
}

type RateLister interface {
	// Rates returns every rate the clock can run at, ascending.
	Rates(ctx context.Context, c Clock) ([]uint64, error)
}

type RateRanger interface {
	// RateRange describes a clock whose rates are every multiple of step
	// between min and max.
	RateRange(ctx context.Context, c Clock) (min, max, step uint64, err error)
}

// Clock is a consumer handle. It is built for each operation and never
// stored by the framework.
type Clock struct {
	Rec  *Record
	ID   ID
	Data interface{}
}

func (c Clock) String() string {
	if c.Rec == nil {
		return fmt.Sprintf("<nil>/%d", c.ID)
	}
	return fmt.Sprintf("%s/%d", c.Rec.Name(), c.ID)
}

// Same reports whether c and o name the same hardware clock.
func (c Clock) Same(o Clock) bool {
	return c.Rec == o.Rec && c.ID == o.ID
}

func (c Clock) driver() (Driver, error) {
	if c.Rec == nil || c.Rec.Driver == nil {
		return nil, errors.NotValidf("clock %s without a driver", c)
	}
	return c.Rec.Driver, nil
}

func (c Clock) Rate(ctx context.Context) (uint64, error) {
	d, err := c.driver()
	if err != nil {
		return 0, errors.Trace(err)
	}
	g, ok := d.(RateGetter)
	if !ok {
		return 0, errors.NotSupportedf("get_rate on %s (%s)", c, d.Kind())
	}
	rate, err := g.Rate(ctx, c)
	return rate, errors.Trace(err)
}

func (c Clock) SetRate(ctx context.Context, rate uint64) (uint64, error) {
	d, err := c.driver()
	if err != nil {
		return 0, errors.Trace(err)
	}
	s, ok := d.(RateSetter)
	if !ok {
		return 0, errors.NotSupportedf("set_rate on %s (%s)", c, d.Kind())
	}
	got, err := s.SetRate(ctx, c, rate)
	if err != nil {
		return got, errors.Annotatef(err, "set_rate %s to %d", c, rate)
	}
	glog.V(2).Infof("%s: set_rate %d -> %d", c, rate, got)
	return got, nil
}

func (c Clock) SetParent(ctx context.Context, parent Clock) error {
	d, err := c.driver()
	if err != nil {
		return errors.Trace(err)
	}
	s, ok := d.(ParentSetter)
	if !ok {
		return errors.NotSupportedf("set_parent on %s (%s)", c, d.Kind())
	}
	if err := s.SetParent(ctx, c, parent); err != nil {
		return errors.Annotatef(err, "set_parent %s to %s", c, parent)
	}
	glog.V(2).Infof("%s: parent -> %s", c, parent)
	return nil
}

func (c Clock) Parent(ctx context.Context) (Clock, error) {
	d, err := c.driver()
	if err != nil {
		return Clock{}, errors.Trace(err)
	}
	g, ok := d.(ParentGetter)
	if !ok {
		return Clock{}, errors.NotSupportedf("get_parent on %s (%s)", c, d.Kind())
	}
	p, err := g.Parent(ctx, c)
	return p, errors.Trace(err)
}

func (c Clock) Enable(ctx context.Context, on bool) error {
	d, err := c.driver()
	if err != nil {
		return errors.Trace(err)
	}
	e, ok := d.(Enabler)
	if !ok {
		return errors.NotSupportedf("enable on %s (%s)", c, d.Kind())
	}
	if err := e.Enable(ctx, c, on); err != nil {
		return errors.Annotatef(err, "enable(%t) %s", on, c)
	}
	glog.V(2).Infof("%s: enable(%t)", c, on)
	return nil
}

func (c Clock) Rates(ctx context.Context) ([]uint64, error) {
	d, err := c.driver()
	if err != nil {
		return nil, errors.Trace(err)
	}
	l, ok := d.(RateLister)
	if !ok {
		return nil, errors.NotSupportedf("rate list of %s (%s)", c, d.Kind())
	}
	rates, err := l.Rates(ctx, c)
	return rates, errors.Trace(err)
}

// RateRange returns the continuous rate range of c, if its driver has one.
func (c Clock) RateRange(ctx context.Context) (min, max, step uint64, err error) {
	d, err := c.driver()
	if err != nil {
		return 0, 0, 0, errors.Trace(err)
	}
	rr, ok := d.(RateRanger)
	if !ok {
		return 0, 0, 0, errors.NotSupportedf("rate range of %s (%s)", c, d.Kind())
	}
	min, max, step, err = rr.RateRange(ctx, c)
	return min, max, step, errors.Trace(err)
}
