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
package clk

import (
	"context"

	"github.com/juju/errors"
)

// fakeDriver implements every capability over plain maps and records calls.
type fakeDriver struct {
	rates    map[ID]uint64
	parents  map[ID]Clock
	enabled  map[ID]int
	calls    []string
	failEn   error
	unknownA ID
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		rates:    map[ID]uint64{},
		parents:  map[ID]Clock{},
		enabled:  map[ID]int{},
		unknownA: 1000,
	}
}

func (d *fakeDriver) Kind() string { return "fake" }

func (d *fakeDriver) Request(ctx context.Context, id ID) error {
	d.calls = append(d.calls, "request")
	if id >= d.unknownA {
		return errors.NotFoundf("fake clock %d", id)
	}
	return nil
}

func (d *fakeDriver) Rate(ctx context.Context, c Clock) (uint64, error) {
	return d.rates[c.ID], nil
}

func (d *fakeDriver) SetRate(ctx context.Context, c Clock, rate uint64) (uint64, error) {
	d.calls = append(d.calls, "set_rate")
	got := rate - rate%1000
	d.rates[c.ID] = got
	return got, nil
}

func (d *fakeDriver) SetParent(ctx context.Context, c Clock, parent Clock) error {
	d.calls = append(d.calls, "set_parent")
	d.parents[c.ID] = parent
	return nil
}

func (d *fakeDriver) Parent(ctx context.Context, c Clock) (Clock, error) {
	p, ok := d.parents[c.ID]
	if !ok {
		return Clock{}, errors.NotFoundf("parent of %s", c)
	}
	return p, nil
}

func (d *fakeDriver) Enable(ctx context.Context, c Clock, on bool) error {
	d.calls = append(d.calls, "enable")
	if d.failEn != nil {
		return d.failEn
	}
	if on {
		d.enabled[c.ID]++
	} else {
		d.enabled[c.ID]--
	}
	return nil
}

func (d *fakeDriver) Rates(ctx context.Context, c Clock) ([]uint64, error) {
	return []uint64{1000, 2000, 3000}, nil
}

// bareDriver implements no capability at all.
type bareDriver struct{}

func (bareDriver) Kind() string { return "bare" }
