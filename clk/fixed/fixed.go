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
// Package fixed is the fixed-rate clock driver: an oscillator whose
// frequency comes from the device tree and never changes.
package fixed

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/clk"
)

const Compatible = "fixed-clock"

type Driver struct {
	rate uint64
}

func New(rate uint64) *Driver {
	return &Driver{rate: rate}
}

func (d *Driver) Kind() string { return Compatible }

// Request accepts any id: a fixed clock has a single output.
func (d *Driver) Request(ctx context.Context, id clk.ID) error { return nil }

func (d *Driver) Rate(ctx context.Context, c clk.Clock) (uint64, error) {
	return d.rate, nil
}

func (d *Driver) Rates(ctx context.Context, c clk.Clock) ([]uint64, error) {
	return []uint64{d.rate}, nil
}

// Register adds a fixed clock to the registry.
func Register(r *clk.Registry, phandle clk.Phandle, name string, rate uint64) (*clk.Record, error) {
	if rate == 0 {
		return nil, errors.NotValidf("fixed clock %q with zero clock-frequency", name)
	}
	rec, err := r.Register(phandle, name, New(rate))
	return rec, errors.Trace(err)
}

var (
	_ clk.Requester  = (*Driver)(nil)
	_ clk.RateGetter = (*Driver)(nil)
	_ clk.RateLister = (*Driver)(nil)
)
