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

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/common/arena"
)

// MaxNameLen bounds driver names. Longer names are stored truncated and
// compare on their first MaxNameLen bytes.
const MaxNameLen = 32

// NoPhandle marks a driver that no device-tree node refers to. Lookups of
// it always miss.
const NoPhandle Phandle = 0

// Record is a registered driver. Records are never removed.
type Record struct {
	Phandle Phandle
	Driver  Driver
	Handle  arena.Handle

	name string
}

func (r *Record) Name() string { return r.name }

func boundName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}

// Registry is populated during the single-threaded boot phase and only read
// afterwards, so lookups take no lock.
type Registry struct {
	records   *arena.Arena[Record]
	byPhandle map[Phandle]arena.Handle
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		records:   arena.New[Record]("clock driver", capacity),
		byPhandle: map[Phandle]arena.Handle{},
	}
}

func (r *Registry) Register(phandle Phandle, name string, drv Driver) (*Record, error) {
	if drv == nil {
		return nil, errors.NotValidf("nil driver for %q", name)
	}
	if phandle != NoPhandle {
		if h, ok := r.byPhandle[phandle]; ok {
			return nil, errors.AlreadyExistsf("phandle %d (%q)", phandle, r.records.Get(h).name)
		}
	}
	h, rec, err := r.records.Allocate()
	if err != nil {
		return nil, errors.Annotatef(err, "registering %q", name)
	}
	rec.Phandle = phandle
	rec.Driver = drv
	rec.Handle = h
	rec.name = boundName(name)
	if phandle != NoPhandle {
		r.byPhandle[phandle] = h
	}
	glog.V(1).Infof("registered %s driver %q phandle %d", drv.Kind(), rec.name, phandle)
	return rec, nil
}

func (r *Registry) LookupPhandle(phandle Phandle) (*Record, error) {
	if phandle == NoPhandle {
		return nil, errors.NotFoundf("clock driver phandle 0")
	}
	h, ok := r.byPhandle[phandle]
	if !ok {
		return nil, errors.NotFoundf("clock driver phandle %d", phandle)
	}
	return r.records.Get(h), nil
}

func (r *Registry) LookupName(name string) (*Record, error) {
	name = boundName(name)
	var found *Record
	r.records.Each(func(_ arena.Handle, rec *Record) bool {
		if rec.name == name {
			found = rec
			return false
		}
		return true
	})
	if found == nil {
		return nil, errors.NotFoundf("clock driver %q", name)
	}
	return found, nil
}

// Get resolves (phandle, id) into a requested Clock.
func (r *Registry) Get(ctx context.Context, phandle Phandle, id ID) (Clock, error) {
	rec, err := r.LookupPhandle(phandle)
	if err != nil {
		return Clock{}, errors.Trace(err)
	}
	return rec.Clock(ctx, id)
}

// GetByName resolves (driver name, id) into a requested Clock.
func (r *Registry) GetByName(ctx context.Context, name string, id ID) (Clock, error) {
	rec, err := r.LookupName(name)
	if err != nil {
		return Clock{}, errors.Trace(err)
	}
	return rec.Clock(ctx, id)
}

// Clock requests clock id of the driver of r. Records without a phandle
// can only be resolved this way or by name.
func (r *Record) Clock(ctx context.Context, id ID) (Clock, error) {
	c := Clock{Rec: r, ID: id}
	if rq, ok := r.Driver.(Requester); ok {
		if err := rq.Request(ctx, id); err != nil {
			return Clock{}, errors.Annotatef(err, "request %s", c)
		}
	}
	return c, nil
}

func (r *Registry) Len() int { return r.records.Len() }

func (r *Registry) Cap() int { return r.records.Cap() }

// Each visits the records in registration order.
func (r *Registry) Each(f func(rec *Record) bool) {
	r.records.Each(func(_ arena.Handle, rec *Record) bool {
		return f(rec)
	})
}
