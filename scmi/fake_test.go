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
	"sync"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/socclk/clk"
)

const (
	stepClock  clk.ID = 0 // any multiple of 1 kHz
	tableClock clk.ID = 1 // one of a rate list
	otherClock clk.ID = 2
)

type enableCall struct {
	id clk.ID
	on bool
}

// fakeClocks is a goroutine-safe clock driver.
type fakeClocks struct {
	mu         sync.Mutex
	calls      []enableCall
	rates      map[clk.ID]uint64
	lists      map[clk.ID][]uint64
	failEnable error
	failRate   map[uint64]error
}

func newFakeClocks() *fakeClocks {
	return &fakeClocks{
		rates:    map[clk.ID]uint64{stepClock: 200000000, tableClock: 400000000, otherClock: 24000000},
		lists:    map[clk.ID][]uint64{tableClock: {200000000, 400000000, 600000000, 800000000, 1000000000}},
		failRate: map[uint64]error{},
	}
}

func (f *fakeClocks) Kind() string { return "fake" }

func (f *fakeClocks) Rate(ctx context.Context, c clk.Clock) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rates[c.ID], nil
}

func (f *fakeClocks) SetRate(ctx context.Context, c clk.Clock, rate uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRate[rate]; err != nil {
		return 0, err
	}
	got := rate - rate%1000
	if l, ok := f.lists[c.ID]; ok {
		got = l[0]
		for _, r := range l {
			if r <= rate {
				got = r
			}
		}
	}
	f.rates[c.ID] = got
	return got, nil
}

func (f *fakeClocks) Enable(ctx context.Context, c clk.Clock, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnable != nil {
		return f.failEnable
	}
	f.calls = append(f.calls, enableCall{c.ID, on})
	return nil
}

func (f *fakeClocks) Rates(ctx context.Context, c clk.Clock) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[c.ID]
	if !ok {
		return nil, errors.NotSupportedf("rate list of %d", c.ID)
	}
	return append([]uint64(nil), l...), nil
}

func (f *fakeClocks) RateRange(ctx context.Context, c clk.Clock) (uint64, uint64, uint64, error) {
	if c.ID != stepClock {
		return 0, 0, 0, errors.NotSupportedf("rate range of %d", c.ID)
	}
	return 1000, 2000000000, 1000, nil
}

func (f *fakeClocks) setList(id clk.ID, rates []uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[id] = rates
}

func (f *fakeClocks) enableCalls() []enableCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enableCall(nil), f.calls...)
}

func (f *fakeClocks) rate(id clk.ID) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rates[id]
}

// Agent 0 is the platform; agent 1 may use the step and table clocks;
// agent 2 nothing at all.
func testAgents(t require.TestingT) *Agents {
	as, err := NewAgents([]Agent{
		{ID: 0, Name: "platform", Privileged: true},
		{ID: 1, Name: "ospm", Clocks: []uint32{0, 1}, Resets: []uint32{0}},
		{ID: 2, Name: "guest"},
	})
	require.NoError(t, err)
	return as
}

func testClocks(t require.TestingT) (*fakeClocks, []ExposedClock) {
	f := newFakeClocks()
	reg := clk.NewRegistry(2)
	rec, err := reg.Register(1, "fake", f)
	require.NoError(t, err)
	return f, []ExposedClock{
		{Name: "cpu", Clock: clk.Clock{Rec: rec, ID: stepClock}},
		{Name: "gpu", Clock: clk.Clock{Rec: rec, ID: tableClock}},
		{Name: "uart", Clock: clk.Clock{Rec: rec, ID: otherClock}},
	}
}
