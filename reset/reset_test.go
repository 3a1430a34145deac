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
package reset

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/clk/fixed"
	"github.com/mongoose-os/socclk/clk/soc"
	"github.com/mongoose-os/socclk/common/fwerr"
	"github.com/mongoose-os/socclk/hw"
)

const (
	ctrl0, status0 = 0x2000, 0x2004
	ctrl1, status1 = 0x2010, 0x2014
	pwrCtrl, pwrSt = 0x3000, 0x3004
	muxReg         = 0x1020
)

type fixture struct {
	ctx  context.Context
	mem  *hw.Mem
	reg  *clk.Registry
	tree *soc.Tree
	c    *Controller
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{ctx: context.Background(), mem: hw.NewMem(), reg: clk.NewRegistry(4)}
	_, err := fixed.Register(f.reg, 1, "osc1", 40000000)
	require.NoError(t, err)
	f.tree, err = soc.New("soc", []soc.Params{
		{ID: 0, Name: "osc1", Model: soc.ModelExternal, External: "osc1"},
		{ID: 1, Name: "pll", Model: soc.ModelStep, Step: 1000, Min: 1000000, Max: 800000000, Rate: 600000000},
		{ID: 2, Name: "disp", Model: soc.ModelGate, Parents: []clk.ID{0, 1}, Parent: idp(1), Reg: muxReg},
	}, soc.WithTarget(f.mem), soc.WithExternal(f.reg))
	require.NoError(t, err)
	_, err = f.reg.Register(2, "soc", f.tree)
	require.NoError(t, err)

	f.c, err = New(f.mem, f.reg, Config{
		Groups: []Group{
			{Name: "rst1", First: 32, Last: 63, Ctrl: ctrl1, Status: status1},
			{Name: "rst0", First: 0, Last: 31, Ctrl: ctrl0, Status: status0},
		},
		Partitions: []Partition{{ID: 1, Name: "gpu", Ctrl: pwrCtrl, Status: pwrSt, Bit: 4}},
		Entries: []Entry{
			{ID: 3, Name: "uart0"},
			{ID: 40, Name: "display", Mux: &Mux{Clock: ClockRef{"soc", 2}, Safe: ClockRef{"soc", 0}}},
			{ID: 1, Name: "gpu", Partition: true},
		},
		Timeout: 200 * time.Microsecond,
	})
	require.NoError(t, err)
	return f
}

func idp(v clk.ID) *clk.ID { return &v }

func (f *fixture) entry(t *testing.T, name string) Entry {
	e, err := f.c.Entry(name)
	require.NoError(t, err)
	return e
}

func (f *fixture) muxParent(t *testing.T) clk.ID {
	c, err := f.reg.GetByName(f.ctx, "soc", 2)
	require.NoError(t, err)
	p, err := c.Parent(f.ctx)
	require.NoError(t, err)
	return p.ID
}

func TestPeripheral(t *testing.T) {
	f := newFixture(t)
	f.mem.Mirror(ctrl0, status0)
	e := f.entry(t, "uart0")
	require.NoError(t, f.c.Assert(f.ctx, e))
	assert.Equal(t, uint32(1<<3), f.mem.Peek(ctrl0))
	on, err := f.c.Status(f.ctx, e)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, f.c.Deassert(f.ctx, e))
	assert.Equal(t, uint32(0), f.mem.Peek(ctrl0))
	on, err = f.c.Status(f.ctx, e)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, f.c.Pulse(f.ctx, e))
	assert.Equal(t, 4, f.mem.Writes(ctrl0))
}

func TestUnmappedID(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Peripheral(64)
	assert.True(t, errors.IsNotValid(err))
	assert.True(t, errors.IsNotValid(f.c.Assert(f.ctx, Entry{ID: 100, Name: "bogus"})))
	assert.Equal(t, 0, f.mem.Writes(ctrl0)+f.mem.Writes(ctrl1))

	e, err := f.c.Peripheral(33)
	require.NoError(t, err)
	assert.Nil(t, e.Mux)
	e, err = f.c.Peripheral(40)
	require.NoError(t, err)
	assert.Equal(t, "display", e.Name)
}

func TestTimeout(t *testing.T) {
	f := newFixture(t)
	// Status never follows control.
	err := f.c.Assert(f.ctx, f.entry(t, "uart0"))
	assert.True(t, fwerr.IsHardwareTimeout(err))
}

func TestMuxParkedAndRestored(t *testing.T) {
	f := newFixture(t)
	f.mem.Mirror(ctrl1, status1)
	var seen []clk.ID
	f.mem.OnWrite(ctrl1, func(m *hw.Mem, v uint32) {
		seen = append(seen, clk.ID(m.Peek(muxReg)&0xf))
	})
	require.NoError(t, f.c.Pulse(f.ctx, f.entry(t, "display")))
	// Mux index 0 is osc1, the safe source.
	assert.Equal(t, []clk.ID{0, 0}, seen)
	assert.Equal(t, clk.ID(1), f.muxParent(t))
	assert.Equal(t, uint32(1), f.mem.Peek(muxReg))
}

func TestTimeoutWinsOverRestore(t *testing.T) {
	f := newFixture(t)
	err := f.c.Assert(f.ctx, f.entry(t, "display"))
	require.Error(t, err)
	assert.True(t, fwerr.IsHardwareTimeout(err))
	// The restore ran and succeeded.
	assert.Equal(t, clk.ID(1), f.muxParent(t))
	assert.Equal(t, 2, f.mem.Writes(muxReg))
}

func TestParkFailureSkipsReset(t *testing.T) {
	f := newFixture(t)
	f.mem.FailAt(muxReg, fwerr.HardwareFaultf("mux"))
	err := f.c.Assert(f.ctx, f.entry(t, "display"))
	assert.True(t, fwerr.IsHardwareFault(err))
	assert.Equal(t, 0, f.mem.Writes(ctrl1))
}

func TestRestoreFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.mem.Mirror(ctrl1, status1)
	f.mem.OnWrite(ctrl1, func(m *hw.Mem, v uint32) {
		m.FailAt(muxReg, fwerr.HardwareFaultf("mux"))
	})
	err := f.c.Assert(f.ctx, f.entry(t, "display"))
	assert.True(t, fwerr.IsHardwareFault(err))
	assert.Equal(t, uint32(1<<8), f.mem.Peek(ctrl1))
}

func TestPartition(t *testing.T) {
	f := newFixture(t)
	f.mem.Mirror(pwrCtrl, pwrSt)
	e := f.entry(t, "gpu")
	require.NoError(t, f.c.Deassert(f.ctx, e))
	assert.Equal(t, uint32(1<<4), f.mem.Peek(pwrCtrl))
	on, err := f.c.Status(f.ctx, e)
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, f.c.AssertPartition(f.ctx, 1))
	on, err = f.c.Status(f.ctx, e)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, errors.IsNotFound(f.c.DeassertPartition(f.ctx, 9)))
}

func TestInvalidConfig(t *testing.T) {
	for name, cfg := range map[string]Config{
		"overlap": {Groups: []Group{{Name: "a", First: 0, Last: 31}, {Name: "b", First: 31, Last: 40}}},
		"wide":    {Groups: []Group{{Name: "a", First: 0, Last: 32}}},
		"entry":   {Groups: []Group{{Name: "a", First: 0, Last: 7}}, Entries: []Entry{{ID: 8, Name: "x"}}},
		"part":    {Entries: []Entry{{ID: 2, Name: "x", Partition: true}}},
		"bit":     {Partitions: []Partition{{ID: 1, Bit: 32}}},
	} {
		_, err := New(hw.NewMem(), nil, cfg)
		assert.True(t, errors.IsNotValid(err), "%s: %v", name, err)
	}
}
