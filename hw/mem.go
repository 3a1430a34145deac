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
package hw

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Mem is an in-memory register file. Unwritten registers read as zero.
// Hooks attached with OnWrite emulate hardware side effects such as a status
// register following a control register.
type Mem struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	hooks  map[uint32][]func(m *Mem, v uint32)
	faults map[uint32]error
	writes map[uint32]int
}

func NewMem() *Mem {
	return &Mem{
		regs:   map[uint32]uint32{},
		hooks:  map[uint32][]func(m *Mem, v uint32){},
		faults: map[uint32]error{},
		writes: map[uint32]int{},
	}
}

func (m *Mem) ReadReg(ctx context.Context, addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[addr]; err != nil {
		return 0, err
	}
	return m.regs[addr], nil
}

func (m *Mem) WriteReg(ctx context.Context, addr uint32, value uint32) error {
	m.mu.Lock()
	if err := m.faults[addr]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.regs[addr] = value
	m.writes[addr]++
	hooks := m.hooks[addr]
	m.mu.Unlock()

	glog.V(4).Infof("mem: 0x%08x = 0x%08x", addr, value)
	for _, h := range hooks {
		h(m, value)
	}
	return nil
}

// Peek returns the register value without side effects.
func (m *Mem) Peek(addr uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[addr]
}

// Poke sets the register value without running hooks or counting a write.
func (m *Mem) Poke(addr, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = value
}

// Writes returns how many times addr has been written through WriteReg.
func (m *Mem) Writes(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[addr]
}

func (m *Mem) OnWrite(addr uint32, f func(m *Mem, v uint32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[addr] = append(m.hooks[addr], f)
}

// Mirror makes every write to from show up in to, like a status register
// that reflects its control register immediately.
func (m *Mem) Mirror(from, to uint32) {
	m.OnWrite(from, func(m *Mem, v uint32) {
		m.Poke(to, v)
	})
}

// FailAt makes every access to addr return err. A nil err clears the fault.
func (m *Mem) FailAt(addr uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, addr)
		return
	}
	m.faults[addr] = err
}

var _ Target = (*Mem)(nil)
