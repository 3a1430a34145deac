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
// Package hw is the register access layer. Everything that touches
// hardware goes through a Target, so the same code runs against /dev/mem
// on a live board and against an in-memory register file in tests.
package hw

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/common/fwerr"
)

type RegReader interface {
	// ReadReg reads a single 32-bit register.
	ReadReg(ctx context.Context, addr uint32) (uint32, error)
}

type RegWriter interface {
	// WriteReg writes a single 32-bit register.
	WriteReg(ctx context.Context, addr uint32, value uint32) error
}

type Target interface {
	RegReader
	RegWriter
}

// UpdateBits does a read-modify-write of the bits in mask.
func UpdateBits(ctx context.Context, t Target, addr, mask, value uint32) error {
	v, err := t.ReadReg(ctx, addr)
	if err != nil {
		return errors.Trace(err)
	}
	nv := (v &^ mask) | (value & mask)
	glog.V(4).Infof("0x%08x: 0x%08x -> 0x%08x", addr, v, nv)
	return errors.Trace(t.WriteReg(ctx, addr, nv))
}

func SetBits(ctx context.Context, t Target, addr, bits uint32) error {
	return UpdateBits(ctx, t, addr, bits, bits)
}

func ClearBits(ctx context.Context, t Target, addr, bits uint32) error {
	return UpdateBits(ctx, t, addr, bits, 0)
}

// WaitBits busy-polls addr until (value & mask) == want. The register is
// read at least once; once timeout has elapsed the wait fails with a
// hardware timeout. There is no retry beyond the bound.
func WaitBits(ctx context.Context, r RegReader, addr, mask, want uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for polls := 1; ; polls++ {
		v, err := r.ReadReg(ctx, addr)
		if err != nil {
			return errors.Trace(err)
		}
		if v&mask == want {
			glog.V(4).Infof("0x%08x & 0x%08x == 0x%08x after %d polls", addr, mask, want, polls)
			return nil
		}
		if time.Now().After(deadline) {
			return fwerr.HardwareTimeoutf(
				"wait for 0x%08x & 0x%08x == 0x%08x (last 0x%08x, %d polls, %s)",
				addr, mask, want, v, polls, timeout)
		}
	}
}
