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
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/socclk/common/fwerr"
)

func TestUpdateBits(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	m.Poke(0x100, 0xf0f0)

	require.NoError(t, UpdateBits(ctx, m, 0x100, 0xff, 0x3c))
	assert.Equal(t, uint32(0xf03c), m.Peek(0x100))

	require.NoError(t, SetBits(ctx, m, 0x100, 1<<31))
	assert.Equal(t, uint32(0x8000f03c), m.Peek(0x100))

	require.NoError(t, ClearBits(ctx, m, 0x100, 0xf000))
	assert.Equal(t, uint32(0x8000003c), m.Peek(0x100))
	assert.Equal(t, 3, m.Writes(0x100))
}

func TestWaitBitsMirror(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	m.Mirror(0x10, 0x14)

	require.NoError(t, SetBits(ctx, m, 0x10, 1<<5))
	assert.NoError(t, WaitBits(ctx, m, 0x14, 1<<5, 1<<5, 10*time.Microsecond))
}

func TestWaitBitsTimeout(t *testing.T) {
	ctx := context.Background()
	m := NewMem()

	start := time.Now()
	err := WaitBits(ctx, m, 0x14, 1<<5, 1<<5, 50*time.Microsecond)
	assert.True(t, fwerr.IsHardwareTimeout(err), "got %v", err)
	assert.True(t, time.Since(start) >= 50*time.Microsecond)
}

func TestWaitBitsReadFault(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	m.FailAt(0x14, fwerr.HardwareFaultf("bus error"))

	err := WaitBits(ctx, m, 0x14, 1, 1, time.Millisecond)
	assert.True(t, fwerr.IsHardwareFault(err), "got %v", err)

	m.FailAt(0x14, nil)
	m.Poke(0x14, 1)
	assert.NoError(t, WaitBits(ctx, m, 0x14, 1, 1, time.Millisecond))
}

func TestWriteFault(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	m.FailAt(0x20, errors.New("stuck"))
	assert.Error(t, m.WriteReg(ctx, 0x20, 1))
	assert.Equal(t, 0, m.Writes(0x20))
}
