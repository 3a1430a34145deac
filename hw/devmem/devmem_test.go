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
//go:build linux

package devmem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A regular file stands in for /dev/mem: the mapping code is the same.
func newFileWindow(t *testing.T, size uint32) *Window {
	fn := filepath.Join(t.TempDir(), "mem")
	require.NoError(t, os.WriteFile(fn, make([]byte, size), 0600))
	w, err := Open(fn, 0, size)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	w := newFileWindow(t, uint32(os.Getpagesize()))

	require.NoError(t, w.WriteReg(ctx, 0x10, 0xdeadbeef))
	v, err := w.ReadReg(ctx, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)

	v, err = w.ReadReg(ctx, 0x14)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestBounds(t *testing.T) {
	ctx := context.Background()
	size := uint32(os.Getpagesize())
	w := newFileWindow(t, size)

	_, err := w.ReadReg(ctx, 0x11)
	assert.True(t, errors.IsNotValid(err), "got %v", err)

	_, err = w.ReadReg(ctx, size)
	assert.True(t, errors.IsNotValid(err), "got %v", err)

	assert.NoError(t, w.WriteReg(ctx, size-4, 1))
}

func TestUnalignedBase(t *testing.T) {
	_, err := Open("/nonexistent", 0x123, 0x1000)
	assert.True(t, errors.IsNotValid(err), "got %v", err)
}

func TestTinyWindow(t *testing.T) {
	for _, size := range []uint32{0, 2} {
		_, err := Open("/nonexistent", 0, size)
		assert.True(t, errors.IsNotValid(err), "size %d: got %v", size, err)
	}
}

func TestClosed(t *testing.T) {
	w := newFileWindow(t, uint32(os.Getpagesize()))
	require.NoError(t, w.Close())
	_, err := w.ReadReg(context.Background(), 0)
	assert.Error(t, err)
	assert.NoError(t, w.Close())
}
