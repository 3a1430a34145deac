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
package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/socclk/common/fwerr"
)

type rec struct {
	id   uint32
	name string
}

func TestAllocateUntilExhausted(t *testing.T) {
	a := New[rec]("test", 3)
	var hs []Handle
	for i := 0; i < 3; i++ {
		h, r, err := a.Allocate()
		require.NoError(t, err)
		r.id = uint32(i + 10)
		hs = append(hs, h)
	}
	_, r, err := a.Allocate()
	assert.Nil(t, r)
	assert.True(t, fwerr.IsExhausted(err), "got %v", err)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 3, a.Cap())

	for i, h := range hs {
		assert.NotEqual(t, NoHandle, h)
		assert.Equal(t, uint32(i+10), a.Get(h).id)
	}
}

func TestHandlesAreStable(t *testing.T) {
	a := New[rec]("test", 8)
	h1, r1, err := a.Allocate()
	require.NoError(t, err)
	r1.name = "osc1"
	for i := 0; i < 6; i++ {
		_, _, err := a.Allocate()
		require.NoError(t, err)
	}
	assert.Same(t, r1, a.Get(h1))
	assert.Equal(t, "osc1", a.Get(h1).name)
}

func TestGetInvalid(t *testing.T) {
	a := New[rec]("test", 2)
	assert.Nil(t, a.Get(NoHandle))
	assert.Nil(t, a.Get(1))
	_, _, err := a.Allocate()
	require.NoError(t, err)
	assert.NotNil(t, a.Get(1))
	assert.Nil(t, a.Get(2))
}

func TestEach(t *testing.T) {
	a := New[rec]("test", 4)
	for i := 0; i < 4; i++ {
		_, r, _ := a.Allocate()
		r.id = uint32(i)
	}
	var seen []uint32
	a.Each(func(h Handle, r *rec) bool {
		seen = append(seen, r.id)
		return r.id < 2
	})
	assert.Equal(t, []uint32{0, 1, 2}, seen)
}

func TestZeroCapacity(t *testing.T) {
	a := New[rec]("empty", 0)
	_, _, err := a.Allocate()
	assert.True(t, fwerr.IsExhausted(err))
}
