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
// Package arena provides fixed-capacity, append-only storage. Slots are
// handed out sequentially and are never reclaimed.
package arena

import (
	"github.com/mongoose-os/socclk/common/fwerr"
)

// Handle is a stable index into an Arena. The zero Handle is never handed
// out, so it can be used to mean "no slot".
type Handle uint32

const NoHandle Handle = 0

type Arena[T any] struct {
	name  string
	slots []T
}

// New returns an arena able to hold capacity values. The name only shows up
// in error messages.
func New[T any](name string, capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena[T]{name: name, slots: make([]T, 0, capacity)}
}

// Allocate reserves the next slot. Running out of slots is a build-time
// misconfiguration and is reported as an exhausted error.
func (a *Arena[T]) Allocate() (Handle, *T, error) {
	if len(a.slots) == cap(a.slots) {
		return NoHandle, nil, fwerr.Exhaustedf("%s arena (capacity %d)", a.name, cap(a.slots))
	}
	var zero T
	a.slots = append(a.slots, zero)
	n := len(a.slots)
	return Handle(n), &a.slots[n-1], nil
}

// Get returns the slot for h, or nil if h was never allocated.
func (a *Arena[T]) Get(h Handle) *T {
	if h == NoHandle || int(h) > len(a.slots) {
		return nil
	}
	return &a.slots[h-1]
}

func (a *Arena[T]) Len() int { return len(a.slots) }

func (a *Arena[T]) Cap() int { return cap(a.slots) }

// Each calls f for every allocated slot in allocation order until f returns
// false.
func (a *Arena[T]) Each(f func(h Handle, v *T) bool) {
	for i := range a.slots {
		if !f(Handle(i+1), &a.slots[i]) {
			return
		}
	}
}
