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
// Package spinlock provides a busy-waiting lock for tables shared between
// cores. It must only be held around short table reads and writes.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

type Lock struct {
	state uint32
}

func (l *Lock) Lock() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *Lock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

func (l *Lock) Unlock() {
	if !atomic.CompareAndSwapUint32(&l.state, 1, 0) {
		panic("spinlock: unlock of unlocked lock")
	}
}
