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

// Package devmem maps a physical register window through /dev/mem.
package devmem

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"

	"github.com/mongoose-os/socclk/hw"
)

const DefaultPath = "/dev/mem"

// Window is a mapping of [Base, Base+Size) physical addresses. Addresses
// passed to ReadReg/WriteReg are physical.
type Window struct {
	Base uint32
	Size uint32

	data []byte
}

func Open(path string, base, size uint32) (*Window, error) {
	pageSize := uint32(os.Getpagesize())
	if base%pageSize != 0 {
		return nil, errors.NotValidf("base 0x%08x (page size 0x%x)", base, pageSize)
	}
	if size < 4 {
		return nil, errors.NotValidf("window size 0x%x", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "could not open %q", path)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), int64(base), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Annotatef(err, "could not mmap 0x%08x+0x%x", base, size)
	}
	glog.V(1).Infof("devmem: mapped 0x%08x+0x%x from %s", base, size, path)

	w := &Window{Base: base, Size: size, data: data}
	runtime.SetFinalizer(w, (*Window).Close)
	return w, nil
}

func (w *Window) Close() error {
	if w == nil || w.data == nil {
		return nil
	}
	data := w.data
	w.data = nil
	runtime.SetFinalizer(w, nil)
	return errors.Trace(unix.Munmap(data))
}

func (w *Window) reg(addr uint32) (*uint32, error) {
	if w.data == nil {
		return nil, errors.Errorf("devmem: closed")
	}
	if addr%4 != 0 {
		return nil, errors.NotValidf("unaligned register address 0x%08x", addr)
	}
	if w.Size < 4 || addr < w.Base || addr-w.Base > w.Size-4 {
		return nil, errors.NotValidf("register 0x%08x outside 0x%08x+0x%x", addr, w.Base, w.Size)
	}
	return (*uint32)(unsafe.Pointer(&w.data[addr-w.Base])), nil
}

func (w *Window) ReadReg(ctx context.Context, addr uint32) (uint32, error) {
	p, err := w.reg(addr)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return atomic.LoadUint32(p), nil
}

func (w *Window) WriteReg(ctx context.Context, addr uint32, value uint32) error {
	p, err := w.reg(addr)
	if err != nil {
		return errors.Trace(err)
	}
	atomic.StoreUint32(p, value)
	return nil
}

var _ hw.Target = (*Window)(nil)
