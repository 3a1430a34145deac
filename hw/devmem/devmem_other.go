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
//go:build !linux

package devmem

import (
	"context"

	"github.com/juju/errors"
)

const DefaultPath = "/dev/mem"

type Window struct {
	Base uint32
	Size uint32
}

func Open(path string, base, size uint32) (*Window, error) {
	return nil, errors.NotSupportedf("/dev/mem access on this OS")
}

func (w *Window) Close() error { return nil }

func (w *Window) ReadReg(ctx context.Context, addr uint32) (uint32, error) {
	return 0, errors.NotSupportedf("/dev/mem access on this OS")
}

func (w *Window) WriteReg(ctx context.Context, addr uint32, value uint32) error {
	return errors.NotSupportedf("/dev/mem access on this OS")
}
