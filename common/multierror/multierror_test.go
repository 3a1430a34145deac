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
package multierror

import (
	"testing"

	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/common/fwerr"
)

func TestAppend(t *testing.T) {
	var err error
	err = Append(err, errors.Errorf("an error"))
	if err == nil {
		t.Fatal(err)
	}

	if got, want := err.Error(), `an error`; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}

	err = Append(err, errors.Errorf("another error"))
	if got, want := err.Error(), `2 error(s) occurred:
an error
another error`; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}

	err = errors.Errorf("old error")
	err = Append(err, errors.Errorf("new error"))
	if err == nil {
		t.Fatal(err)
	}

	if got, want := err.Error(), `2 error(s) occurred:
old error
new error`; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestAppendNil(t *testing.T) {
	if err := Append(nil, nil, nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	err := Append(nil, nil, errors.Errorf("only"))
	if got := len(err.(*Error).Errors()); got != 1 {
		t.Errorf("got %d errors, want 1", got)
	}
}

func TestFirstAndCause(t *testing.T) {
	first := fwerr.HardwareTimeoutf("reset 3")
	var err error
	err = Append(err, first)
	err = Append(err, errors.NotFoundf("mux"))

	if got := First(err); got != first {
		t.Errorf("First: got %v, want %v", got, first)
	}
	if !fwerr.IsHardwareTimeout(err) {
		t.Errorf("cause of %v is not a timeout", err)
	}
	if got, want := fwerr.KindOf(err), fwerr.KindHardwareTimeout; got != want {
		t.Errorf("kind: got %s, want %s", got, want)
	}

	plain := errors.Errorf("plain")
	if got := First(plain); got != plain {
		t.Errorf("First of plain error: got %v", got)
	}
	if First(nil) != nil {
		t.Errorf("First(nil) is not nil")
	}
}

func TestAppendFlattens(t *testing.T) {
	inner := Append(nil, errors.Errorf("a"), errors.Errorf("b"))
	err := Append(errors.Errorf("first"), inner, nil)
	if got := len(err.(*Error).Errors()); got != 3 {
		t.Errorf("got %d errors, want 3", got)
	}
}
