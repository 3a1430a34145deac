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
// Package multierror collects the failures of best-effort sequences: every
// step runs, every failure is kept, and the first one decides the outcome.
package multierror

import (
	"bytes"
	"fmt"

	"github.com/juju/errors"
)

// Error bundles multiple errors and make them obey the error interface.
// Its cause is the cause of the first bundled error.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "%d error(s) occurred:", len(e.errs))
	for _, err := range e.errs {
		fmt.Fprintf(buf, "\n%s", err)
	}
	return buf.String()
}

// Cause makes errors.Cause see through the bundle to the first failure.
func (e *Error) Cause() error {
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Cause(e.errs[0])
}

// Errors returns the bundled errors in the order they were appended.
func (e *Error) Errors() []error {
	return e.errs
}

// Append adds the non-nil errs to err. err can be nil, a *Error or any other
// error; bundles in errs are flattened. The result is nil only if err is nil
// and all errs are nil.
func Append(err error, errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		switch e := e.(type) {
		case nil:
		case *Error:
			nonNil = append(nonNil, e.errs...)
		default:
			nonNil = append(nonNil, e)
		}
	}
	if err == nil {
		if len(nonNil) == 0 {
			return nil
		}
		return &Error{nonNil}
	}
	switch err := err.(type) {
	case *Error:
		err.errs = append(err.errs, nonNil...)
		return err
	default:
		return &Error{append([]error{err}, nonNil...)}
	}
}

// First returns the first failure recorded in err, or err itself if it is
// not a bundle.
func First(err error) error {
	if me, ok := err.(*Error); ok {
		if len(me.errs) == 0 {
			return nil
		}
		return me.errs[0]
	}
	return err
}
