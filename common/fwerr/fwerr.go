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
// Package fwerr defines the error kinds reported by the resource manager.
//
// Kinds that juju/errors already models (not found, not valid, not
// supported, unauthorized) are used as is; the hardware and capacity kinds
// below follow the same pattern so that errors.Trace and errors.Annotatef
// keep the kind visible through errors.Cause.
package fwerr

import (
	"github.com/juju/errors"
)

type Kind int

const (
	KindNone Kind = iota
	KindInvalidArgument
	KindNotFound
	KindAccessDenied
	KindOutOfRange
	KindExhausted
	KindHardwareTimeout
	KindHardwareFault
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:            "none",
	KindInvalidArgument: "invalid argument",
	KindNotFound:        "not found",
	KindAccessDenied:    "access denied",
	KindOutOfRange:      "out of range",
	KindExhausted:       "exhausted",
	KindHardwareTimeout: "hardware timeout",
	KindHardwareFault:   "hardware fault",
	KindUnknown:         "unknown",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

type outOfRange struct {
	errors.Err
}

// OutOfRangef returns an error whose message is the formatted string
// followed by " out of range".
func OutOfRangef(format string, args ...interface{}) error {
	err := &outOfRange{errors.NewErr(format+" out of range", args...)}
	err.SetLocation(1)
	return err
}

func IsOutOfRange(err error) bool {
	_, ok := errors.Cause(err).(*outOfRange)
	return ok
}

type exhausted struct {
	errors.Err
}

// Exhaustedf reports a fixed-capacity store that cannot grow any further.
func Exhaustedf(format string, args ...interface{}) error {
	err := &exhausted{errors.NewErr(format+" exhausted", args...)}
	err.SetLocation(1)
	return err
}

func IsExhausted(err error) bool {
	_, ok := errors.Cause(err).(*exhausted)
	return ok
}

type hwTimeout struct {
	errors.Err
}

// HardwareTimeoutf reports a polling loop that ran out of its bound.
func HardwareTimeoutf(format string, args ...interface{}) error {
	err := &hwTimeout{errors.NewErr(format+" timed out", args...)}
	err.SetLocation(1)
	return err
}

func IsHardwareTimeout(err error) bool {
	_, ok := errors.Cause(err).(*hwTimeout)
	return ok
}

type hwFault struct {
	errors.Err
}

// HardwareFaultf reports a device that returned an explicit failure status.
func HardwareFaultf(format string, args ...interface{}) error {
	err := &hwFault{errors.NewErr(format, args...)}
	err.SetLocation(1)
	return err
}

func IsHardwareFault(err error) bool {
	_, ok := errors.Cause(err).(*hwFault)
	return ok
}

// KindOf classifies err. Errors that carry no known kind are KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.IsNotValid(err), errors.IsAlreadyExists(err):
		return KindInvalidArgument
	case errors.IsNotFound(err):
		return KindNotFound
	case errors.IsUnauthorized(err), errors.IsNotSupported(err):
		return KindAccessDenied
	case IsOutOfRange(err):
		return KindOutOfRange
	case IsExhausted(err):
		return KindExhausted
	case IsHardwareTimeout(err):
		return KindHardwareTimeout
	case IsHardwareFault(err):
		return KindHardwareFault
	}
	return KindUnknown
}
