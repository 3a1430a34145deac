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
// Package scmi implements the platform side of the System Control and
// Management Interface: the base, clock, performance and reset domain
// protocols and the per-agent clock state they need. Carrying messages
// between agents and the platform is left to the caller of Server.Handle.
package scmi

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/common/fwerr"
)

// Status is the signed status word that starts every response payload.
type Status int32

const (
	Success           Status = 0
	NotSupported      Status = -1
	InvalidParameters Status = -2
	Denied            Status = -3
	NotFound          Status = -4
	OutOfRange        Status = -5
	Busy              Status = -6
	CommsError        Status = -7
	GenericError      Status = -8
	HardwareError     Status = -9
	ProtocolError     Status = -10
)

var statusNames = map[Status]string{
	Success:           "SUCCESS",
	NotSupported:      "NOT_SUPPORTED",
	InvalidParameters: "INVALID_PARAMETERS",
	Denied:            "DENIED",
	NotFound:          "NOT_FOUND",
	OutOfRange:        "OUT_OF_RANGE",
	Busy:              "BUSY",
	CommsError:        "COMMS_ERROR",
	GenericError:      "GENERIC_ERROR",
	HardwareError:     "HARDWARE_ERROR",
	ProtocolError:     "PROTOCOL_ERROR",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// StatusOf translates an error into the status reported to the agent.
func StatusOf(err error) Status {
	switch {
	case errors.IsNotSupported(err):
		return NotSupported
	case IsProtocolError(err):
		return ProtocolError
	}
	switch fwerr.KindOf(err) {
	case fwerr.KindNone:
		return Success
	case fwerr.KindInvalidArgument:
		return InvalidParameters
	case fwerr.KindNotFound:
		return NotFound
	case fwerr.KindAccessDenied:
		return Denied
	case fwerr.KindOutOfRange:
		return OutOfRange
	case fwerr.KindExhausted:
		return Busy
	case fwerr.KindHardwareTimeout, fwerr.KindHardwareFault:
		return HardwareError
	}
	return GenericError
}

type protocolError struct {
	errors.Err
}

// ProtocolErrorf reports a malformed message.
func ProtocolErrorf(format string, args ...interface{}) error {
	err := &protocolError{errors.NewErr(format, args...)}
	err.SetLocation(1)
	return err
}

func IsProtocolError(err error) bool {
	_, ok := errors.Cause(err).(*protocolError)
	return ok
}
