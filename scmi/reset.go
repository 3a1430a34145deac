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
package scmi

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/reset"
)

// RESET flags.
const (
	ResetAutonomous = 1 << 0
	ResetExplicit   = 1 << 1
	ResetAsync      = 1 << 2
)

// ResetDomains exposes the reset domains of a controller to agents.
// Domain ids are positions in the controller's entry list.
type ResetDomains struct {
	agents *Agents
	ctrl   *reset.Controller
}

func NewResetDomains(agents *Agents, ctrl *reset.Controller) *ResetDomains {
	return &ResetDomains{agents: agents, ctrl: ctrl}
}

func (r *ResetDomains) Len() int { return len(r.ctrl.Entries()) }

func (r *ResetDomains) entry(domain uint32) (reset.Entry, error) {
	entries := r.ctrl.Entries()
	if domain >= uint32(len(entries)) {
		return reset.Entry{}, errors.NotFoundf("reset domain %d", domain)
	}
	return entries[domain], nil
}

// Name returns the name of domain.
func (r *ResetDomains) Name(domain uint32) (string, error) {
	e, err := r.entry(domain)
	return e.Name, errors.Trace(err)
}

// Reset carries out a RESET request. An autonomous reset pulses the line,
// an explicit one asserts it and a request with neither flag deasserts it.
// Only the architectural full reset (state 0) is supported, synchronously.
func (r *ResetDomains) Reset(ctx context.Context, agent, domain, flags, state uint32) error {
	a, err := r.agents.Get(agent)
	if err != nil {
		return errors.Trace(err)
	}
	e, err := r.entry(domain)
	if err != nil {
		return errors.Trace(err)
	}
	if !a.MayReset(domain) {
		return errors.Unauthorizedf("agent %s on reset domain %s", a.Name, e.Name)
	}
	if flags&ResetAsync != 0 {
		return errors.NotSupportedf("asynchronous reset of %s", e.Name)
	}
	if state != 0 {
		return errors.NotValidf("reset state 0x%x of %s", state, e.Name)
	}
	switch {
	case flags&ResetAutonomous != 0:
		return errors.Trace(r.ctrl.Pulse(ctx, e))
	case flags&ResetExplicit != 0:
		return errors.Trace(r.ctrl.Assert(ctx, e))
	}
	return errors.Trace(r.ctrl.Deassert(ctx, e))
}
