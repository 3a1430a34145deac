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
	"github.com/juju/errors"
)

// Agent is a caller of the management interface. Privileged agents may
// touch every clock and reset domain and are the only ones allowed to
// change performance levels and limits; other agents are limited to the
// ids listed for them.
type Agent struct {
	ID         uint32   `yaml:"id"`
	Name       string   `yaml:"name"`
	Privileged bool     `yaml:"privileged,omitempty"`
	Clocks     []uint32 `yaml:"clocks,omitempty"`
	Resets     []uint32 `yaml:"resets,omitempty"`
}

func contains(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (a *Agent) MayUseClock(id uint32) bool {
	return a.Privileged || contains(a.Clocks, id)
}

func (a *Agent) MayReset(id uint32) bool {
	return a.Privileged || contains(a.Resets, id)
}

// Agents is the agent table. Agent ids are dense and start at 0.
type Agents struct {
	list []Agent
}

func NewAgents(list []Agent) (*Agents, error) {
	if len(list) == 0 {
		return nil, errors.NotValidf("empty agent table")
	}
	for i, a := range list {
		if a.ID != uint32(i) {
			return nil, errors.NotValidf("agent %q id %d at position %d", a.Name, a.ID, i)
		}
		if a.Name == "" {
			return nil, errors.NotValidf("agent %d without a name", a.ID)
		}
	}
	return &Agents{list: append([]Agent(nil), list...)}, nil
}

func (as *Agents) Len() int { return len(as.list) }

func (as *Agents) Get(id uint32) (*Agent, error) {
	if id >= uint32(len(as.list)) {
		return nil, errors.NotValidf("agent %d", id)
	}
	return &as.list[id], nil
}
