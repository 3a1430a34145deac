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
// Package soc is the managed SoC clock tree driver. The tree is described
// by a parameter table: every clock has an id, a rate model, an optional
// set of mux inputs given as ids of other clocks in the tree, and an
// optional gate. Parent links are always ids, never pointers.
package soc

import (
	"sort"

	"github.com/juju/errors"

	"github.com/mongoose-os/socclk/clk"
)

type Model string

const (
	// ModelGate passes the parent rate through (mux and/or gate only).
	ModelGate Model = "gate"
	// ModelDivider runs at parent/div, div in [1, MaxDiv].
	ModelDivider Model = "divider"
	// ModelStep runs at any multiple of Step in [Min, Max], independent of
	// the parent rate (PLL-like).
	ModelStep Model = "step"
	// ModelTable runs at one of Rates.
	ModelTable Model = "table"
	// ModelExternal is an input of the tree fed by another registered
	// driver, named by External and ExternalID.
	ModelExternal Model = "external"
)

// MaxDivider bounds ModelDivider so that rate lists stay small.
const MaxDivider = 256

// maxListedSteps is the longest rate list a ModelStep clock enumerates.
const maxListedSteps = 256

type Params struct {
	ID      clk.ID   `yaml:"id"`
	Name    string   `yaml:"name"`
	Model   Model    `yaml:"model"`
	Parents []clk.ID `yaml:"parents,omitempty"`
	// Parent is the mux input selected at boot. It defaults to Parents[0].
	Parent  *clk.ID  `yaml:"parent,omitempty"`

	MaxDiv uint32 `yaml:"max_div,omitempty"`
	Div    uint32 `yaml:"div,omitempty"`

	Step  uint64   `yaml:"step,omitempty"`
	Min   uint64   `yaml:"min,omitempty"`
	Max   uint64   `yaml:"max,omitempty"`
	Rate  uint64   `yaml:"rate,omitempty"`
	Rates []uint64 `yaml:"rates,omitempty"`

	External   string `yaml:"external,omitempty"`
	ExternalID clk.ID `yaml:"external_id,omitempty"`

	Gate bool `yaml:"gate,omitempty"`
	// On is the gate state at boot.
	On bool `yaml:"on,omitempty"`

	// Reg is the control register of this clock; 0 means the clock has no
	// programmable hardware (state is tracked in memory only).
	Reg uint32 `yaml:"reg,omitempty"`
}

func (p *Params) validate(ids map[clk.ID]bool) error {
	if p.Name == "" {
		return errors.NotValidf("clock %d without a name", p.ID)
	}
	for _, pid := range p.Parents {
		if !ids[pid] {
			return errors.NotValidf("clock %q parent %d", p.Name, pid)
		}
		if pid == p.ID {
			return errors.NotValidf("clock %q as its own parent", p.Name)
		}
	}
	if len(p.Parents) > ctrlMuxMask+1 {
		return errors.NotValidf("clock %q with %d mux inputs", p.Name, len(p.Parents))
	}
	if p.Parent != nil && p.parentIndex(*p.Parent) < 0 {
		return errors.NotValidf("clock %q boot parent %d", p.Name, *p.Parent)
	}
	switch p.Model {
	case ModelGate:
		if len(p.Parents) == 0 {
			return errors.NotValidf("gate clock %q without parents", p.Name)
		}
	case ModelDivider:
		if len(p.Parents) == 0 {
			return errors.NotValidf("divider clock %q without parents", p.Name)
		}
		if p.MaxDiv == 0 || p.MaxDiv > MaxDivider {
			return errors.NotValidf("divider clock %q max_div %d", p.Name, p.MaxDiv)
		}
		if p.Div > p.MaxDiv {
			return errors.NotValidf("divider clock %q div %d", p.Name, p.Div)
		}
	case ModelStep:
		if p.Step == 0 || p.Min == 0 || p.Max < p.Min || p.Min%p.Step != 0 || p.Max%p.Step != 0 {
			return errors.NotValidf("step clock %q range [%d, %d] step %d", p.Name, p.Min, p.Max, p.Step)
		}
		if p.Rate != 0 && (p.Rate < p.Min || p.Rate > p.Max || p.Rate%p.Step != 0) {
			return errors.NotValidf("step clock %q boot rate %d", p.Name, p.Rate)
		}
	case ModelTable:
		if len(p.Rates) == 0 {
			return errors.NotValidf("table clock %q without rates", p.Name)
		}
		if !sort.SliceIsSorted(p.Rates, func(i, j int) bool { return p.Rates[i] < p.Rates[j] }) {
			return errors.NotValidf("table clock %q rates (not ascending)", p.Name)
		}
	case ModelExternal:
		if p.External == "" {
			return errors.NotValidf("external clock %q without a driver name", p.Name)
		}
		if len(p.Parents) != 0 {
			return errors.NotValidf("external clock %q with parents", p.Name)
		}
	default:
		return errors.NotValidf("clock %q model %q", p.Name, p.Model)
	}
	return nil
}

func (p *Params) parentIndex(id clk.ID) int {
	for i, pid := range p.Parents {
		if pid == id {
			return i
		}
	}
	return -1
}
