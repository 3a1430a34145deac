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
// Package config loads the board description: the SoC clock tree, reset
// lines, and what the management interface exposes to which agent.
package config

import (
	"io/ioutil"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/clk/soc"
	"github.com/mongoose-os/socclk/reset"
	"github.com/mongoose-os/socclk/scmi"
	"github.com/mongoose-os/socclk/version"
)

const (
	DefaultCapacity   = 32
	DefaultCompatible = "socclk,car"
)

type Board struct {
	Name string `yaml:"name"`
	// MinVersion is the oldest socclk release that understands this file.
	MinVersion string `yaml:"min_version,omitempty"`
	// Capacity is the number of clock providers the registry can hold.
	Capacity int          `yaml:"capacity,omitempty"`
	Platform Platform     `yaml:"platform"`
	Resets   reset.Config `yaml:"resets"`
	SCMI     SCMI         `yaml:"scmi"`
}

// Platform describes the managed clock tree and the device tree node it
// is bound to.
type Platform struct {
	Compatible string       `yaml:"compatible,omitempty"`
	Clocks     []soc.Params `yaml:"clocks"`
	// Ids at or above RemoteBase are handled by the SCMI clock tracker
	// on behalf of RemoteAgent. 0 disables forwarding.
	RemoteBase  clk.ID `yaml:"remote_base,omitempty"`
	RemoteAgent uint32 `yaml:"remote_agent,omitempty"`
}

// ClockRef names a clock by provider and provider-local id.
type ClockRef struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	ID       clk.ID `yaml:"id"`
}

type SCMI struct {
	Vendor    string       `yaml:"vendor,omitempty"`
	SubVendor string       `yaml:"sub_vendor,omitempty"`
	Agents    []scmi.Agent `yaml:"agents"`
	Clocks    []ClockRef   `yaml:"clocks,omitempty"`
	Perf      []ClockRef   `yaml:"perf,omitempty"`
}

// Parse decodes and checks a board description.
func Parse(data []byte) (*Board, error) {
	b := &Board{}
	if err := yaml.UnmarshalStrict(data, b); err != nil {
		return nil, errors.Annotatef(err, "parsing board description")
	}
	b.setDefaults()
	if err := b.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return b, nil
}

func Load(path string) (*Board, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading board description")
	}
	b, err := Parse(data)
	return b, errors.Annotatef(err, "%s", path)
}

func (b *Board) setDefaults() {
	if b.Capacity == 0 {
		b.Capacity = DefaultCapacity
	}
	if b.Platform.Compatible == "" {
		b.Platform.Compatible = DefaultCompatible
	}
	if b.SCMI.Vendor == "" {
		b.SCMI.Vendor = "Cesanta"
	}
}

// Validate checks what can be checked without building anything; the
// components validate their own parts when they are created.
func (b *Board) Validate() error {
	if !version.AtLeast(b.MinVersion) {
		return errors.Errorf("board %q needs socclk %s or newer (this is %s)", b.Name, b.MinVersion, version.Version)
	}
	if b.Capacity < 0 {
		return errors.NotValidf("capacity %d", b.Capacity)
	}
	if len(b.SCMI.Agents) == 0 {
		return errors.NotValidf("board %q without agents", b.Name)
	}
	if b.Platform.RemoteBase != 0 && b.Platform.RemoteAgent >= uint32(len(b.SCMI.Agents)) {
		return errors.NotValidf("remote agent %d", b.Platform.RemoteAgent)
	}
	names := map[string]bool{}
	for _, c := range b.SCMI.Clocks {
		if c.Name == "" || c.Provider == "" {
			return errors.NotValidf("exposed clock %+v", c)
		}
		if names[c.Name] {
			return errors.AlreadyExistsf("exposed clock %q", c.Name)
		}
		names[c.Name] = true
	}
	return nil
}
