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
package topology

import (
	"encoding/binary"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/mongoose-os/socclk/clk"
	"github.com/mongoose-os/socclk/clk/fixed"
)

// Providers lists the clock drivers registered from the device tree.
type Providers struct {
	Fixed    []*clk.Record
	Platform *clk.Record
}

// NodeName strips the unit address from a node name: "osc@0" -> "osc".
func NodeName(n *dt.Node) string {
	if i := strings.IndexByte(n.Name, '@'); i >= 0 {
		return n.Name[:i]
	}
	return n.Name
}

// Compatible reports whether n lists compat in its compatible property.
func Compatible(n *dt.Node, compat string) bool {
	p, ok := n.LookProperty("compatible")
	if !ok {
		return false
	}
	for _, s := range strings.Split(string(p.Value), "\x00") {
		if s == compat {
			return true
		}
	}
	return false
}

// Phandle returns the phandle of n, or clk.NoPhandle if it has none.
func Phandle(n *dt.Node) (clk.Phandle, error) {
	for _, name := range []string{"phandle", "linux,phandle"} {
		p, ok := n.LookProperty(name)
		if !ok {
			continue
		}
		if len(p.Value) != 4 {
			return clk.NoPhandle, errors.NotValidf("%s: %s of %d bytes", n.Name, name, len(p.Value))
		}
		return clk.Phandle(binary.BigEndian.Uint32(p.Value)), nil
	}
	return clk.NoPhandle, nil
}

// U64 reads a one or two cell integer property.
func U64(n *dt.Node, name string) (uint64, error) {
	p, ok := n.LookProperty(name)
	if !ok {
		return 0, errors.NotFoundf("%s: %s", n.Name, name)
	}
	switch len(p.Value) {
	case 4:
		return uint64(binary.BigEndian.Uint32(p.Value)), nil
	case 8:
		return binary.BigEndian.Uint64(p.Value), nil
	}
	return 0, errors.NotValidf("%s: %s of %d bytes", n.Name, name, len(p.Value))
}

// Discover registers every fixed-clock node under root with reg, and the
// node compatible with platformCompat as platform. There must be exactly
// one such node unless platform is nil, in which case none is looked for.
func Discover(root *dt.Node, reg *clk.Registry, platformCompat string, platform clk.Driver) (*Providers, error) {
	res := &Providers{}
	var platformNode *dt.Node
	err := root.Walk(func(n *dt.Node) error {
		switch {
		case Compatible(n, fixed.Compatible):
			rec, err := registerFixed(n, reg)
			if err != nil {
				return errors.Trace(err)
			}
			res.Fixed = append(res.Fixed, rec)
		case platform != nil && Compatible(n, platformCompat):
			if platformNode != nil {
				return errors.NotValidf("second %s node %s (first: %s)", platformCompat, n.Name, platformNode.Name)
			}
			platformNode = n
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if platform == nil {
		return res, nil
	}
	if platformNode == nil {
		return nil, errors.NotFoundf("%s node", platformCompat)
	}
	ph, err := Phandle(platformNode)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res.Platform, err = reg.Register(ph, NodeName(platformNode), platform)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", platformNode.Name)
	}
	glog.V(1).Infof("%s: %s clock provider, phandle %d", platformNode.Name, platform.Kind(), ph)
	return res, nil
}

func registerFixed(n *dt.Node, reg *clk.Registry) (*clk.Record, error) {
	ph, err := Phandle(n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rate, err := U64(n, "clock-frequency")
	if err != nil {
		return nil, errors.Trace(err)
	}
	rec, err := fixed.Register(reg, ph, NodeName(n), rate)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", n.Name)
	}
	glog.V(1).Infof("%s: fixed clock %d Hz, phandle %d", n.Name, rate, ph)
	return rec, nil
}
