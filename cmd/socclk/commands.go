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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/socclk/common/ourutil"
	"github.com/mongoose-os/socclk/flags"
	"github.com/mongoose-os/socclk/hw"
	"github.com/mongoose-os/socclk/platform"
	"github.com/mongoose-os/socclk/scmi"
	"github.com/mongoose-os/socclk/version"
)

// boot brings up the board given by the flags. The returned function
// releases the register target.
func boot(ctx context.Context) (*platform.Platform, func(), error) {
	b, err := flags.LoadBoard()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	root, err := loadDT()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	t, release, err := flags.Target()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	p, err := platform.New(b, t)
	if err != nil {
		release()
		return nil, nil, errors.Annotatef(err, "board %s", b.Name)
	}
	if m, ok := t.(*hw.Mem); ok {
		p.Simulate(m)
	}
	if err := p.Boot(ctx, root); err != nil {
		release()
		return nil, nil, errors.Annotatef(err, "boot %s", b.Name)
	}
	return p, release, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if *flags.Timeout > 0 {
		return context.WithTimeout(ctx, *flags.Timeout)
	}
	return context.WithCancel(ctx)
}

func bootCmd(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	p, release, err := boot(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer release()
	color.New(color.FgGreen).Fprintf(out, "%s booted: %d clock providers, %d reset domains\n",
		p.Board.Name, p.Registry.Len(), len(p.Resets.Entries()))
	return nil
}

func clocksCmd(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	p, release, err := boot(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer release()
	return errors.Trace(p.Summary(ctx, out))
}

func resetsCmd(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	p, release, err := boot(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer release()

	args := flag.Args()[1:]
	if len(args) == 0 {
		for _, e := range p.Resets.Entries() {
			held, err := p.Resets.Status(ctx, e)
			if err != nil {
				return errors.Annotatef(err, "%s", e.Name)
			}
			kind := "peripheral"
			if e.Partition {
				kind = "partition"
			}
			state := "running"
			if held {
				state = "held"
			}
			fmt.Fprintf(out, "%-12s %-10s %3d  %s\n", e.Name, kind, e.ID, state)
		}
		return nil
	}
	if len(args) != 2 {
		return errors.Errorf("usage: resets <name> assert|deassert|pulse")
	}
	e, err := p.Resets.Entry(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	switch args[1] {
	case "assert":
		err = p.Resets.Assert(ctx, e)
	case "deassert":
		err = p.Resets.Deassert(ctx, e)
	case "pulse":
		err = p.Resets.Pulse(ctx, e)
	default:
		return errors.NotValidf("reset action %q", args[1])
	}
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("%s: %s done", e.Name, args[1])
	return nil
}

var protocols = map[string]scmi.Protocol{}

func init() {
	for _, p := range []scmi.Protocol{scmi.ProtocolBase, scmi.ProtocolPerf, scmi.ProtocolClock, scmi.ProtocolReset} {
		protocols[p.String()] = p
	}
}

func parseProtocol(s string) (scmi.Protocol, error) {
	if p, ok := protocols[strings.ToLower(s)]; ok {
		return p, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, errors.NotValidf("protocol %q", s)
	}
	return scmi.Protocol(v), nil
}

func parseMessage(args []string) (*scmi.Message, error) {
	if len(args) < 2 {
		return nil, errors.Errorf("protocol and message id required")
	}
	p, err := parseProtocol(args[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	id, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return nil, errors.NotValidf("message id %q", args[1])
	}
	m := &scmi.Message{Header: scmi.Header{Protocol: p, ID: uint8(id)}}
	for _, a := range args[2:] {
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return nil, errors.NotValidf("argument %q", a)
		}
		m.Payload = append(m.Payload, uint32(v))
	}
	return m, nil
}

func callCmd(ctx context.Context) error {
	m, err := parseMessage(flag.Args()[1:])
	if err != nil {
		return errors.Trace(err)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	p, release, err := boot(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer release()

	glog.V(1).Infof("agent %d: %s %v", *flags.Agent, m.Header, m.Payload)
	r := p.Server.Handle(ctx, *flags.Agent, m)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintln(out, string(data))
	return errors.Trace(r.Err())
}

func versionCmd(ctx context.Context) error {
	fmt.Fprintf(out, "%s\nVersion: %s\nBuild ID: %s\n", "The SoC clock and reset manager", version.GetVersion(), version.BuildId)
	if *flags.Verbose {
		data, err := json.MarshalIndent(version.GetVersionJson(), "", "  ")
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Fprintln(out, string(data))
	}
	return nil
}
