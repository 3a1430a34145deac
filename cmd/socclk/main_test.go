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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io/ioutil"
	"testing"

	"github.com/juju/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/mongoose-os/socclk/flags"
	"github.com/mongoose-os/socclk/scmi"
)

func prop(name string, vals ...uint32) dt.Property {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(b[i*4:], v)
	}
	return dt.Property{Name: name, Value: b}
}

func str(name, value string) dt.Property {
	return dt.Property{Name: name, Value: []byte(value + "\x00")}
}

func evb1Tree() (*dt.Node, error) {
	return &dt.Node{
		Name: "/",
		Children: []*dt.Node{
			{Name: "osc", Properties: []dt.Property{
				str("compatible", "fixed-clock"), prop("phandle", 1), prop("clock-frequency", 24000000),
			}},
			{Name: "rtc", Properties: []dt.Property{
				str("compatible", "fixed-clock"), prop("phandle", 2), prop("clock-frequency", 32768),
			}},
			{Name: "clocks@60000000", Properties: []dt.Property{
				str("compatible", "socclk,car"), prop("phandle", 3), prop("#clock-cells", 1),
			}},
			{Name: "serial@60100000", Properties: []dt.Property{
				prop("assigned-clocks", 3, 7),
				prop("assigned-clock-rates", 100000000),
			}},
		},
	}, nil
}

// setup points the command at the evaluation board and captures its
// output. args are the positional arguments, command name included.
func setup(t *testing.T, args ...string) *bytes.Buffer {
	var buf bytes.Buffer
	oldOut, oldLoad, oldBoard, oldAgent := out, loadDT, *flags.Board, *flags.Agent
	t.Cleanup(func() {
		out, loadDT, *flags.Board, *flags.Agent = oldOut, oldLoad, oldBoard, oldAgent
	})
	out, loadDT = &buf, evb1Tree
	*flags.Board = "../../config/testdata/board.yaml"
	require.NoError(t, flag.CommandLine.Parse(args))
	return &buf
}

func TestClocks(t *testing.T) {
	buf := setup(t, "clocks")
	require.NoError(t, clocksCmd(context.Background()))

	want, err := ioutil.ReadFile("testdata/clocks.golden")
	require.NoError(t, err)
	if got := buf.String(); got != string(want) {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(string(want), got, false)
		t.Errorf("clock summary differs from testdata/clocks.golden:\n%s", dmp.DiffPrettyText(diffs))
	}
}

func TestCall(t *testing.T) {
	buf := setup(t, "call", "clock", "6", "0")
	require.NoError(t, callCmd(context.Background()))

	var r scmi.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &r))
	assert.Equal(t, scmi.Success, r.Status)
	assert.Equal(t, scmi.ProtocolClock, r.Header.Protocol)
	assert.Equal(t, []uint32{1000000000, 0}, r.Payload)
}

func TestCallDenied(t *testing.T) {
	buf := setup(t, "call", "0x14", "6", "0")
	*flags.Agent = 2
	err := callCmd(context.Background())
	require.Error(t, err)
	se, ok := errors.Cause(err).(*scmi.StatusError)
	require.True(t, ok, "%s", err)
	assert.Equal(t, scmi.Denied, se.Status)
	assert.Contains(t, buf.String(), `"status": -3`)
}

func TestParseMessage(t *testing.T) {
	m, err := parseMessage([]string{"perf", "7", "1", "0x3e8"})
	require.NoError(t, err)
	assert.Equal(t, scmi.ProtocolPerf, m.Header.Protocol)
	assert.Equal(t, uint8(7), m.Header.ID)
	assert.Equal(t, []uint32{1, 1000}, m.Payload)

	for _, args := range [][]string{
		{"clock"},
		{"nosuch", "1"},
		{"clock", "300"},
		{"clock", "1", "x"},
	} {
		_, err := parseMessage(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestResets(t *testing.T) {
	buf := setup(t, "resets")
	require.NoError(t, resetsCmd(context.Background()))
	assert.Equal(t, ""+
		"uart0        peripheral   3  running\n"+
		"display      peripheral  40  running\n"+
		"gpu          partition    0  held\n", buf.String())

	setup(t, "resets", "display", "pulse")
	require.NoError(t, resetsCmd(context.Background()))

	setup(t, "resets", "display", "reboot")
	assert.True(t, errors.IsNotValid(errors.Cause(resetsCmd(context.Background()))))
}

func TestBootMissingTree(t *testing.T) {
	setup(t, "boot")
	loadDT = func() (*dt.Node, error) { return &dt.Node{Name: "/"}, nil }
	err := bootCmd(context.Background())
	assert.True(t, errors.IsNotFound(errors.Cause(err)), "%s", err)
}

func TestVersion(t *testing.T) {
	buf := setup(t, "version")
	require.NoError(t, versionCmd(context.Background()))
	assert.Contains(t, buf.String(), "Version: latest")
}

func TestCommandHelp(t *testing.T) {
	var resets command
	for _, c := range commands {
		if c.name == "resets" {
			resets = c
		}
	}
	require.Equal(t, "resets", resets.name)
	var buf bytes.Buffer
	commandHelp(&buf, "socclk", resets)
	help := buf.String()
	assert.Contains(t, help, "socclk resets [flags]\n\nList reset domains.")
	assert.Contains(t, help, "  --board <string>\tBoard description file (YAML) (required)\n")
	assert.Contains(t, help, "  --timeout <duration>\tTimeout for the whole operation [\"10s\", $SOCCLK_TIMEOUT]\n")

	buf.Reset()
	commandHelp(&buf, "socclk", command{name: "version", short: "Print version information"})
	assert.Equal(t, "socclk version [flags]\n\nPrint version information.\n", buf.String())
}
