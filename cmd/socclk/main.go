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
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/socclk/common/pflagenv"
	"github.com/mongoose-os/socclk/flags"
	"github.com/mongoose-os/socclk/version"
)

const (
	envPrefix = "SOCCLK_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")

	// Replaced by tests.
	out    io.Writer = os.Stdout
	loadDT           = flags.LoadDeviceTree
)

var (
	// put all commands here
	commands = []command{
		{"boot", bootCmd, `Bring clocks and resets to their boot configuration`, []string{"board", "dtb"}, []string{"devmem", "timeout"}},
		{"clocks", clocksCmd, `Boot and print every clock with its rate, gate state and parent`, []string{"board", "dtb"}, []string{"devmem"}},
		{"resets", resetsCmd, `List reset domains. "resets <name> assert|deassert|pulse" drives one`, []string{"board", "dtb"}, []string{"devmem", "timeout"}},
		{"call", callCmd, `Send a management message: "call <protocol> <message> [args...]"`, []string{"board", "dtb"}, []string{"agent", "timeout"}},
		{"version", versionCmd, `Print version information`, []string{}, []string{}},
	}
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

func run(ctx context.Context) error {
	for _, c := range commands {
		if c.name == flag.Arg(0) {
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			if err := c.handler(ctx); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	usage()
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		if err := versionCmd(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		return
	}

	glog.V(1).Infof("%s", version.GetUserAgent())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
