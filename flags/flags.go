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
package flags

import (
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/mongoose-os/socclk/common/ourutil"
	"github.com/mongoose-os/socclk/config"
	"github.com/mongoose-os/socclk/hw"
	"github.com/mongoose-os/socclk/hw/devmem"
)

var (
	Board = flag.StringP("board", "b", "", "Board description file (YAML)")
	DTB   = flag.StringP("dtb", "d", "", "Flattened device tree blob")

	Devmem     = flag.Bool("devmem", false, "Access registers through /dev/mem. Without it, an in-memory register file is used")
	DevmemPath = flag.String("devmem-path", devmem.DefaultPath, "Physical memory device")
	DevmemBase = flag.Uint32("devmem-base", 0x60000000, "Base of the register window")
	DevmemSize = flag.Uint32("devmem-size", 0x10100000, "Size of the register window")

	Agent    = flag.Uint32("agent", 0, "Management agent to act as")
	Timeout  = flag.Duration("timeout", 10*time.Second, "Timeout for the whole operation")
	Capacity = flag.Int("capacity", 0, "Override the clock provider capacity of the board")

	Verbose = flag.Bool("verbose", false, "Verbose output")
)

// LoadBoard reads the board given with --board.
func LoadBoard() (*config.Board, error) {
	if *Board == "" {
		return nil, errors.Errorf("--board is required")
	}
	b, err := config.Load(*Board)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if *Capacity > 0 {
		b.Capacity = *Capacity
	}
	return b, nil
}

// LoadDeviceTree reads the blob given with --dtb.
func LoadDeviceTree() (*dt.Node, error) {
	if *DTB == "" {
		return nil, errors.Errorf("--dtb is required")
	}
	f, err := os.Open(*DTB)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	fdt, err := dt.ReadFDT(f)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", *DTB)
	}
	return fdt.RootNode, nil
}

// Target opens the register target selected by the flags. The returned
// function releases it.
func Target() (hw.Target, func(), error) {
	if !*Devmem {
		if *Verbose {
			ourutil.Reportf("Using an in-memory register file")
		}
		return hw.NewMem(), func() {}, nil
	}
	w, err := devmem.Open(*DevmemPath, *DevmemBase, *DevmemSize)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "%s", *DevmemPath)
	}
	return w, func() {
		if err := w.Close(); err != nil {
			glog.Errorf("%s: %s", *DevmemPath, err)
		}
	}, nil
}
