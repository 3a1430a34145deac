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
package ourutil

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
)

// Reportf prints a progress line for the operator and mirrors it to the log.
func Reportf(f string, args ...interface{}) {
	Freportf(os.Stderr, f, args...)
}

func Freportf(w io.Writer, f string, args ...interface{}) {
	fmt.Fprintf(w, f+"\n", args...)
	glog.Infof(f, args...)
}

// FormatHz renders a frequency with the largest unit that keeps it exact,
// e.g. 40000000 -> "40 MHz", 32768 -> "32768 Hz".
func FormatHz(hz uint64) string {
	switch {
	case hz == 0:
		return "0 Hz"
	case hz%1000000000 == 0:
		return fmt.Sprintf("%d GHz", hz/1000000000)
	case hz%1000000 == 0:
		return fmt.Sprintf("%d MHz", hz/1000000)
	case hz%1000 == 0:
		return fmt.Sprintf("%d kHz", hz/1000)
	}
	return fmt.Sprintf("%d Hz", hz)
}
