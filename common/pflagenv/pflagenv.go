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
// Package pflagenv fills flags that were not given on the command line from
// environment variables named after them: with prefix "SOCCLK_", the flag
// --poll-timeout is read from SOCCLK_POLL_TIMEOUT.
package pflagenv

import (
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// LookupEnv is the environment accessor; tests replace it.
var LookupEnv = os.LookupEnv

// ParseFlagSet must be called after fs.Parse. Flags set explicitly keep
// their command line value. A malformed environment value is an error
// naming both the variable and the flag.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) error {
	// pflag cannot tell a flag set to its default from a flag that was never
	// given, so collect everything and drop what Visit reports as set.
	unset := map[string]*pflag.Flag{}
	fs.VisitAll(func(f *pflag.Flag) {
		unset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(unset, f.Name)
	})

	names := make([]string, 0, len(unset))
	for name := range unset {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := unset[name]
		envName := EnvName(name, envPrefix)
		v, ok := LookupEnv(envName)
		if !ok || v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return errors.Annotatef(err, "%s=%q for --%s", envName, v, f.Name)
		}
	}
	return nil
}

// Parse is ParseFlagSet on pflag.CommandLine.
func Parse(envPrefix string) error {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

func EnvName(flagName, envPrefix string) string {
	return envPrefix + strings.ToUpper(strings.Replace(flagName, "-", "_", -1))
}
