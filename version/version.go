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
package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	goversion "github.com/mcuadros/go-version"
)

// Set at link time with -X.
var (
	Version        = "latest"
	BuildId        = ""
	BuildTimestamp = ""
)

type VersionJson struct {
	BuildId        string    `json:"build_id"`
	BuildTimestamp time.Time `json:"build_timestamp"`
	BuildVersion   string    `json:"build_version"`
}

const (
	LatestVersionName = "latest"
)

var (
	regexpVersionNumber = regexp.MustCompile(`^\d+\.[0-9.]*$`)
)

// GetVersion returns this binary's version, or "latest" if it's not a release build.
func GetVersion() string {
	if LooksLikeVersionNumber(Version) {
		return Version
	}
	return LatestVersionName
}

func LooksLikeVersionNumber(s string) bool {
	return regexpVersionNumber.MatchString(s)
}

func GetVersionJson() VersionJson {
	ts, _ := time.Parse(time.RFC3339, BuildTimestamp)
	return VersionJson{
		BuildId:        BuildId,
		BuildTimestamp: ts,
		BuildVersion:   Version,
	}
}

// AtLeast reports whether this build satisfies the minimum version min.
// Non-release builds satisfy any minimum.
func AtLeast(min string) bool {
	v := GetVersion()
	if min == "" || v == LatestVersionName {
		return true
	}
	return goversion.Compare(v, min, ">=")
}

// Implementation packs a release version as major[31:24] minor[23:16]
// patch[15:0]. Non-release versions are 0.
func Implementation(v string) uint32 {
	if !LooksLikeVersionNumber(v) {
		return 0
	}
	var parts [3]uint64
	for i, p := range strings.SplitN(goversion.Normalize(v), ".", 4) {
		if i >= len(parts) {
			break
		}
		parts[i], _ = strconv.ParseUint(p, 10, 16)
	}
	return uint32(parts[0]&0xff)<<24 | uint32(parts[1]&0xff)<<16 | uint32(parts[2])
}

func GetUserAgent() string {
	return fmt.Sprintf("socclk/%s %s (%s; %s)", Version, BuildId, runtime.GOOS, runtime.GOARCH)
}
