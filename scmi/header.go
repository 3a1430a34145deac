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
package scmi

import (
	"encoding/binary"
	"fmt"
)

type Protocol uint8

const (
	ProtocolBase  Protocol = 0x10
	ProtocolPerf  Protocol = 0x13
	ProtocolClock Protocol = 0x14
	ProtocolReset Protocol = 0x16
)

func (p Protocol) String() string {
	switch p {
	case ProtocolBase:
		return "base"
	case ProtocolPerf:
		return "perf"
	case ProtocolClock:
		return "clock"
	case ProtocolReset:
		return "reset"
	}
	return fmt.Sprintf("protocol(0x%02x)", uint8(p))
}

type MessageType uint8

const (
	TypeCommand         MessageType = 0
	TypeDelayedResponse MessageType = 2
	TypeNotification    MessageType = 3
)

const tokenMask = 0x3ff

// Header is the first word of every message:
// msg_id[7:0] type[9:8] protocol[17:10] token[27:18].
type Header struct {
	Protocol Protocol    `json:"protocol"`
	ID       uint8       `json:"id"`
	Type     MessageType `json:"type,omitempty"`
	Token    uint16      `json:"token,omitempty"`
}

func (h Header) Pack() uint32 {
	return uint32(h.ID) |
		uint32(h.Type&0x3)<<8 |
		uint32(h.Protocol)<<10 |
		uint32(h.Token&tokenMask)<<18
}

func ParseHeader(v uint32) Header {
	return Header{
		ID:       uint8(v),
		Type:     MessageType((v >> 8) & 0x3),
		Protocol: Protocol(v >> 10),
		Token:    uint16((v >> 18) & tokenMask),
	}
}

func (h Header) String() string {
	return fmt.Sprintf("%s/%d#%d", h.Protocol, h.ID, h.Token)
}

// nameLen is the size of the fixed name fields in responses.
const nameLen = 16

// packName stores s, truncated to 15 bytes and NUL padded, in four
// little-endian words.
func packName(s string) []uint32 {
	var b [nameLen]byte
	copy(b[:nameLen-1], s)
	res := make([]uint32, nameLen/4)
	for i := range res {
		res[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return res
}

// UnpackName is the reverse of the name encoding used in responses.
func UnpackName(words []uint32) string {
	b := make([]byte, 0, len(words)*4)
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
