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

// Message is a command sent by an agent.
type Message struct {
	Header  Header   `json:"header"`
	Payload []uint32 `json:"payload,omitempty"`
}

// Response answers a Message. Payload excludes the status word.
type Response struct {
	Header  Header   `json:"header"`
	Status  Status   `json:"status"`
	Payload []uint32 `json:"payload,omitempty"`
}

// Err returns nil for a successful response.
func (r *Response) Err() error {
	if r.Status == Success {
		return nil
	}
	return &StatusError{Header: r.Header, Status: r.Status}
}

type StatusError struct {
	Header Header
	Status Status
}

func (e *StatusError) Error() string {
	return e.Header.String() + ": " + e.Status.String()
}

func (m *Message) arg(i int) (uint32, error) {
	if i >= len(m.Payload) {
		return 0, ProtocolErrorf("%s: %d payload words, need %d", m.Header, len(m.Payload), i+1)
	}
	return m.Payload[i], nil
}

// args returns the first n payload words.
func (m *Message) args(n int) ([]uint32, error) {
	if _, err := m.arg(n - 1); err != nil {
		return nil, err
	}
	return m.Payload[:n], nil
}
