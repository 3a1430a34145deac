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
	"context"
	"sort"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// ProtocolVersion is reported by every protocol.
const ProtocolVersion = 0x20000

// Messages common to all protocols.
const (
	msgProtocolVersion    = 0x0
	msgProtocolAttributes = 0x1
	msgMessageAttributes  = 0x2
)

const (
	baseDiscoverVendor          = 0x3
	baseDiscoverSubVendor       = 0x4
	baseDiscoverImplVersion     = 0x5
	baseDiscoverListProtocols   = 0x6
	baseDiscoverAgent           = 0x7
	baseResetAgentConfiguration = 0xb
)

const (
	clockAttributes    = 0x3
	clockDescribeRates = 0x4
	clockRateSet       = 0x5
	clockRateGet       = 0x6
	clockConfigSet     = 0x7
)

const (
	perfDomainAttributes = 0x3
	perfDescribeLevels   = 0x4
	perfLimitsSet        = 0x5
	perfLimitsGet        = 0x6
	perfLevelSet         = 0x7
	perfLevelGet         = 0x8
)

const (
	resetDomainAttributes = 0x3
	resetReset            = 0x4
)

// ownAgent in DISCOVER_AGENT means the caller.
const ownAgent = 0xffffffff

type handler func(ctx context.Context, agent uint32, m *Message) ([]uint32, error)

type Server struct {
	agents *Agents
	clocks *ClockTracker
	perf   *PerfMapper
	resets *ResetDomains

	vendor      string
	subVendor   string
	implVersion uint32

	handlers map[Protocol]map[uint8]handler
}

type Option func(s *Server)

func WithClocks(t *ClockTracker) Option { return func(s *Server) { s.clocks = t } }

func WithPerf(m *PerfMapper) Option { return func(s *Server) { s.perf = m } }

func WithResets(r *ResetDomains) Option { return func(s *Server) { s.resets = r } }

func WithVendor(vendor, subVendor string) Option {
	return func(s *Server) {
		s.vendor = vendor
		s.subVendor = subVendor
	}
}

func WithImplementationVersion(v uint32) Option {
	return func(s *Server) { s.implVersion = v }
}

func NewServer(agents *Agents, opts ...Option) *Server {
	s := &Server{agents: agents, handlers: map[Protocol]map[uint8]handler{}}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers[ProtocolBase] = map[uint8]handler{
		msgProtocolAttributes:       s.baseAttributes,
		baseDiscoverVendor:          s.discoverVendor,
		baseDiscoverSubVendor:       s.discoverSubVendor,
		baseDiscoverImplVersion:     s.discoverImplVersion,
		baseDiscoverListProtocols:   s.discoverListProtocols,
		baseDiscoverAgent:           s.discoverAgent,
		baseResetAgentConfiguration: s.resetAgentConfiguration,
	}
	if s.clocks != nil {
		s.handlers[ProtocolClock] = map[uint8]handler{
			msgProtocolAttributes: s.clockProtocolAttributes,
			clockAttributes:       s.clockAttributes,
			clockDescribeRates:    s.clockDescribeRates,
			clockRateSet:          s.clockRateSet,
			clockRateGet:          s.clockRateGet,
			clockConfigSet:        s.clockConfigSet,
		}
	}
	if s.perf != nil {
		s.handlers[ProtocolPerf] = map[uint8]handler{
			msgProtocolAttributes: s.perfProtocolAttributes,
			perfDomainAttributes:  s.perfDomainAttributes,
			perfDescribeLevels:    s.perfDescribeLevels,
			perfLimitsSet:         s.perfLimitsSet,
			perfLimitsGet:         s.perfLimitsGet,
			perfLevelSet:          s.perfLevelSet,
			perfLevelGet:          s.perfLevelGet,
		}
	}
	if s.resets != nil {
		s.handlers[ProtocolReset] = map[uint8]handler{
			msgProtocolAttributes: s.resetProtocolAttributes,
			resetDomainAttributes: s.resetDomainAttributes,
			resetReset:            s.resetReset,
		}
	}
	for p, hs := range s.handlers {
		p := p
		hs[msgProtocolVersion] = func(context.Context, uint32, *Message) ([]uint32, error) {
			return []uint32{ProtocolVersion}, nil
		}
		hs[msgMessageAttributes] = func(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
			id, err := m.arg(0)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if _, ok := s.handlers[p][uint8(id)]; !ok || id > 0xff {
				return nil, errors.NotFoundf("%s message %d", p, id)
			}
			return []uint32{0}, nil
		}
	}
	return s
}

// Protocols returns the protocols served besides base, ascending.
func (s *Server) Protocols() []Protocol {
	var res []Protocol
	for p := range s.handlers {
		if p != ProtocolBase {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Handle executes m on behalf of agent. Failures are reported in the
// response status.
func (s *Server) Handle(ctx context.Context, agent uint32, m *Message) *Response {
	resp := &Response{Header: m.Header}
	payload, err := s.dispatch(ctx, agent, m)
	resp.Status = StatusOf(err)
	if err != nil {
		glog.V(1).Infof("agent %d: %s: %s (%s)", agent, m.Header, err, resp.Status)
		return resp
	}
	resp.Payload = payload
	glog.V(3).Infof("agent %d: %s: %v", agent, m.Header, payload)
	return resp
}

func (s *Server) dispatch(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	if _, err := s.agents.Get(agent); err != nil {
		return nil, errors.Trace(err)
	}
	if m.Header.Type != TypeCommand {
		return nil, ProtocolErrorf("%s: message type %d", m.Header, m.Header.Type)
	}
	hs, ok := s.handlers[m.Header.Protocol]
	if !ok {
		return nil, errors.NotSupportedf("%s", m.Header.Protocol)
	}
	h, ok := hs[m.Header.ID]
	if !ok {
		return nil, errors.NotSupportedf("%s message %d", m.Header.Protocol, m.Header.ID)
	}
	return h(ctx, agent, m)
}

func split64(v uint64) (uint32, uint32) { return uint32(v), uint32(v >> 32) }

func join64(lo, hi uint32) uint64 { return uint64(hi)<<32 | uint64(lo) }

func boolBit(b bool, bit uint) uint32 {
	if b {
		return 1 << bit
	}
	return 0
}

// Base protocol.

func (s *Server) baseAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return []uint32{uint32(s.agents.Len())<<8 | uint32(len(s.Protocols()))}, nil
}

func (s *Server) discoverVendor(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return packName(s.vendor), nil
}

func (s *Server) discoverSubVendor(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return packName(s.subVendor), nil
}

func (s *Server) discoverImplVersion(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return []uint32{s.implVersion}, nil
}

func (s *Server) discoverListProtocols(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	skip, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ps := s.Protocols()
	if skip > uint32(len(ps)) {
		return nil, errors.NotValidf("skip %d of %d protocols", skip, len(ps))
	}
	ps = ps[skip:]
	res := []uint32{uint32(len(ps))}
	for i, p := range ps {
		if i%4 == 0 {
			res = append(res, 0)
		}
		res[len(res)-1] |= uint32(p) << (8 * uint(i%4))
	}
	return res, nil
}

func (s *Server) discoverAgent(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if id == ownAgent {
		id = agent
	}
	a, err := s.agents.Get(id)
	if err != nil {
		return nil, errors.NotFoundf("agent %d", id)
	}
	return append([]uint32{a.ID}, packName(a.Name)...), nil
}

func (s *Server) resetAgentConfiguration(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	caller, _ := s.agents.Get(agent)
	if _, err := s.agents.Get(id); err != nil {
		return nil, errors.NotFoundf("agent %d", id)
	}
	if id != agent && !caller.Privileged {
		return nil, errors.Unauthorizedf("agent %s resetting agent %d", caller.Name, id)
	}
	if s.clocks == nil {
		return nil, nil
	}
	return nil, errors.Trace(s.clocks.ResetAgent(ctx, id))
}

// Clock protocol.

func (s *Server) clockProtocolAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return []uint32{uint32(s.clocks.Len())}, nil
}

func (s *Server) clockAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	info, err := s.clocks.Attributes(agent, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return append([]uint32{boolBit(info.Enabled, 0)}, packName(info.Name)...), nil
}

func (s *Server) clockDescribeRates(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(2)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rl, err := s.clocks.DescribeRates(ctx, agent, args[0], int(args[1]))
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := []uint32{uint32(len(rl.Rates))&0xfff | boolBit(rl.Linear, 12) | uint32(rl.Remaining)<<16}
	for _, r := range rl.Rates {
		lo, hi := split64(r)
		res = append(res, lo, hi)
	}
	return res, nil
}

func (s *Server) clockRateSet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(4)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if args[0]&1 != 0 {
		return nil, errors.NotSupportedf("asynchronous rate change")
	}
	_, err = s.clocks.SetRate(ctx, agent, args[1], join64(args[2], args[3]))
	return nil, errors.Trace(err)
}

func (s *Server) clockRateGet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rate, err := s.clocks.Rate(ctx, agent, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	lo, hi := split64(rate)
	return []uint32{lo, hi}, nil
}

func (s *Server) clockConfigSet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(2)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.Trace(s.clocks.SetState(ctx, agent, args[0], args[1]&1 != 0))
}

// Performance protocol.

func (s *Server) perfProtocolAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	// No statistics shared memory.
	return []uint32{uint32(s.perf.Len()), 0, 0, 0}, nil
}

func (s *Server) perfDomainAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	info, err := s.perf.DomainAttributes(ctx, agent, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := []uint32{
		boolBit(info.CanSetLimits, 31) | boolBit(info.CanSetLevel, 30),
		0,
		info.SustainedKHz,
		info.SustainedLevel,
	}
	return append(res, packName(info.Name)...), nil
}

func (s *Server) perfDescribeLevels(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(2)
	if err != nil {
		return nil, errors.Trace(err)
	}
	levels, remaining, err := s.perf.DescribeLevels(ctx, agent, args[0], int(args[1]))
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := []uint32{uint32(len(levels))&0xfff | uint32(remaining)<<16}
	for _, l := range levels {
		res = append(res, l.Level, 0, 0)
	}
	return res, nil
}

func (s *Server) perfLimitsSet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(3)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.Trace(s.perf.SetLimits(ctx, agent, args[0], args[1], args[2]))
}

func (s *Server) perfLimitsGet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	max, min, err := s.perf.Limits(ctx, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []uint32{max, min}, nil
}

func (s *Server) perfLevelSet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(2)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.Trace(s.perf.SetLevel(ctx, agent, args[0], args[1]))
}

func (s *Server) perfLevelGet(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	level, err := s.perf.Level(ctx, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []uint32{level}, nil
}

// Reset domain protocol.

func (s *Server) resetProtocolAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	return []uint32{uint32(s.resets.Len())}, nil
}

func (s *Server) resetDomainAttributes(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	id, err := m.arg(0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	name, err := s.resets.Name(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// Synchronous only, latency unknown.
	return append([]uint32{0, 0xffffffff}, packName(name)...), nil
}

func (s *Server) resetReset(ctx context.Context, agent uint32, m *Message) ([]uint32, error) {
	args, err := m.args(3)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.Trace(s.resets.Reset(ctx, agent, args[0], args[1], args[2]))
}
