/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/ravenna-audio/ravennad/eventbus"
	"github.com/ravenna-audio/ravennad/rtp/packet"
	"github.com/ravenna-audio/ravennad/rtp/stats"
)

// Delivery is what a Receiver hands to its subscribers for every accepted
// packet.
type Delivery struct {
	Packet  packet.View
	Session Session
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Arrival time.Time
}

type ssrcState struct {
	stats *stats.Stats
}

// Receiver is the receive-side session context keyed by (dst_addr,
// rtp_port) in a Registry: session parameters, the subscriber set,
// the RtpFilter, and per-SSRC statistics.
type Receiver struct {
	Session Session
	Filter  *Filter
	Arrived eventbus.Signal[Delivery]

	mu   sync.Mutex
	ssrc map[uint32]*ssrcState
}

// NewReceiver creates a Receiver for session with an accept-any filter.
func NewReceiver(s Session) *Receiver {
	return &Receiver{
		Session: s,
		Filter:  NewFilter(),
		ssrc:    make(map[uint32]*ssrcState),
	}
}

// HandlePacket validates, filters, and dispatches an inbound datagram,
// reporting whether it was accepted. A filter mismatch is not itself an
// error condition for the caller — it's normal traffic shedding — so it
// returns accepted=false with a nil err; a datagram that packet.Decode
// rejects (unparseable, wrong version, too many CSRCs, oversized) returns
// err.
func (r *Receiver) HandlePacket(data []byte, src, dst netip.AddrPort, arrival time.Time) (accepted bool, err error) {
	view, err := packet.Decode(data)
	if err != nil {
		return false, fmt.Errorf("rtp session: %w", err)
	}

	if !r.Filter.Accepts(src.Addr()) {
		return false, nil
	}

	state := r.stateFor(view.SSRC)
	state.stats.Update(view.SequenceNumber)

	r.Arrived.Emit(Delivery{
		Packet:  view,
		Session: r.Session,
		Src:     src,
		Dst:     dst,
		Arrival: arrival,
	})
	return true, nil
}

// Stats returns the sequence statistics tracked for ssrc, creating them if
// this is the first time ssrc has been seen.
func (r *Receiver) Stats(ssrc uint32) *stats.Stats {
	return r.stateFor(ssrc).stats
}

func (r *Receiver) stateFor(ssrc uint32) *ssrcState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ssrc[ssrc]
	if !ok {
		st = &ssrcState{stats: stats.New(0)}
		r.ssrc[ssrc] = st
	}
	return st
}

type registryKey struct {
	dst  netip.Addr
	port uint16
}

// Registry tracks installed receiver session contexts keyed by
// (dst_addr, rtp_port), rejecting a session whose RTP/RTCP port range
// overlaps an already-installed session at the same destination.
type Registry struct {
	mu        sync.Mutex
	receivers map[registryKey]*Receiver
	byDest    map[netip.Addr][]Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		receivers: make(map[registryKey]*Receiver),
		byDest:    make(map[netip.Addr][]Session),
	}
}

// Install creates and registers a Receiver for s, returning an error if s
// overlaps an existing session on the same destination.
func (r *Registry) Install(s Session) (*Receiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byDest[s.ConnectionAddr] {
		if existing.overlaps(s) {
			return nil, fmt.Errorf("rtp session: %s overlaps existing session %s", s, existing)
		}
	}

	recv := NewReceiver(s)
	r.receivers[registryKey{dst: s.ConnectionAddr, port: s.RTPPort}] = recv
	r.byDest[s.ConnectionAddr] = append(r.byDest[s.ConnectionAddr], s)
	return recv, nil
}

// Lookup returns the Receiver installed for (dst, rtpPort), if any.
func (r *Registry) Lookup(dst netip.Addr, rtpPort uint16) (*Receiver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recv, ok := r.receivers[registryKey{dst: dst, port: rtpPort}]
	return recv, ok
}

// Remove uninstalls the session at (dst, rtpPort).
func (r *Registry) Remove(dst netip.Addr, rtpPort uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{dst: dst, port: rtpPort}
	recv, ok := r.receivers[key]
	if !ok {
		return
	}
	delete(r.receivers, key)
	sessions := r.byDest[dst]
	for i, s := range sessions {
		if s == recv.Session {
			r.byDest[dst] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
}
