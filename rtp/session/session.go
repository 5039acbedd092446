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

// Package session implements RTP stream session state: the parameters
// that identify a stream, the source-address filter applied to incoming
// packets, the receive-side session registry and per-SSRC bookkeeping, and
// the send-side packet scheduling loop.
package session

import (
	"fmt"
	"net/netip"

	"github.com/ravenna-audio/ravennad/audio"
)

// Session identifies one RTP/RTCP stream. Equality is structural: two
// Sessions with identical fields are the same session.
type Session struct {
	ConnectionAddr netip.Addr
	RTPPort        uint16
	RTCPPort       uint16
	PayloadType    uint8
	ClockRate      uint32
	Channels       int
	SampleFormat   audio.Format
}

// New creates a Session with RTCPPort derived as RTPPort+1.
func New(addr netip.Addr, rtpPort uint16, payloadType uint8, clockRate uint32, channels int, format audio.Format) Session {
	return Session{
		ConnectionAddr: addr,
		RTPPort:        rtpPort,
		RTCPPort:       rtpPort + 1,
		PayloadType:    payloadType,
		ClockRate:      clockRate,
		Channels:       channels,
		SampleFormat:   format,
	}
}

// overlaps reports whether the two sessions' RTP/RTCP port pairs overlap
// at the same destination address.
func (s Session) overlaps(o Session) bool {
	if s.ConnectionAddr != o.ConnectionAddr {
		return false
	}
	lo, hi := s.RTPPort, s.RTCPPort
	oLo, oHi := o.RTPPort, o.RTCPPort
	return lo <= oHi && oLo <= hi
}

// BytesPerFrame returns the wire-format frame size: one sample per
// channel.
func (s Session) BytesPerFrame() int {
	return s.SampleFormat.BytesPerSample() * s.Channels
}

func (s Session) String() string {
	return fmt.Sprintf("%s:%d/%d pt=%d rate=%d ch=%d fmt=%s",
		s.ConnectionAddr, s.RTPPort, s.RTCPPort, s.PayloadType, s.ClockRate, s.Channels, s.SampleFormat)
}
