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

package ravenna

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ravenna-audio/ravennad/rtp/jitter"
	"github.com/ravenna-audio/ravennad/rtp/session"
	"github.com/ravenna-audio/ravennad/sdp"
	"github.com/ravenna-audio/ravennad/syncx"
)

// jitterFanout sizes a Receiver's de-jitter ring as a multiple of its
// configured playout delay, matching rtp/jitter's own MinFanout-respecting
// test sizing.
const jitterFanout = 4

// arrival is the wait-free handoff payload published on every delivered
// packet: the single writer is whatever poller goroutine is driving
// HandlePacket, the single reader is a health-check sweep running
// elsewhere, and neither blocks the other.
type arrival struct {
	at time.Time
}

// Receiver is the receive-side counterpart to Session: an RTP session
// context installed in a session.Registry (sequence validation, per-SSRC
// statistics) feeding a de-jitter buffer, built from a peer's advertised
// SDP per §4.4's "Binding" data flow.
type Receiver struct {
	RTPSession   session.Session
	RTPReceiver  *session.Receiver
	JitterBuffer *jitter.Buffer
	SessionName  string

	lastArrival *syncx.TripleBuffer[arrival]
}

// NewReceiverFromSDP parses the first media entry of a peer's SDP
// description, installs the resulting session into reg, and arms a
// jitter buffer holding delayFrames frames of playout delay. RAVENNA
// sessions advertise exactly one audio stream, so only Media[0] is used.
func NewReceiverFromSDP(reg *session.Registry, desc *sdp.Description, delayFrames int) (*Receiver, error) {
	if len(desc.Media) == 0 {
		return nil, fmt.Errorf("ravenna: sdp %q has no media", desc.SessionName)
	}
	m := desc.Media[0]

	// ConnectionAddress carries an optional "/ttl" or "/ttl/range" suffix
	// for multicast c= lines (sdp.Description.ConnectionAddress doc
	// comment); only the address itself matters for joining the group.
	host, _, _ := strings.Cut(desc.ConnectionAddress, "/")
	dst, err := netip.ParseAddr(host)
	if err != nil {
		return nil, fmt.Errorf("ravenna: sdp %q: parsing connection address %q: %w", desc.SessionName, desc.ConnectionAddress, err)
	}

	format, err := wireFormat(m.BitsPerSample())
	if err != nil {
		return nil, fmt.Errorf("ravenna: sdp %q: %w", desc.SessionName, err)
	}

	sess := session.New(dst, uint16(m.Port), m.PayloadType, m.ClockRate, m.Channels, format)

	rtpRecv, err := reg.Install(sess)
	if err != nil {
		return nil, err
	}

	buf, err := jitter.New(delayFrames, sess.BytesPerFrame(), jitterFanout)
	if err != nil {
		return nil, err
	}

	lastArrival := syncx.NewTripleBuffer[arrival]()
	rtpRecv.Arrived.Subscribe(func(d session.Delivery) {
		buf.Write(d.Packet.Timestamp, d.Packet.Payload)
		lastArrival.Write(arrival{at: d.Arrival})
	})

	return &Receiver{
		RTPSession:   sess,
		RTPReceiver:  rtpRecv,
		JitterBuffer: buf,
		SessionName:  desc.SessionName,
		lastArrival:  lastArrival,
	}, nil
}

// Path is the RTSP path this receiver's source session is advertised at.
func (r *Receiver) Path() string {
	return "/" + r.SessionName
}

// LastPacketArrival returns the arrival time of the most recently delivered
// packet and whether any packet has arrived yet. Reads never block the
// HandlePacket writer, and vice versa.
func (r *Receiver) LastPacketArrival() (time.Time, bool) {
	snap, _ := r.lastArrival.Read()
	return snap.at, !snap.at.IsZero()
}
