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

// Package ravenna glues a node's configuration, RTP send schedule and SDP
// description together into one advertised RAVENNA session, and exposes it
// to the control plane as an rtsp.Handler.
package ravenna

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravenna-audio/ravennad/audio"
	"github.com/ravenna-audio/ravennad/config"
	"github.com/ravenna-audio/ravennad/rtp/session"
	"github.com/ravenna-audio/ravennad/sdp"
)

// Session is a sender-side RAVENNA session: it owns the RTP send schedule
// for one advertised stream along with the session identity and clock
// reference an SDP description and RTSP control exchange need to describe
// it.
type Session struct {
	ID                   uuid.UUID
	SessionName          string
	DestinationMulticast netip.Addr
	AudioFormat          config.AudioFormat
	Ptime                time.Duration
	GrandmasterIdentity  string
	ClockDomain          uint8

	RTPSession session.Session

	mu     sync.Mutex
	sender *session.Sender
}

// New builds a Session from cfg. rtpPort and payloadType identify the RTP
// stream; grandmasterIdentity is the PTP clock this session's media clock
// is locked to, carried in the SDP ts-refclk attribute.
func New(cfg *config.Config, rtpPort uint16, payloadType uint8, grandmasterIdentity string) (*Session, error) {
	if cfg.DestinationAddress == "" {
		return nil, fmt.Errorf("ravenna: destination_address is required to advertise a session")
	}
	dst, err := netip.ParseAddr(cfg.DestinationAddress)
	if err != nil {
		return nil, fmt.Errorf("ravenna: parsing destination_address %q: %w", cfg.DestinationAddress, err)
	}

	format, err := wireFormat(cfg.AudioFormat.BitsPerSample)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:                   uuid.New(),
		SessionName:          cfg.SessionName,
		DestinationMulticast: dst,
		AudioFormat:          cfg.AudioFormat,
		Ptime:                cfg.PtimeDuration(),
		GrandmasterIdentity:  grandmasterIdentity,
		ClockDomain:          cfg.ClockDomain,
		RTPSession:           session.New(dst, rtpPort, payloadType, cfg.AudioFormat.SampleRate, cfg.AudioFormat.Channels, format),
	}, nil
}

// wireFormat maps a configured bit depth to the RTP wire sample format.
// AES67 only defines L16 and L24 payloads; float32 exists solely as a
// native-side format for audio.Convert and is never negotiated over RTP.
func wireFormat(bitsPerSample int) (audio.Format, error) {
	switch bitsPerSample {
	case 16:
		return audio.Int16, nil
	case 24:
		return audio.Int24, nil
	default:
		return 0, fmt.Errorf("ravenna: unsupported bits_per_sample %d for RTP (want 16 or 24)", bitsPerSample)
	}
}

// FrameCount returns the number of frames one packet carries at this
// session's sample rate and ptime.
func (s *Session) FrameCount() int {
	return int(float64(s.AudioFormat.SampleRate) * s.Ptime.Seconds())
}

// Path is the RTSP request path this session answers to, derived from its
// name: "studio1" becomes "/studio1".
func (s *Session) Path() string {
	return "/" + s.SessionName
}

// SDP renders this session's current SDP description.
func (s *Session) SDP() *sdp.Description {
	codec := "L16"
	if s.AudioFormat.BitsPerSample == 24 {
		codec = "L24"
	}
	return &sdp.Description{
		Username:          "-",
		SessionID:         sessionIDFromUUID(s.ID),
		SessionVersion:    0,
		OriginAddress:     s.RTPSession.ConnectionAddr.String(),
		SessionName:       s.SessionName,
		ConnectionAddress: s.DestinationMulticast.String(),
		RefClock:          &sdp.RefClock{GrandmasterIdentity: s.GrandmasterIdentity, Domain: s.ClockDomain},
		MediaClockDirect:  true,
		Media: []sdp.Media{
			{
				Port:        int(s.RTPSession.RTPPort),
				PayloadType: s.RTPSession.PayloadType,
				Codec:       codec,
				ClockRate:   s.RTPSession.ClockRate,
				Channels:    s.RTPSession.Channels,
				Ptime:       s.Ptime,
				FrameCount:  s.FrameCount(),
				Direction:   "recvonly",
			},
		},
	}
}

// sessionIDFromUUID folds a uuid's bytes with XOR into a uint64 o= session
// id. RFC 4566 only requires the value be numeric and stable for the life
// of the session, which a fixed fold of the session's own identity gives
// for free.
func sessionIDFromUUID(id uuid.UUID) uint64 {
	var n uint64
	for i, b := range id {
		n ^= uint64(b) << uint((i%8)*8)
	}
	return n
}

// ssrcFromUUID derives the RTP SSRC from the session's identity the same
// way, folded to 32 bits.
func ssrcFromUUID(id uuid.UUID) uint32 {
	var n uint32
	for i, b := range id {
		n ^= uint32(b) << uint((i%4)*8)
	}
	return n
}

// Start arms the send schedule at startSamples (the current PTP-derived
// sample position) and marks the session running. produce supplies audio
// frames and send transmits encoded packets; both are wired by the caller
// to the node's mixer and RTP socket respectively.
func (s *Session) Start(nowSamples func() uint64, produce session.FrameProducer, send func([]byte) error, startSamples uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender := &session.Sender{
		Session:      s.RTPSession,
		SSRC:         ssrcFromUUID(s.ID),
		FrameCount:   s.FrameCount(),
		NativeFormat: s.RTPSession.SampleFormat,
		NowSamples:   nowSamples,
		Produce:      produce,
		Send:         send,
	}
	sender.Start(startSamples, 0)
	s.sender = sender
}

// Stop disarms the send schedule. Tick becomes a no-op until Start is
// called again.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = nil
}

// Running reports whether the session is currently transmitting.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender != nil
}

// Tick advances the send schedule if the session is running.
func (s *Session) Tick() error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Tick()
}

// RTPTimestamp returns the timestamp the next emitted packet will carry, or
// 0 if the session is not running.
func (s *Session) RTPTimestamp() uint32 {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return 0
	}
	return sender.CurrentTimestamp()
}

// SequenceNumber returns the sequence number the next emitted packet will
// carry, or 0 if the session is not running.
func (s *Session) SequenceNumber() uint16 {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return 0
	}
	return sender.CurrentSequence()
}
