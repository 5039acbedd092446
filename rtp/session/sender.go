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
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ravenna-audio/ravennad/audio"
	"github.com/ravenna-audio/ravennad/rtp/packet"
)

// DefaultMaxIterationsPerTick bounds how many packets Sender.Tick will
// emit in a single call, so a long scheduler stall can't cause a runaway
// burst once the clock catches up.
const DefaultMaxIterationsPerTick = 10

// FrameProducer supplies frameCount frames of native-format, interleaved
// audio for the next outgoing packet.
type FrameProducer func(frameCount int) ([]byte, error)

// Sender schedules outgoing RTP packets against a PTP-derived sample
// clock: it compares the current sample position to the next packet's
// timestamp and emits every due packet, bounded per tick.
type Sender struct {
	Session       Session
	SSRC          uint32
	FrameCount    int
	NativeFormat  audio.Format
	NowSamples    func() uint64
	Produce       FrameProducer
	Send          func(b []byte) error
	MaxIterations int

	mu  sync.Mutex
	seq uint16
	ts  uint32
}

// Start arms the schedule at startSamples (truncated to 32 bits), the
// timestamp of the first packet Tick will emit. Call once before the
// first Tick.
func (s *Sender) Start(startSamples uint64, startSeq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts = uint32(startSamples)
	s.seq = startSeq
}

// Tick advances the schedule: while the current sample position has
// reached the next packet's timestamp, it pulls a frame block from
// Produce, encodes it to the session's wire format and RTP header, and
// calls Send — up to MaxIterations times (DefaultMaxIterationsPerTick if
// unset).
func (s *Sender) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterationsPerTick
	}

	now := s.NowSamples()
	for i := 0; i < maxIter; i++ {
		if now < uint64(s.ts) {
			break
		}

		raw, err := s.Produce(s.FrameCount)
		if err != nil {
			return fmt.Errorf("rtp session: produce frames: %w", err)
		}

		wire := make([]byte, s.FrameCount*s.Session.BytesPerFrame())
		if _, err := audio.Convert(s.NativeFormat, audio.NativeOrder, raw, s.Session.SampleFormat, binary.BigEndian, wire); err != nil {
			return fmt.Errorf("rtp session: convert frames: %w", err)
		}

		pkt, err := packet.Encode(s.Session.PayloadType, s.seq, s.ts, s.SSRC, false, wire)
		if err != nil {
			return fmt.Errorf("rtp session: encode packet: %w", err)
		}
		if err := s.Send(pkt); err != nil {
			return fmt.Errorf("rtp session: send packet: %w", err)
		}

		s.seq++
		s.ts += uint32(s.FrameCount)
	}
	return nil
}

// CurrentSequence returns the sequence number the next emitted packet will
// carry.
func (s *Sender) CurrentSequence() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// CurrentTimestamp returns the RTP timestamp the next emitted packet will
// carry.
func (s *Sender) CurrentTimestamp() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ts
}
