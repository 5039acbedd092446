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

// Package packet implements the zero-copy RTP header view used by the data
// plane: decoding validates the header in place against the wire buffer
// without allocating a payload copy, and encoding marshals the header and
// payload into a newly allocated wire buffer.
package packet

import (
	"fmt"

	"github.com/pion/rtp"
)

const (
	rtpVersion = 2
	// MaxCSRC bounds the CSRC count a well-formed AES67/RAVENNA stream
	// carries; the data plane has no use for contributing-source mixing.
	MaxCSRC = 15
	// MaxPacketSize is the MTU ceiling named for RTP packet streams.
	MaxPacketSize = 1500
)

// View is a decoded RTP packet whose Payload aliases the input buffer — no
// copy is made of the payload bytes.
type View struct {
	Version        uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	Payload        []byte
}

// Decode validates and parses an RTP packet from b, returning a View whose
// Payload slice aliases b. Rejects packets that fail the version, CSRC
// count, or length checks the receiver session is required to apply before
// accepting a packet.
func Decode(b []byte) (View, error) {
	if len(b) > MaxPacketSize {
		return View{}, fmt.Errorf("rtp packet of %d bytes exceeds MTU of %d", len(b), MaxPacketSize)
	}

	var p rtp.Packet
	if err := p.Unmarshal(b); err != nil {
		return View{}, fmt.Errorf("decode rtp header: %w", err)
	}
	if p.Version != rtpVersion {
		return View{}, fmt.Errorf("unsupported rtp version %d", p.Version)
	}
	if len(p.CSRC) > MaxCSRC {
		return View{}, fmt.Errorf("rtp csrc count %d exceeds %d", len(p.CSRC), MaxCSRC)
	}

	return View{
		Version:        p.Version,
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
		CSRC:           p.CSRC,
		Payload:        p.Payload,
	}, nil
}

// Encode marshals an RTP packet with the given fields and payload,
// returning the wire bytes. No padding or extension is written; AES67
// streaming uses neither.
func Encode(payloadType uint8, seq uint16, timestamp, ssrc uint32, marker bool, payload []byte) ([]byte, error) {
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			Padding:        false,
			Extension:      false,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	b, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode rtp packet: %w", err)
	}
	return b, nil
}
