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
	"net/netip"
	"testing"

	"github.com/ravenna-audio/ravennad/audio"
	"github.com/ravenna-audio/ravennad/rtp/packet"
	"github.com/stretchr/testify/require"
)

func TestSenderTickEmitsDuePacketsAndAdvancesSchedule(t *testing.T) {
	s := &Sender{
		Session:      New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 2, audio.Int16),
		SSRC:         0x1,
		FrameCount:   48,
		NativeFormat: audio.Int16,
	}

	var clock uint64
	s.NowSamples = func() uint64 { return clock }

	var produced int
	s.Produce = func(frameCount int) ([]byte, error) {
		produced++
		return make([]byte, frameCount*s.Session.BytesPerFrame()), nil
	}

	var sent [][]byte
	s.Send = func(b []byte) error {
		cp := make([]byte, len(b))
		copy(cp, b)
		sent = append(sent, cp)
		return nil
	}

	s.Start(0, 1000)

	require.NoError(t, s.Tick())
	require.Len(t, sent, 1, "first tick sends the packet due at ts=0")

	clock = 48 // exactly one frame block further
	require.NoError(t, s.Tick())
	require.Len(t, sent, 2)

	view, err := packet.Decode(sent[1])
	require.NoError(t, err)
	require.Equal(t, uint16(1001), view.SequenceNumber)
	require.Equal(t, uint32(48), view.Timestamp)
}

func TestSenderTickBoundsIterationsPerTick(t *testing.T) {
	s := &Sender{
		Session:       New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 1, audio.Int16),
		SSRC:          0x1,
		FrameCount:    1,
		NativeFormat:  audio.Int16,
		MaxIterations: 3,
	}
	s.NowSamples = func() uint64 { return 1_000_000 } // far ahead, would run away without a bound
	s.Produce = func(frameCount int) ([]byte, error) {
		return make([]byte, frameCount*s.Session.BytesPerFrame()), nil
	}
	var count int
	s.Send = func(b []byte) error { count++; return nil }

	s.Start(0, 0)
	require.NoError(t, s.Tick())
	require.Equal(t, 3, count)
}
