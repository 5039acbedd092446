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
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ravenna-audio/ravennad/rtp/packet"
	"github.com/ravenna-audio/ravennad/rtp/session"
	"github.com/ravenna-audio/ravennad/sdp"
)

func peerSDP(t *testing.T) *sdp.Description {
	t.Helper()
	cfg := testConfig()
	s, err := New(cfg, 5004, 98, "gm-1")
	require.NoError(t, err)

	raw, err := sdp.Generate(s.SDP())
	require.NoError(t, err)
	parsed, err := sdp.Parse(raw)
	require.NoError(t, err)
	return parsed
}

func TestNewReceiverFromSDPInstallsSession(t *testing.T) {
	reg := session.NewRegistry()
	recv, err := NewReceiverFromSDP(reg, peerSDP(t), 4)
	require.NoError(t, err)

	require.Equal(t, uint16(5004), recv.RTPSession.RTPPort)
	require.Equal(t, uint32(48000), recv.RTPSession.ClockRate)
	require.Equal(t, "studio1", recv.SessionName)
	require.Equal(t, "/studio1", recv.Path())

	installed, ok := reg.Lookup(recv.RTPSession.ConnectionAddr, recv.RTPSession.RTPPort)
	require.True(t, ok)
	require.Same(t, recv.RTPReceiver, installed)
}

func TestNewReceiverFromSDPRejectsNoMedia(t *testing.T) {
	reg := session.NewRegistry()
	desc := peerSDP(t)
	desc.Media = nil
	_, err := NewReceiverFromSDP(reg, desc, 4)
	require.Error(t, err)
}

func TestReceiverArrivedPacketFillsJitterBuffer(t *testing.T) {
	reg := session.NewRegistry()
	recv, err := NewReceiverFromSDP(reg, peerSDP(t), 4)
	require.NoError(t, err)

	payload := make([]byte, recv.RTPSession.BytesPerFrame()*8)
	for i := range payload {
		payload[i] = byte(i)
	}
	raw, err := packet.Encode(recv.RTPSession.PayloadType, 1, 0, 0xabcd1234, false, payload)
	require.NoError(t, err)

	src := netip.MustParseAddrPort("10.0.0.5:40000")
	dst := netip.MustParseAddrPort("239.1.2.3:5004")
	accepted, err := recv.RTPReceiver.HandlePacket(raw, src, dst, time.Now())
	require.NoError(t, err)
	require.True(t, accepted)

	require.Equal(t, 8, recv.JitterBuffer.NumFramesBuffered())
}
