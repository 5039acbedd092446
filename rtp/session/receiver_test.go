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
	"time"

	"github.com/ravenna-audio/ravennad/audio"
	"github.com/ravenna-audio/ravennad/rtp/packet"
	"github.com/stretchr/testify/require"
)

func testSession() Session {
	return New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 2, audio.Int24)
}

func TestReceiverDispatchesAcceptedPackets(t *testing.T) {
	recv := NewReceiver(testSession())

	var got Delivery
	recv.Arrived.Subscribe(func(d Delivery) { got = d })

	b, err := packet.Encode(96, 1, 0, 0xAA, false, []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	src := netip.MustParseAddrPort("10.0.0.5:40000")
	dst := netip.MustParseAddrPort("239.1.2.3:5004")
	accepted, err := recv.HandlePacket(b, src, dst, time.Now())
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, uint32(0xAA), got.Packet.SSRC)
}

func TestReceiverDropsFilteredSource(t *testing.T) {
	recv := NewReceiver(testSession())
	recv.Filter.Include(netip.MustParseAddr("10.0.0.9"))

	b, err := packet.Encode(96, 1, 0, 0xAA, false, []byte{1, 2})
	require.NoError(t, err)

	accepted, err := recv.HandlePacket(b, netip.MustParseAddrPort("10.0.0.5:40000"), netip.MustParseAddrPort("239.1.2.3:5004"), time.Now())
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestReceiverTracksPerSSRCStats(t *testing.T) {
	recv := NewReceiver(testSession())
	src := netip.MustParseAddrPort("10.0.0.5:40000")
	dst := netip.MustParseAddrPort("239.1.2.3:5004")

	for _, seq := range []uint16{100, 101, 103} {
		b, err := packet.Encode(96, seq, 0, 0xAA, false, []byte{0})
		require.NoError(t, err)
		_, err = recv.HandlePacket(b, src, dst, time.Now())
		require.NoError(t, err)
	}

	require.Equal(t, int64(3), recv.Stats(0xAA).Window().Received)
}

func TestRegistryRejectsOverlappingSessions(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Install(testSession())
	require.NoError(t, err)

	overlapping := New(netip.MustParseAddr("239.1.2.3"), 5005, 96, 48000, 2, audio.Int24)
	_, err = reg.Install(overlapping)
	require.Error(t, err)
}

func TestRegistryLookupAndRemove(t *testing.T) {
	reg := NewRegistry()
	s := testSession()
	recv, err := reg.Install(s)
	require.NoError(t, err)

	found, ok := reg.Lookup(s.ConnectionAddr, s.RTPPort)
	require.True(t, ok)
	require.Same(t, recv, found)

	reg.Remove(s.ConnectionAddr, s.RTPPort)
	_, ok = reg.Lookup(s.ConnectionAddr, s.RTPPort)
	require.False(t, ok)

	// Removing freed the port range, so installing the same session again
	// (or one that overlaps it) should succeed.
	_, err = reg.Install(s)
	require.NoError(t, err)
}
