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
	"github.com/stretchr/testify/require"
)

func TestNewDerivesRTCPPort(t *testing.T) {
	s := New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 2, audio.Int24)
	require.Equal(t, uint16(5005), s.RTCPPort)
}

func TestSessionEqualityIsStructural(t *testing.T) {
	a := New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 2, audio.Int24)
	b := New(netip.MustParseAddr("239.1.2.3"), 5004, 96, 48000, 2, audio.Int24)
	require.Equal(t, a, b)
	require.True(t, a == b)
}

func TestOverlapsDetectsSharedPortsAtSameDestination(t *testing.T) {
	addr := netip.MustParseAddr("239.1.2.3")
	a := New(addr, 5004, 96, 48000, 2, audio.Int24)
	b := New(addr, 5005, 96, 48000, 2, audio.Int24) // b's RTP port == a's RTCP port
	require.True(t, a.overlaps(b))

	c := New(addr, 6000, 96, 48000, 2, audio.Int24)
	require.False(t, a.overlaps(c))

	other := New(netip.MustParseAddr("239.1.2.4"), 5004, 96, 48000, 2, audio.Int24)
	require.False(t, a.overlaps(other))
}

func TestFilterEmptyAcceptsAny(t *testing.T) {
	f := NewFilter()
	require.True(t, f.Accepts(netip.MustParseAddr("10.0.0.1")))
}

func TestFilterExcludeWinsOverInclude(t *testing.T) {
	f := NewFilter()
	src := netip.MustParseAddr("10.0.0.1")
	f.Include(src)
	f.Exclude(src)
	require.False(t, f.Accepts(src))
}

func TestFilterIncludeRejectsUnlisted(t *testing.T) {
	f := NewFilter()
	f.Include(netip.MustParseAddr("10.0.0.1"))
	require.False(t, f.Accepts(netip.MustParseAddr("10.0.0.2")))
}
