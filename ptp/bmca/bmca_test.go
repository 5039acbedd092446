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

package bmca

import (
	"testing"

	"github.com/stretchr/testify/require"

	ptp "github.com/ravenna-audio/ravennad/ptp/protocol"
)

func TestComparePortIdentity(t *testing.T) {
	pi1 := ptp.PortIdentity{PortNumber: 1, ClockIdentity: 5212879185253000328}
	pi2 := ptp.PortIdentity{PortNumber: 1, ClockIdentity: 0}
	require.Equal(t, int64(0), ComparePortIdentity(&pi1, &pi1))
	require.Greater(t, ComparePortIdentity(&pi1, &pi2), int64(0))
	require.Less(t, ComparePortIdentity(&pi2, &pi1), int64(0))
}

func TestCompareTopology(t *testing.T) {
	pi1 := ptp.PortIdentity{PortNumber: 1, ClockIdentity: 5212879185253000328}
	pi2 := ptp.PortIdentity{PortNumber: 1, ClockIdentity: 0}
	a1 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{StepsRemoved: 1}, Header: ptp.Header{SourcePortIdentity: pi1}}
	a2 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{StepsRemoved: 3}, Header: ptp.Header{SourcePortIdentity: pi1}}
	a3 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{StepsRemoved: 1}, Header: ptp.Header{SourcePortIdentity: pi2}}
	require.Equal(t, Equal, compareTopology(&a1, &a1))
	require.Equal(t, ABetter, compareTopology(&a1, &a2))
	require.Equal(t, BBetterTopo, compareTopology(&a1, &a3))
}

func TestCompareLexicographic(t *testing.T) {
	a3 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 1, GrandmasterPriority1: 1}}
	a4 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 2, GrandmasterPriority1: 2}}
	require.Equal(t, ABetter, Compare(&a3, &a4))
	require.Equal(t, BBetter, Compare(&a4, &a3))

	a5 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 1, GrandmasterClockQuality: ptp.ClockQuality{ClockClass: ptp.ClockClass7}}}
	a6 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 2, GrandmasterClockQuality: ptp.ClockQuality{ClockClass: ptp.ClockClass13}}}
	require.Equal(t, ABetter, Compare(&a5, &a6))

	a9 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 1, GrandmasterClockQuality: ptp.ClockQuality{OffsetScaledLogVariance: 42}}}
	a10 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 2, GrandmasterClockQuality: ptp.ClockQuality{OffsetScaledLogVariance: 69}}}
	require.Equal(t, ABetter, Compare(&a9, &a10))
}

func TestCompareIdentityTieBreak(t *testing.T) {
	a1 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 1}}
	a2 := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 2}}
	require.Equal(t, ABetter, Compare(&a1, &a2))
	require.True(t, Better(&a1, &a2))
	require.False(t, Better(&a2, &a1))
}

func TestCompareEqualDatasets(t *testing.T) {
	a := ptp.Announce{AnnounceBody: ptp.AnnounceBody{GrandmasterIdentity: 7, GrandmasterPriority1: 128}}
	b := a
	require.Equal(t, Equal, Compare(&a, &b))
}
