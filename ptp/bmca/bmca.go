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

// Package bmca implements the best master clock algorithm's dataset
// compare: given two qualified Announce messages, which one describes the
// better master.
package bmca

import (
	ptp "github.com/ravenna-audio/ravennad/ptp/protocol"
)

// Result is the outcome of comparing two datasets.
type Result int8

const (
	// ABetterTopo means A wins purely on steps-removed/port-identity topology.
	ABetterTopo Result = 2
	// ABetter means A wins on the Announce-content lexicographic compare.
	ABetter Result = 1
	// Equal means the two datasets are indistinguishable.
	Equal Result = 0
	// BBetter means B wins on the Announce-content lexicographic compare.
	BBetter Result = -1
	// BBetterTopo means B wins purely on steps-removed/port-identity topology.
	BBetterTopo Result = -2
)

// ComparePortIdentity orders two port identities, smaller clockIdentity (and
// then smaller port number) sorting first.
func ComparePortIdentity(a, b *ptp.PortIdentity) int64 {
	diff := int64(a.ClockIdentity) - int64(b.ClockIdentity)
	if diff == 0 {
		diff = int64(a.PortNumber) - int64(b.PortNumber)
	}
	return diff
}

// compareTopology breaks a tie on identical grandmaster datasets using
// steps-removed and, failing that, the announcing port's identity.
func compareTopology(a, b *ptp.Announce) Result {
	if a.StepsRemoved+1 < b.StepsRemoved {
		return ABetter
	}
	if b.StepsRemoved+1 < a.StepsRemoved {
		return BBetter
	}
	diff := ComparePortIdentity(&a.Header.SourcePortIdentity, &b.Header.SourcePortIdentity)
	if diff < 0 {
		return ABetterTopo
	}
	if diff > 0 {
		return BBetterTopo
	}
	return Equal
}

// Compare performs the IEEE 1588 dataset compare between two qualified
// Announce messages, lexicographically over (priority1, clockClass,
// clockAccuracy, offsetScaledLogVariance, priority2, clockIdentity,
// stepsRemoved) — ties on clockIdentity resolve by numerically smaller
// identity, per the topology tie-break above.
func Compare(a, b *ptp.Announce) Result {
	if a.AnnounceBody == b.AnnounceBody {
		return Equal
	}

	ga, gb := a.GrandmasterIdentity, b.GrandmasterIdentity
	if ga == gb {
		return compareTopology(a, b)
	}

	switch {
	case a.GrandmasterPriority1 < b.GrandmasterPriority1:
		return ABetter
	case a.GrandmasterPriority1 > b.GrandmasterPriority1:
		return BBetter
	}
	switch {
	case a.GrandmasterClockQuality.ClockClass < b.GrandmasterClockQuality.ClockClass:
		return ABetter
	case a.GrandmasterClockQuality.ClockClass > b.GrandmasterClockQuality.ClockClass:
		return BBetter
	}
	switch {
	case a.GrandmasterClockQuality.ClockAccuracy < b.GrandmasterClockQuality.ClockAccuracy:
		return ABetter
	case a.GrandmasterClockQuality.ClockAccuracy > b.GrandmasterClockQuality.ClockAccuracy:
		return BBetter
	}
	switch {
	case a.GrandmasterClockQuality.OffsetScaledLogVariance < b.GrandmasterClockQuality.OffsetScaledLogVariance:
		return ABetter
	case a.GrandmasterClockQuality.OffsetScaledLogVariance > b.GrandmasterClockQuality.OffsetScaledLogVariance:
		return BBetter
	}
	switch {
	case a.GrandmasterPriority2 < b.GrandmasterPriority2:
		return ABetter
	case a.GrandmasterPriority2 > b.GrandmasterPriority2:
		return BBetter
	}
	if int64(ga) < int64(gb) {
		return ABetter
	}
	return BBetter
}

// Better reports whether a beats b under Compare.
func Better(a, b *ptp.Announce) bool {
	r := Compare(a, b)
	return r == ABetter || r == ABetterTopo
}
