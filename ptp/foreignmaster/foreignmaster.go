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

// Package foreignmaster tracks the Announce messages received from peers on
// a PTP port, qualifying a peer into the BMCA dataset-compare pool once it
// has sent enough announces within the qualification window.
package foreignmaster

import (
	"sync"
	"time"

	ptp "github.com/ravenna-audio/ravennad/ptp/protocol"
)

// QualifyThreshold is the minimum number of announces a peer must send
// within the qualification window before it is considered for BMCA.
const QualifyThreshold = 2

// record tracks one foreign master candidate.
type record struct {
	lastAnnounce  *ptp.Announce
	lastSequence  uint16
	haveSequence  bool
	announceTimes []time.Time // announces seen within the qualification window
	lastSeen      time.Time
}

// List is the foreign master list for a single PTP port.
type List struct {
	mu      sync.Mutex
	records map[ptp.PortIdentity]*record
	window  time.Duration
}

// New creates a foreign master list whose qualification window spans
// windowIntervals announce intervals, per spec (typically 4).
func New(announceInterval time.Duration, windowIntervals int) *List {
	return &List{
		records: make(map[ptp.PortIdentity]*record),
		window:  announceInterval * time.Duration(windowIntervals),
	}
}

// Update records an Announce from peer identified by its source port
// identity, at time now. It returns false if the announce should be
// dropped: stale sequence number, or the peer is us.
func (l *List) Update(a *ptp.Announce, ourIdentity ptp.ClockIdentity, now time.Time) bool {
	pi := a.Header.SourcePortIdentity
	if pi.ClockIdentity == ourIdentity {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[pi]
	if !ok {
		r = &record{}
		l.records[pi] = r
	}

	seq := a.Header.SequenceID
	if r.haveSequence && seq <= r.lastSequence {
		return false
	}
	r.haveSequence = true
	r.lastSequence = seq
	r.lastAnnounce = a
	r.lastSeen = now

	cutoff := now.Add(-l.window)
	kept := r.announceTimes[:0]
	for _, t := range r.announceTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.announceTimes = append(kept, now)
	return true
}

// Qualified returns the latest Announce from every peer that has sent at
// least QualifyThreshold announces within the qualification window.
func (l *List) Qualified(now time.Time) []*ptp.Announce {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	var out []*ptp.Announce
	for _, r := range l.records {
		count := 0
		for _, t := range r.announceTimes {
			if t.After(cutoff) {
				count++
			}
		}
		if count >= QualifyThreshold {
			out = append(out, r.lastAnnounce)
		}
	}
	return out
}

// Prune drops peers that haven't announced within the qualification window,
// returning how many were removed.
func (l *List) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for pi, r := range l.records {
		if r.lastSeen.Before(cutoff) {
			delete(l.records, pi)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked peers, qualified or not.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
