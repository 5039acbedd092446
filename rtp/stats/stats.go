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

// Package stats implements per-SSRC RTP sequence-number statistics: a
// sliding window over the last N sequence numbers, with window and total
// (evicted) aggregates for received/out-of-order/duplicate/too-late/dropped
// counts.
package stats

import "sync"

// DefaultRingSize is the default window size, the largest that fits the
// 16-bit sequence number space without every slot aliasing two sequence
// numbers.
const DefaultRingSize = 65535

// Counts is one aggregate of packet outcome counters.
type Counts struct {
	Received   int64
	OutOfOrder int64
	Duplicate  int64
	TooLate    int64
	Dropped    int64
}

func (c *Counts) add(o Counts) {
	c.Received += o.Received
	c.OutOfOrder += o.OutOfOrder
	c.Duplicate += o.Duplicate
	c.TooLate += o.TooLate
	c.Dropped += o.Dropped
}

type slot struct {
	seq      uint16
	occupied bool
	pending  bool // placeholder pushed by a forward gap, not yet received
	counts   Counts
}

// Stats tracks sequence-number statistics for one SSRC over a bounded
// ring; sequence numbers far enough apart alias the same slot, matching
// RTP's own 16-bit wraparound.
type Stats struct {
	mu   sync.Mutex
	ring []slot

	window Counts
	total  Counts

	haveMostRecent bool
	mostRecentSeq  uint16
}

// New creates a Stats with the given ring size (DefaultRingSize if <= 0).
func New(ringSize int) *Stats {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Stats{ring: make([]slot, ringSize)}
}

func (s *Stats) index(seq uint16) int {
	return int(seq) % len(s.ring)
}

// slotFor returns the ring slot for seq, evicting whatever it currently
// holds into total first if it belongs to a different sequence number.
// Caller must hold s.mu.
func (s *Stats) slotFor(seq uint16) *slot {
	idx := s.index(seq)
	sl := &s.ring[idx]
	if sl.occupied && sl.seq != seq {
		s.evict(sl)
	}
	if !sl.occupied {
		*sl = slot{seq: seq, occupied: true}
	}
	return sl
}

// evict folds a slot's contribution into total before it's reused: a slot
// that was still waiting on a packet that never arrived counts as dropped,
// otherwise its already-recorded window counts move to total. Caller must
// hold s.mu.
func (s *Stats) evict(sl *slot) {
	if sl.pending {
		s.total.Dropped++
	} else {
		s.total.add(sl.counts)
		s.window.Received -= sl.counts.Received
		s.window.OutOfOrder -= sl.counts.OutOfOrder
		s.window.Duplicate -= sl.counts.Duplicate
		s.window.TooLate -= sl.counts.TooLate
	}
	*sl = slot{}
}

// Update records the arrival of seq, deriving delta = seq - most_recent_seq
// (wrapping 16-bit, signed). A delta greater than 1 pushes delta-1
// placeholder "not yet received" slots; a seq that isn't exactly
// most_recent_seq+1 — whether because it's ahead of a gap, behind
// (filling an earlier gap), or a repeat — counts as out of order.
func (s *Stats) Update(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveMostRecent {
		sl := s.slotFor(seq)
		sl.counts.Received++
		s.window.Received++
		s.mostRecentSeq = seq
		s.haveMostRecent = true
		return
	}

	delta := int16(seq - s.mostRecentSeq)
	expected := s.mostRecentSeq + 1
	outOfOrder := seq != expected

	if delta > 1 {
		for i := uint16(1); i < uint16(delta); i++ {
			gap := s.slotFor(s.mostRecentSeq + i)
			gap.pending = true
		}
	}

	sl := s.slotFor(seq)
	wasDuplicate := sl.counts.Received > 0 && !sl.pending
	sl.pending = false
	sl.counts.Received++
	s.window.Received++
	if outOfOrder {
		sl.counts.OutOfOrder++
		s.window.OutOfOrder++
	}
	if wasDuplicate {
		sl.counts.Duplicate++
		s.window.Duplicate++
	}
	if delta > 0 {
		s.mostRecentSeq = seq
	}
}

// MarkTooLate records that the buffered packet for seq arrived after its
// playout deadline, called by consumers (the jitter buffer reader), not by
// Update.
func (s *Stats) MarkTooLate(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.index(seq)
	sl := &s.ring[idx]
	if sl.occupied && sl.seq == seq {
		sl.counts.TooLate++
		s.window.TooLate++
	}
}

// Window returns the current ring's aggregate counts.
func (s *Stats) Window() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Total returns the counts folded in from evicted slots.
func (s *Stats) Total() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Reset zeroes every counter and forgets ring contents.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		s.ring[i] = slot{}
	}
	s.window = Counts{}
	s.total = Counts{}
	s.haveMostRecent = false
	s.mostRecentSeq = 0
}
