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

// Package jitter implements the de-jitter buffer the RTP receive path
// writes into and the audio device read loop drains: a circular byte
// buffer indexed by RTP timestamp, sized to absorb network jitter up to a
// configured playout delay.
package jitter

import (
	"fmt"
	"sync"

	"github.com/ravenna-audio/ravennad/syncx"
)

// MinFanout is the smallest ring-to-delay size multiplier accepted by New;
// a ring sized at exactly one delay's worth of frames would let the writer
// lap the reader as soon as jitter exceeds zero.
const MinFanout = 2

// Buffer is a timestamp-indexed circular byte buffer. Writes and reads are
// both single-threaded on their own side (one RTP receive path writes, one
// audio callback reads) and coordinate only through Buffer's own lock.
type Buffer struct {
	ring          *syncx.RingBuffer
	bytesPerFrame int
	delayFrames   int
	capFrames     int

	mu           sync.Mutex
	haveWritten  bool
	mostRecentTS uint32 // exclusive end of the most recently accepted write
	readCursor   uint32
}

// New creates a Buffer sized delay*fanout*bytesPerFrame bytes. delay must
// be at least one frame; fanout must be at least MinFanout.
func New(delayFrames, bytesPerFrame, fanout int) (*Buffer, error) {
	if delayFrames < 1 {
		return nil, fmt.Errorf("jitter: delay must be >= 1 frame, got %d", delayFrames)
	}
	if bytesPerFrame < 1 {
		return nil, fmt.Errorf("jitter: bytesPerFrame must be >= 1, got %d", bytesPerFrame)
	}
	if fanout < MinFanout {
		return nil, fmt.Errorf("jitter: fanout must be >= %d, got %d", MinFanout, fanout)
	}
	capFrames := delayFrames * fanout
	return &Buffer{
		ring:          syncx.NewRingBuffer(capFrames * bytesPerFrame),
		bytesPerFrame: bytesPerFrame,
		delayFrames:   delayFrames,
		capFrames:     capFrames,
	}, nil
}

// Write stores frames at RTP timestamp ts, returning false if the packet
// is older than the playout window and was dropped. The span between the
// previous leading edge and ts, if any, is zeroed so skipped frames read
// back as silence rather than stale audio from an earlier lap.
func (b *Buffer) Write(ts uint32, frames []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameCount := len(frames) / b.bytesPerFrame
	if frameCount == 0 {
		return true
	}

	if b.haveWritten {
		if delta := int32(ts - b.mostRecentTS + uint32(b.delayFrames)); delta < 0 {
			return false
		}
	}

	offset := uint64(ts) * uint64(b.bytesPerFrame)
	b.ring.WriteAt(offset, frames)
	end := ts + uint32(frameCount)

	if !b.haveWritten {
		b.mostRecentTS = end
		b.readCursor = ts
		b.haveWritten = true
	} else if gap := int32(end - b.mostRecentTS); gap > 0 {
		if skipped := int32(ts - b.mostRecentTS); skipped > 0 {
			gapOffset := uint64(b.mostRecentTS) * uint64(b.bytesPerFrame)
			b.ring.ZeroAt(gapOffset, int(skipped)*b.bytesPerFrame)
		}
		b.mostRecentTS = end
	}

	if buffered := int32(b.mostRecentTS - b.readCursor); buffered > int32(b.capFrames) {
		b.readCursor = b.mostRecentTS - uint32(b.capFrames)
	}
	return true
}

// Read copies up to len(dst) bytes (rounded down to a whole number of
// frames) starting at the read cursor, returning the number of bytes
// copied. Read fails (returns 0, leaving state unchanged) unless at least
// delay frames are buffered.
func (b *Buffer) Read(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffered := int32(b.mostRecentTS - b.readCursor)
	if buffered < int32(b.delayFrames) {
		return 0
	}

	frameCapacity := len(dst) / b.bytesPerFrame
	if int32(frameCapacity) > buffered {
		frameCapacity = int(buffered)
	}
	if frameCapacity == 0 {
		return 0
	}

	offset := uint64(b.readCursor) * uint64(b.bytesPerFrame)
	n := b.ring.ReadAt(offset, dst[:frameCapacity*b.bytesPerFrame])
	framesRead := n / b.bytesPerFrame
	b.ring.ZeroAt(offset, framesRead*b.bytesPerFrame)
	b.readCursor += uint32(framesRead)
	return framesRead * b.bytesPerFrame
}

// NumFramesBuffered returns how many frames are currently readable.
func (b *Buffer) NumFramesBuffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(int32(b.mostRecentTS - b.readCursor))
}

// MostRecentTimestamp returns the exclusive end of the last accepted write.
func (b *Buffer) MostRecentTimestamp() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mostRecentTS
}
