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

package syncx

import "sync/atomic"

// RingBuffer is a single-producer/single-consumer lock-free byte ring. The
// jitter buffer builds on it: the writer advances writePos, the reader
// advances readPos, and both proceed independently as long as the reader
// never laps the writer.
type RingBuffer struct {
	buf      []byte
	writePos atomic.Uint64
	readPos  atomic.Uint64
	capacity uint64
}

// NewRingBuffer allocates a ring buffer of the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buf:      make([]byte, capacity),
		capacity: uint64(capacity),
	}
}

// Cap returns the buffer's capacity in bytes.
func (r *RingBuffer) Cap() int { return int(r.capacity) }

// WriteAt writes data at the given absolute byte offset, wrapping modulo
// capacity. Only the single writer goroutine may call WriteAt.
func (r *RingBuffer) WriteAt(offset uint64, data []byte) {
	pos := offset % r.capacity
	n := copy(r.buf[pos:], data)
	if n < len(data) {
		copy(r.buf, data[n:])
	}
	r.writePos.Store(offset + uint64(len(data)))
}

// ReadAt copies capacity-wrapped bytes starting at offset into dst,
// returning the number of bytes copied. Only the single reader goroutine
// may call ReadAt.
func (r *RingBuffer) ReadAt(offset uint64, dst []byte) int {
	pos := offset % r.capacity
	n := copy(dst, r.buf[pos:])
	if n < len(dst) {
		n += copy(dst[n:], r.buf[:])
	}
	r.readPos.Store(offset + uint64(n))
	return n
}

// ZeroAt clears length bytes starting at offset, used to zero freed regions
// on eviction so gaps read back as silence.
func (r *RingBuffer) ZeroAt(offset uint64, length int) {
	pos := offset % r.capacity
	end := pos + uint64(length)
	if end <= r.capacity {
		clear(r.buf[pos:end])
		return
	}
	clear(r.buf[pos:])
	clear(r.buf[:end-r.capacity])
}

// WritePos returns the last published write offset.
func (r *RingBuffer) WritePos() uint64 { return r.writePos.Load() }

// ReadPos returns the last consumed read offset.
func (r *RingBuffer) ReadPos() uint64 { return r.readPos.Load() }
