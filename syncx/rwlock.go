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

// Package syncx provides the shared concurrency primitives used across the
// node's reactive components: a spinning atomic reader-writer lock, SPSC
// triple- and ring-buffers, and a read-copy-update slot.
package syncx

import (
	"math"
	"runtime"
	"sync/atomic"
)

const (
	rwLockLoopUpperBound = 300_000
	rwLockYieldThreshold = 10
)

// AtomicRWLock is a spinning reader-writer lock built on a single uint32
// counter: even values are reader counts, odd values mean a writer is
// waiting or readers are draining, and math.MaxUint32 means a writer holds
// the lock exclusively. It never blocks on the OS scheduler; callers that
// can't acquire within the loop bound get false back instead of hanging.
type AtomicRWLock struct {
	readers atomic.Uint32
}

// LockExclusive spins until it acquires the exclusive lock or the loop
// upper bound is reached, returning false in the latter case.
func (l *AtomicRWLock) LockExclusive() bool {
	for i := 0; i < rwLockLoopUpperBound; i++ {
		prev := l.readers.Load()
		if prev <= 1 {
			if l.readers.CompareAndSwap(prev, math.MaxUint32) {
				return true
			}
		}
		if prev%2 == 0 {
			l.readers.CompareAndSwap(prev, prev+1)
		}
		if i >= rwLockYieldThreshold {
			runtime.Gosched()
		}
	}
	return false
}

// TryLockExclusive attempts to acquire the exclusive lock without spinning.
func (l *AtomicRWLock) TryLockExclusive() bool {
	prev := l.readers.Load()
	if prev <= 1 {
		return l.readers.CompareAndSwap(prev, math.MaxUint32)
	}
	return false
}

// UnlockExclusive releases a lock held via LockExclusive/TryLockExclusive.
func (l *AtomicRWLock) UnlockExclusive() {
	l.readers.Store(0)
}

// LockShared spins until it acquires a shared (read) lock or the loop upper
// bound is reached.
func (l *AtomicRWLock) LockShared() bool {
	for i := 0; i < rwLockLoopUpperBound; i++ {
		prev := l.readers.Load()
		if prev%2 == 0 && prev < math.MaxUint32-2 {
			if l.readers.CompareAndSwap(prev, prev+2) {
				return true
			}
		}
		if i >= rwLockYieldThreshold {
			runtime.Gosched()
		}
	}
	return false
}

// TryLockShared attempts to acquire a shared lock without spinning.
func (l *AtomicRWLock) TryLockShared() bool {
	prev := l.readers.Load()
	if prev%2 == 0 && prev < math.MaxUint32-2 {
		return l.readers.CompareAndSwap(prev, prev+2)
	}
	return false
}

// UnlockShared releases a lock held via LockShared/TryLockShared.
func (l *AtomicRWLock) UnlockShared() {
	l.readers.Add(^uint32(1)) // readers -= 2
}
