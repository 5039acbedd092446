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

// Package eventbus implements the node's event emitter: reactive
// components (the PTP port, RTP sessions, the RTSP server) publish events
// like ParentChangedEvent, ServiceResolved, or ServiceRemoved to whoever
// subscribed, without either side holding a reference back to the other.
package eventbus

import "sync"

// Signal is a typed publish/subscribe point for a single event type. It
// adapts the intrusive subscriber-list idiom to Go: rather than a
// subscriber node holding a back-reference into the emitter (needed in the
// original to avoid a GC), Subscribe returns a cancel func the caller holds
// instead.
type Signal[T any] struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]func(T)
}

// Subscribe registers handler to be called on every future Emit, returning
// a cancel func that unregisters it. Safe to call from multiple goroutines.
func (s *Signal[T]) Subscribe(handler func(T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers == nil {
		s.subscribers = make(map[uint64]func(T))
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Emit calls every currently-registered handler with event, in unspecified
// order. Handlers registered or cancelled during Emit do not affect the
// current call.
func (s *Signal[T]) Emit(event T) {
	s.mu.Lock()
	handlers := make([]func(T), 0, len(s.subscribers))
	for _, h := range s.subscribers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// HandlerCount returns the number of currently-registered subscribers.
func (s *Signal[T]) HandlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
