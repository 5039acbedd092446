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
	"sync"
)

// Filter is a source-address allow/deny list for one session. An empty
// filter accepts any source; an exclude entry always wins over an include
// entry for the same address.
type Filter struct {
	mu      sync.Mutex
	include map[netip.Addr]struct{}
	exclude map[netip.Addr]struct{}
}

// NewFilter creates an empty Filter (accepts any source).
func NewFilter() *Filter {
	return &Filter{}
}

// Include allows src, unless it's also excluded.
func (f *Filter) Include(src netip.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.include == nil {
		f.include = make(map[netip.Addr]struct{})
	}
	f.include[src] = struct{}{}
}

// Exclude denies src regardless of any include rule.
func (f *Filter) Exclude(src netip.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exclude == nil {
		f.exclude = make(map[netip.Addr]struct{})
	}
	f.exclude[src] = struct{}{}
}

// Accepts reports whether src is permitted by the filter.
func (f *Filter) Accepts(src netip.Addr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, denied := f.exclude[src]; denied {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	_, allowed := f.include[src]
	return allowed
}
