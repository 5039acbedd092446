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

package dnssd

import "sync"

// MockBrowser is a Browser a test drives directly: BrowseFor just records
// the requested service type, and the test calls SimulateResolved /
// SimulateRemoved to emit events as if a real mDNS responder had sent them.
type MockBrowser struct {
	mu       sync.Mutex
	browsing []string
	resolved Signal
	removed  Signal
	closed   bool
}

// NewMockBrowser returns a MockBrowser with no active browse.
func NewMockBrowser() *MockBrowser { return &MockBrowser{} }

// BrowseFor records serviceType as browsed. It never fails.
func (m *MockBrowser) BrowseFor(serviceType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.browsing = append(m.browsing, serviceType)
	return nil
}

// BrowsedTypes returns every service type passed to BrowseFor, in order.
func (m *MockBrowser) BrowsedTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.browsing...)
}

// Resolved implements Browser.
func (m *MockBrowser) Resolved() *Signal { return &m.resolved }

// Removed implements Browser.
func (m *MockBrowser) Removed() *Signal { return &m.removed }

// Close marks the browser closed; further Simulate* calls are no-ops.
func (m *MockBrowser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SimulateResolved emits desc on Resolved, as a real backend would on
// discovering a matching service.
func (m *MockBrowser) SimulateResolved(desc ServiceDescription) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.resolved.Emit(desc)
}

// SimulateRemoved emits desc on Removed.
func (m *MockBrowser) SimulateRemoved(desc ServiceDescription) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.removed.Emit(desc)
}

// MockAdvertiser is an Advertiser a test can inspect: Advertise records the
// last advertised service instead of touching the network.
type MockAdvertiser struct {
	mu         sync.Mutex
	advertised *ServiceDescription
	withdrawn  bool
}

// NewMockAdvertiser returns a MockAdvertiser advertising nothing.
func NewMockAdvertiser() *MockAdvertiser { return &MockAdvertiser{} }

// Advertise records the service as advertised. It never fails.
func (m *MockAdvertiser) Advertise(name, serviceType string, port int, txt TxtRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertised = &ServiceDescription{Name: name, Type: serviceType, Port: port, Txt: txt}
	m.withdrawn = false
	return nil
}

// Withdraw clears the advertised service.
func (m *MockAdvertiser) Withdraw() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawn = true
	return nil
}

// Advertised returns the most recently advertised service, or nil if none
// is currently advertised (never advertised, or withdrawn since).
func (m *MockAdvertiser) Advertised() *ServiceDescription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.withdrawn {
		return nil
	}
	return m.advertised
}
