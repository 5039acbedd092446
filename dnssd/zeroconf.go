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

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/grandcat/zeroconf"
)

// DefaultDomain is the mDNS domain RAVENNA nodes browse and advertise in.
const DefaultDomain = "local."

// staleAfter bounds how long a resolved service is kept without a refresh
// before ZeroconfBrowser synthesizes a Removed for it. mDNS advertisers
// re-announce well within this window during normal operation.
const staleAfter = 90 * time.Second

// prunePeriod is how often ZeroconfBrowser checks for stale entries.
const prunePeriod = 30 * time.Second

// ZeroconfBrowser is the Browser backend for platforms with a standard mDNS
// stack, built on github.com/grandcat/zeroconf.
type ZeroconfBrowser struct {
	resolver *zeroconf.Resolver

	mu       sync.Mutex
	lastSeen map[string]time.Time
	byName   map[string]ServiceDescription
	cancel   context.CancelFunc

	resolved Signal
	removed  Signal
}

// NewZeroconfBrowser constructs a browser backed by the host's mDNS stack.
func NewZeroconfBrowser() (*ZeroconfBrowser, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("dnssd: creating zeroconf resolver: %w", err)
	}
	return &ZeroconfBrowser{
		resolver: resolver,
		lastSeen: make(map[string]time.Time),
		byName:   make(map[string]ServiceDescription),
	}, nil
}

// BrowseFor implements Browser.
func (b *ZeroconfBrowser) BrowseFor(serviceType string) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go b.consume(entries)
	go b.pruneLoop(ctx)

	if err := b.resolver.Browse(ctx, serviceType, DefaultDomain, entries); err != nil {
		cancel()
		return fmt.Errorf("dnssd: browsing for %s: %w", serviceType, err)
	}
	return nil
}

func (b *ZeroconfBrowser) consume(entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		desc := toServiceDescription(entry)
		b.mu.Lock()
		b.lastSeen[desc.Fullname] = time.Now()
		b.byName[desc.Fullname] = desc
		b.mu.Unlock()
		b.resolved.Emit(desc)
	}
}

func (b *ZeroconfBrowser) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pruneOnce()
		}
	}
}

func (b *ZeroconfBrowser) pruneOnce() {
	now := time.Now()
	var stale []ServiceDescription

	b.mu.Lock()
	for fullname, seen := range b.lastSeen {
		if now.Sub(seen) > staleAfter {
			stale = append(stale, b.byName[fullname])
			delete(b.lastSeen, fullname)
			delete(b.byName, fullname)
		}
	}
	b.mu.Unlock()

	for _, desc := range stale {
		log.Debugf("dnssd: %s not refreshed within %s, treating as removed", desc.Fullname, staleAfter)
		b.removed.Emit(desc)
	}
}

// Resolved implements Browser.
func (b *ZeroconfBrowser) Resolved() *Signal { return &b.resolved }

// Removed implements Browser.
func (b *ZeroconfBrowser) Removed() *Signal { return &b.removed }

// Close stops browsing.
func (b *ZeroconfBrowser) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func toServiceDescription(entry *zeroconf.ServiceEntry) ServiceDescription {
	var addrs []netip.Addr
	for _, ip := range entry.AddrIPv4 {
		if a, ok := netip.AddrFromSlice(ip.To4()); ok {
			addrs = append(addrs, a)
		}
	}
	for _, ip := range entry.AddrIPv6 {
		if a, ok := netip.AddrFromSlice(ip.To16()); ok {
			addrs = append(addrs, a)
		}
	}

	host := entry.HostName
	if len(addrs) > 0 {
		host = addrs[0].String()
	}

	return ServiceDescription{
		Fullname:  fmt.Sprintf("%s.%s.%s", entry.Instance, entry.Service, entry.Domain),
		Name:      entry.Instance,
		Type:      entry.Service,
		Domain:    entry.Domain,
		Host:      host,
		Port:      entry.Port,
		Txt:       txtToMap(entry.Text),
		Addresses: addrs,
	}
}

// ZeroconfAdvertiser is the Advertiser backend built on zeroconf.Register.
type ZeroconfAdvertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// NewZeroconfAdvertiser returns an Advertiser advertising nothing yet.
func NewZeroconfAdvertiser() *ZeroconfAdvertiser { return &ZeroconfAdvertiser{} }

// Advertise implements Advertiser.
func (a *ZeroconfAdvertiser) Advertise(name, serviceType string, port int, txt TxtRecord) error {
	server, err := zeroconf.Register(name, serviceType, DefaultDomain, port, mapToTxt(txt), nil)
	if err != nil {
		return fmt.Errorf("dnssd: registering %s.%s: %w", name, serviceType, err)
	}

	a.mu.Lock()
	if a.server != nil {
		a.server.Shutdown()
	}
	a.server = server
	a.mu.Unlock()
	return nil
}

// Withdraw implements Advertiser.
func (a *ZeroconfAdvertiser) Withdraw() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

func txtToMap(txt []string) TxtRecord {
	m := make(TxtRecord, len(txt))
	for _, entry := range txt {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			m[entry] = ""
			continue
		}
		m[k] = v
	}
	return m
}

func mapToTxt(m TxtRecord) []string {
	txt := make([]string, 0, len(m))
	for k, v := range m {
		txt = append(txt, k+"="+v)
	}
	return txt
}
