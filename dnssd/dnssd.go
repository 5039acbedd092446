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

// Package dnssd abstracts DNS-SD/mDNS service browsing and advertisement
// behind Browser and Advertiser interfaces, so the rest of the node never
// depends on a concrete mDNS backend directly. RAVENNA nodes advertise and
// browse for `_rtsp._tcp` with the `_ravenna` and `_ravenna_session`
// subtypes.
package dnssd

import "net/netip"

// RAVENNA service types and subtypes, per the node's discovery contract.
const (
	ServiceTypeRTSP = "_rtsp._tcp"
	SubtypeNode     = "_ravenna"
	SubtypeSession  = "_ravenna_session"
)

// TxtRecord is a service's TXT record, keyed by attribute name.
type TxtRecord map[string]string

// ServiceDescription identifies one resolved or advertised DNS-SD service.
type ServiceDescription struct {
	Fullname  string
	Name      string
	Type      string
	Domain    string
	Host      string
	Port      int
	Txt       TxtRecord
	Addresses []netip.Addr // one set of addresses per responding interface
}

// Browser browses for instances of a service type, emitting Resolved for
// newly (re-)discovered services and Removed once a service is no longer
// advertised.
type Browser interface {
	// BrowseFor starts browsing for serviceType (e.g. ServiceTypeRTSP). It
	// returns once browsing has started; discoveries arrive asynchronously
	// via Resolved/Removed.
	BrowseFor(serviceType string) error
	Resolved() *Signal
	Removed() *Signal
	Close() error
}

// Advertiser registers one named service with a TXT record on a port.
type Advertiser interface {
	Advertise(name, serviceType string, port int, txt TxtRecord) error
	Withdraw() error
}
