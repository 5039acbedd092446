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

// Package sdp parses and generates AES67/RAVENNA session descriptions: the
// base v=/o=/s=/c=/t=/m= grammar is handled by pion/sdp/v3, and this
// package layers the reference-clock, media-clock, source-filter,
// framecount and ptime attributes AES67 streaming needs on top of it.
package sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	psdp "github.com/pion/sdp/v3"
)

// RefClock is the session-level PTP reference clock attribute
// (ts-refclk:ptp=IEEE1588-2008:<grandmaster-identity>:<domain>).
type RefClock struct {
	GrandmasterIdentity string
	Domain              uint8
}

// SourceFilter restricts which source addresses a destination accepts, as
// carried by a=source-filter.
type SourceFilter struct {
	Include     bool
	Destination string
	Sources     []string
}

// Media describes one m=audio block and its AES67 attributes.
type Media struct {
	Port         int
	PayloadType  uint8
	Codec        string // "L16" or "L24"
	ClockRate    uint32
	Channels     int
	Ptime        time.Duration
	FrameCount   int
	Direction    string // sendonly, recvonly, sendrecv, inactive; "" if unset
	SourceFilter *SourceFilter
}

// BitsPerSample returns the sample width implied by Codec.
func (m Media) BitsPerSample() int {
	switch m.Codec {
	case "L16":
		return 16
	case "L24":
		return 24
	default:
		return 0
	}
}

// Description is a parsed or to-be-generated AES67 session description.
type Description struct {
	Username          string
	SessionID         uint64
	SessionVersion    uint64
	OriginAddress     string
	SessionName       string
	ConnectionAddress string // e.g. "239.1.2.3/15"
	RefClock          *RefClock
	MediaClockDirect  bool // mediaclk:direct=0, per ST 2110-30 always offset 0
	Media             []Media
}

// Parse decodes raw into a Description. Base-grammar errors (missing or
// malformed v=/o=/s=/c=/t=/m= lines) come from the underlying SDP parser;
// AES67 attribute errors (a missing rtpmap, an unparseable ts-refclk) are
// reported with the offending attribute named.
func Parse(raw []byte) (*Description, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("sdp: %w", err)
	}

	desc := &Description{
		Username:       sd.Origin.Username,
		SessionID:      sd.Origin.SessionID,
		SessionVersion: sd.Origin.SessionVersion,
		OriginAddress:  sd.Origin.UnicastAddress,
		SessionName:    string(sd.SessionName),
	}
	if ci := sd.ConnectionInformation; ci != nil && ci.Address != nil {
		addr := ci.Address.Address
		if ci.Address.TTL != nil {
			addr += "/" + strconv.Itoa(*ci.Address.TTL)
		}
		if ci.Address.Range != nil {
			addr += "/" + strconv.Itoa(*ci.Address.Range)
		}
		desc.ConnectionAddress = addr
	}

	for _, a := range sd.Attributes {
		switch a.Key {
		case "ts-refclk":
			rc, err := parseRefClock(a.Value)
			if err != nil {
				return nil, fmt.Errorf("sdp: a=ts-refclk: %w", err)
			}
			desc.RefClock = rc
		case "mediaclk":
			if a.Value != "direct=0" {
				return nil, fmt.Errorf("sdp: a=mediaclk: unsupported value %q, only direct=0 is implemented", a.Value)
			}
			desc.MediaClockDirect = true
		}
	}

	for _, m := range sd.MediaDescriptions {
		if m.MediaName.Media != "audio" {
			continue
		}
		media, err := parseMedia(m)
		if err != nil {
			return nil, err
		}
		desc.Media = append(desc.Media, media)
	}

	return desc, nil
}

func parseMedia(m *psdp.MediaDescription) (Media, error) {
	media := Media{Port: m.MediaName.Port.Value}

	rtpmap, ok := findAttribute(m.Attributes, "rtpmap")
	if !ok {
		return Media{}, fmt.Errorf("sdp: m=audio missing required a=rtpmap attribute")
	}
	pt, codec, rate, channels, err := parseRtpmap(rtpmap)
	if err != nil {
		return Media{}, fmt.Errorf("sdp: a=rtpmap: %w", err)
	}
	media.PayloadType, media.Codec, media.ClockRate, media.Channels = pt, codec, rate, channels

	if ptime, ok := findAttribute(m.Attributes, "ptime"); ok {
		ms, err := strconv.ParseFloat(ptime, 64)
		if err != nil {
			return Media{}, fmt.Errorf("sdp: a=ptime: %w", err)
		}
		media.Ptime = time.Duration(ms * float64(time.Millisecond))
	}

	if fc, ok := findAttribute(m.Attributes, "framecount"); ok {
		n, err := strconv.Atoi(fc)
		if err != nil {
			return Media{}, fmt.Errorf("sdp: a=framecount: %w", err)
		}
		media.FrameCount = n
	}

	if sf, ok := findAttribute(m.Attributes, "source-filter"); ok {
		filter, err := parseSourceFilter(sf)
		if err != nil {
			return Media{}, fmt.Errorf("sdp: a=source-filter: %w", err)
		}
		media.SourceFilter = filter
	}

	for _, dir := range []string{"sendonly", "recvonly", "sendrecv", "inactive"} {
		if hasPropertyAttribute(m.Attributes, dir) {
			media.Direction = dir
			break
		}
	}

	return media, nil
}

func findAttribute(attrs []psdp.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return strings.TrimSpace(a.Value), true
		}
	}
	return "", false
}

func hasPropertyAttribute(attrs []psdp.Attribute, key string) bool {
	for _, a := range attrs {
		if a.Key == key && a.Value == "" {
			return true
		}
	}
	return false
}

// parseRtpmap parses "<pt> L24/48000/2" into its payload type, codec,
// clock rate and channel count.
func parseRtpmap(value string) (pt uint8, codec string, rate uint32, channels int, err error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return 0, "", 0, 0, fmt.Errorf("malformed rtpmap %q", value)
	}
	ptN, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return 0, "", 0, 0, fmt.Errorf("malformed payload type: %w", err)
	}
	parts := strings.Split(fields[1], "/")
	if len(parts) != 3 {
		return 0, "", 0, 0, fmt.Errorf("malformed encoding %q", fields[1])
	}
	rateN, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, "", 0, 0, fmt.Errorf("malformed clock rate: %w", err)
	}
	chN, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, "", 0, 0, fmt.Errorf("malformed channel count: %w", err)
	}
	return uint8(ptN), parts[0], uint32(rateN), chN, nil
}

// parseRefClock parses "ptp=IEEE1588-2008:<gm-id>:<domain>".
func parseRefClock(value string) (*RefClock, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 || parts[0] != "ptp=IEEE1588-2008" {
		return nil, fmt.Errorf("unsupported ts-refclk value %q", value)
	}
	domain, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("malformed domain: %w", err)
	}
	return &RefClock{GrandmasterIdentity: parts[1], Domain: uint8(domain)}, nil
}

// parseSourceFilter parses "incl IN IP4 <dst> <src1> <src2> ...".
func parseSourceFilter(value string) (*SourceFilter, error) {
	fields := strings.Fields(value)
	if len(fields) < 4 {
		return nil, fmt.Errorf("malformed source-filter %q", value)
	}
	include := fields[0] == "incl"
	if !include && fields[0] != "excl" {
		return nil, fmt.Errorf("unknown filter mode %q", fields[0])
	}
	return &SourceFilter{
		Include:     include,
		Destination: fields[3],
		Sources:     fields[4:],
	}, nil
}
