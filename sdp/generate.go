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

package sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	psdp "github.com/pion/sdp/v3"
)

// Generate marshals desc into SDP-canonical wire bytes.
func Generate(desc *Description) ([]byte, error) {
	sd := &psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       desc.Username,
			SessionID:      desc.SessionID,
			SessionVersion: desc.SessionVersion,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: desc.OriginAddress,
		},
		SessionName: psdp.SessionName(desc.SessionName),
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	if desc.ConnectionAddress != "" {
		sd.ConnectionInformation = connectionInformation(desc.ConnectionAddress)
	}

	var attrs []psdp.Attribute
	if desc.RefClock != nil {
		attrs = append(attrs, psdp.NewAttribute("ts-refclk",
			fmt.Sprintf("ptp=IEEE1588-2008:%s:%d", desc.RefClock.GrandmasterIdentity, desc.RefClock.Domain)))
	}
	if desc.MediaClockDirect {
		attrs = append(attrs, psdp.NewAttribute("mediaclk", "direct=0"))
	}
	sd.Attributes = attrs

	for _, m := range desc.Media {
		md, err := mediaDescription(m)
		if err != nil {
			return nil, err
		}
		sd.MediaDescriptions = append(sd.MediaDescriptions, md)
	}

	return sd.Marshal()
}

func connectionInformation(addr string) *psdp.ConnectionInformation {
	parts := strings.Split(addr, "/")
	a := &psdp.Address{Address: parts[0]}
	if len(parts) > 1 {
		if ttl, err := strconv.Atoi(parts[1]); err == nil {
			a.TTL = &ttl
		}
	}
	if len(parts) > 2 {
		if r, err := strconv.Atoi(parts[2]); err == nil {
			a.Range = &r
		}
	}
	return &psdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     a,
	}
}

func mediaDescription(m Media) (*psdp.MediaDescription, error) {
	if m.Codec != "L16" && m.Codec != "L24" {
		return nil, fmt.Errorf("sdp: unsupported codec %q", m.Codec)
	}

	md := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "audio",
			Port:    psdp.RangedPort{Value: m.Port},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{strconv.Itoa(int(m.PayloadType))},
		},
	}

	md.Attributes = append(md.Attributes, psdp.NewAttribute("rtpmap",
		fmt.Sprintf("%d %s/%d/%d", m.PayloadType, m.Codec, m.ClockRate, m.Channels)))

	if m.Ptime > 0 {
		ms := float64(m.Ptime) / float64(time.Millisecond)
		md.Attributes = append(md.Attributes, psdp.NewAttribute("ptime", strconv.FormatFloat(ms, 'g', -1, 64)))
	}
	if m.FrameCount > 0 {
		md.Attributes = append(md.Attributes, psdp.NewAttribute("framecount", strconv.Itoa(m.FrameCount)))
	}
	if m.SourceFilter != nil {
		mode := "excl"
		if m.SourceFilter.Include {
			mode = "incl"
		}
		value := fmt.Sprintf(" %s IN IP4 %s %s", mode, m.SourceFilter.Destination, strings.Join(m.SourceFilter.Sources, " "))
		md.Attributes = append(md.Attributes, psdp.NewAttribute("source-filter", value))
	}
	if m.Direction != "" {
		md.Attributes = append(md.Attributes, psdp.NewPropertyAttribute(m.Direction))
	}

	return md, nil
}
