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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalSDP = "v=0\r\n" +
	"o=- 1 0 IN IP4 10.0.0.1\r\n" +
	"s=s\r\n" +
	"c=IN IP4 239.1.2.3/15\r\n" +
	"t=0 0\r\n" +
	"m=audio 5004 RTP/AVP 96\r\n" +
	"a=rtpmap:96 L24/48000/2\r\n" +
	"a=ptime:1\r\n"

func TestParseMinimalDescription(t *testing.T) {
	desc, err := Parse([]byte(minimalSDP))
	require.NoError(t, err)

	require.Equal(t, "10.0.0.1", desc.OriginAddress)
	require.Equal(t, "239.1.2.3/15", desc.ConnectionAddress)
	require.Len(t, desc.Media, 1)

	m := desc.Media[0]
	require.Equal(t, 5004, m.Port)
	require.Equal(t, uint8(96), m.PayloadType)
	require.Equal(t, "L24", m.Codec)
	require.Equal(t, 24, m.BitsPerSample())
	require.Equal(t, uint32(48000), m.ClockRate)
	require.Equal(t, 2, m.Channels)
	require.Equal(t, time.Millisecond, m.Ptime)
}

func TestParseRefClockAndMediaClockAndSourceFilter(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 0 IN IP4 10.0.0.1\r\n" +
		"s=s\r\n" +
		"c=IN IP4 239.1.2.3/15\r\n" +
		"t=0 0\r\n" +
		"a=ts-refclk:ptp=IEEE1588-2008:00-11-22-FF-FE-33-44-55:0\r\n" +
		"a=mediaclk:direct=0\r\n" +
		"m=audio 5004 RTP/AVP 96\r\n" +
		"a=rtpmap:96 L16/48000/2\r\n" +
		"a=framecount:48\r\n" +
		"a=source-filter: incl IN IP4 239.1.2.3 10.0.0.2\r\n" +
		"a=recvonly\r\n"

	desc, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.NotNil(t, desc.RefClock)
	require.Equal(t, "00-11-22-FF-FE-33-44-55", desc.RefClock.GrandmasterIdentity)
	require.Equal(t, uint8(0), desc.RefClock.Domain)
	require.True(t, desc.MediaClockDirect)

	m := desc.Media[0]
	require.Equal(t, 48, m.FrameCount)
	require.Equal(t, "recvonly", m.Direction)
	require.NotNil(t, m.SourceFilter)
	require.True(t, m.SourceFilter.Include)
	require.Equal(t, "239.1.2.3", m.SourceFilter.Destination)
	require.Equal(t, []string{"10.0.0.2"}, m.SourceFilter.Sources)
}

func TestParseRejectsMissingRtpmap(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 0 IN IP4 10.0.0.1\r\n" +
		"s=s\r\n" +
		"c=IN IP4 239.1.2.3/15\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 96\r\n"

	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsUnsupportedMediaClock(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 0 IN IP4 10.0.0.1\r\n" +
		"s=s\r\n" +
		"c=IN IP4 239.1.2.3/15\r\n" +
		"t=0 0\r\n" +
		"a=mediaclk:sender=0,0\r\n" +
		"m=audio 5004 RTP/AVP 96\r\n" +
		"a=rtpmap:96 L16/48000/2\r\n"

	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestGenerateParseRoundTrip(t *testing.T) {
	desc := &Description{
		Username:          "-",
		SessionID:         1,
		SessionVersion:    0,
		OriginAddress:     "10.0.0.1",
		SessionName:       "s",
		ConnectionAddress: "239.1.2.3/15",
		RefClock:          &RefClock{GrandmasterIdentity: "00-11-22-FF-FE-33-44-55", Domain: 0},
		MediaClockDirect:  true,
		Media: []Media{
			{
				Port:        5004,
				PayloadType: 96,
				Codec:       "L24",
				ClockRate:   48000,
				Channels:    2,
				Ptime:       time.Millisecond,
				FrameCount:  48,
				Direction:   "recvonly",
				SourceFilter: &SourceFilter{
					Include:     true,
					Destination: "239.1.2.3",
					Sources:     []string{"10.0.0.2"},
				},
			},
		},
	}

	raw, err := Generate(desc)
	require.NoError(t, err)

	roundTripped, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, desc, roundTripped)

	raw2, err := Generate(roundTripped)
	require.NoError(t, err)
	require.Equal(t, raw, raw2)
}

func TestGenerateRejectsUnsupportedCodec(t *testing.T) {
	desc := &Description{
		OriginAddress: "10.0.0.1",
		SessionName:   "s",
		Media: []Media{
			{Port: 5004, PayloadType: 96, Codec: "L32", ClockRate: 48000, Channels: 2},
		},
	}
	_, err := Generate(desc)
	require.Error(t, err)
}
