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

package ravenna

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravenna-audio/ravennad/config"
	"github.com/ravenna-audio/ravennad/sdp"
)

func testConfig() *config.Config {
	return &config.Config{
		PrimaryInterface:    "eth0",
		ClockDomain:         0,
		SessionName:         "studio1",
		DestinationAddress:  "239.1.2.3",
		Ptime:               0.001,
		AudioFormat: config.AudioFormat{
			SampleRate:    48000,
			Channels:      2,
			BitsPerSample: 24,
			ByteOrder:     config.BigEndian,
		},
		Enabled: true,
	}
}

func TestNewRejectsMissingDestination(t *testing.T) {
	cfg := testConfig()
	cfg.DestinationAddress = ""
	_, err := New(cfg, 5004, 98, "gm-1")
	require.Error(t, err)
}

func TestNewRejectsUnsupportedBitsPerSample(t *testing.T) {
	cfg := testConfig()
	cfg.AudioFormat.BitsPerSample = 32
	_, err := New(cfg, 5004, 98, "gm-1")
	require.Error(t, err)
}

func TestNewDerivesRTPSessionFromConfig(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, 5004, 98, "gm-1")
	require.NoError(t, err)
	require.Equal(t, uint16(5004), s.RTPSession.RTPPort)
	require.Equal(t, uint16(5005), s.RTPSession.RTCPPort)
	require.Equal(t, uint8(98), s.RTPSession.PayloadType)
	require.Equal(t, uint32(48000), s.RTPSession.ClockRate)
	require.Equal(t, 2, s.RTPSession.Channels)
	require.Equal(t, 48, s.FrameCount())
	require.False(t, s.Running())
}

func TestSessionSDPRoundTripsThroughGenerateAndParse(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, 5004, 98, "gm-1")
	require.NoError(t, err)

	raw, err := sdp.Generate(s.SDP())
	require.NoError(t, err)

	parsed, err := sdp.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "studio1", parsed.SessionName)
	require.Equal(t, "239.1.2.3", parsed.ConnectionAddress)
	require.Equal(t, "gm-1", parsed.RefClock.GrandmasterIdentity)
	require.Equal(t, uint8(0), parsed.RefClock.Domain)
	require.True(t, parsed.MediaClockDirect)
	require.Len(t, parsed.Media, 1)
	require.Equal(t, "L24", parsed.Media[0].Codec)
	require.Equal(t, 48, parsed.Media[0].FrameCount)
}

func TestStartStopTogglesRunning(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, 5004, 98, "gm-1")
	require.NoError(t, err)

	produced := 0
	sent := 0
	s.Start(
		func() uint64 { return 96 },
		func(frames int) ([]byte, error) {
			produced++
			return make([]byte, frames*2*3), nil
		},
		func([]byte) error {
			sent++
			return nil
		},
		0,
	)
	require.True(t, s.Running())

	require.NoError(t, s.Tick())
	require.Greater(t, sent, 0)
	require.Equal(t, sent, produced)
	require.Greater(t, s.SequenceNumber(), uint16(0))
	require.Greater(t, s.RTPTimestamp(), uint32(0))

	s.Stop()
	require.False(t, s.Running())
	require.Equal(t, uint32(0), s.RTPTimestamp())
	require.Equal(t, uint16(0), s.SequenceNumber())
	require.NoError(t, s.Tick())
}

func TestPathDerivesFromSessionName(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, 5004, 98, "gm-1")
	require.NoError(t, err)
	require.Equal(t, "/studio1", s.Path())
}
