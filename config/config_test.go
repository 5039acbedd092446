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

package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		PrimaryInterface: "eth0",
		ClockDomain:      0,
		SessionName:      "studio1",
		Ptime:            0.001,
		AudioFormat: AudioFormat{
			SampleRate:    48000,
			Channels:      2,
			BitsPerSample: 24,
			ByteOrder:     BigEndian,
		},
		Enabled: true,
	}
}

func TestLoadValidConfig(t *testing.T) {
	raw := `{
		"primary_interface": "eth0",
		"clock_domain": 0,
		"session_name": "studio1",
		"ptime": 0.001,
		"audio_format": {"sample_rate": 48000, "channels": 2, "bits_per_sample": 24, "byte_order": "big_endian"},
		"enabled": true
	}`
	c, err := Load(strings.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "eth0", c.PrimaryInterface)
	require.Equal(t, 48, c.FrameCount())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := validConfig()
	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}

func TestValidateRejectsMissingPrimaryInterface(t *testing.T) {
	c := validConfig()
	c.PrimaryInterface = ""
	require.Error(t, c.Validate())
}

func TestValidateRejectsOutOfRangeClockDomain(t *testing.T) {
	c := validConfig()
	c.ClockDomain = 200
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnsupportedBitsPerSample(t *testing.T) {
	c := validConfig()
	c.AudioFormat.BitsPerSample = 8
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnsupportedByteOrder(t *testing.T) {
	c := validConfig()
	c.AudioFormat.ByteOrder = "middle_endian"
	require.Error(t, c.Validate())
}

func TestPtimeDuration(t *testing.T) {
	c := validConfig()
	require.Equal(t, uint32(48000), c.AudioFormat.SampleRate)
	require.InDelta(t, 1e6, float64(c.PtimeDuration().Nanoseconds()), 1)
}
