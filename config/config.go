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

// Package config holds the node's persisted configuration: the interfaces
// it binds to, the PTP domain it synchronises against, and the RAVENNA
// session it advertises or receives.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ByteOrder names the wire byte order of a configured audio format.
type ByteOrder string

// Byte orders recognized by audio_format.byte_order. AES67/ST 2110-30 wire
// audio is always big-endian; little_endian exists for local-device formats
// fed into the converter before encoding.
const (
	BigEndian    ByteOrder = "big_endian"
	LittleEndian ByteOrder = "little_endian"
)

// AudioFormat is the audio_format configuration object.
type AudioFormat struct {
	SampleRate    uint32    `json:"sample_rate"`
	Channels      int       `json:"channels"`
	BitsPerSample int       `json:"bits_per_sample"`
	ByteOrder     ByteOrder `json:"byte_order"`
}

// Config is the node's full persisted configuration. Field names match the
// option keys spec.md §6 enumerates exactly, so the JSON form is stable
// across versions of this program.
type Config struct {
	PrimaryInterface   string      `json:"primary_interface"`
	SecondaryInterface string      `json:"secondary_interface,omitempty"`
	ClockDomain        uint8       `json:"clock_domain"`
	SessionName        string      `json:"session_name"`
	DestinationAddress string      `json:"destination_address,omitempty"`
	AudioFormat        AudioFormat `json:"audio_format"`
	Ptime              float64     `json:"ptime"`
	Enabled            bool        `json:"enabled"`
}

// Load decodes a Config from r and validates it.
func Load(r io.Reader) (*Config, error) {
	var c Config
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save encodes c to w as indented JSON.
func (c *Config) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}

// Validate reports fatal configuration errors: the class of error spec.md
// §7 says is returned from the setup call, not recovered from internally.
func (c *Config) Validate() error {
	if c.PrimaryInterface == "" {
		return fmt.Errorf("config: primary_interface is required")
	}
	if c.ClockDomain > 127 {
		return fmt.Errorf("config: clock_domain %d out of range [0,127]", c.ClockDomain)
	}
	if c.SessionName == "" {
		return fmt.Errorf("config: session_name is required")
	}
	if c.Ptime <= 0 {
		return fmt.Errorf("config: ptime must be positive, got %v", c.Ptime)
	}
	if err := c.AudioFormat.validate(); err != nil {
		return err
	}
	return nil
}

func (f AudioFormat) validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("config: audio_format.sample_rate is required")
	}
	if f.Channels < 1 {
		return fmt.Errorf("config: audio_format.channels must be >= 1")
	}
	switch f.BitsPerSample {
	case 16, 24, 32:
	default:
		return fmt.Errorf("config: audio_format.bits_per_sample %d unsupported, want 16, 24 or 32", f.BitsPerSample)
	}
	switch f.ByteOrder {
	case BigEndian, LittleEndian:
	default:
		return fmt.Errorf("config: audio_format.byte_order %q unsupported", f.ByteOrder)
	}
	return nil
}

// PtimeDuration returns Ptime (seconds) as a time.Duration.
func (c *Config) PtimeDuration() time.Duration {
	return time.Duration(c.Ptime * float64(time.Second))
}

// FrameCount returns the number of frames one packet carries at this
// config's sample rate and ptime.
func (c *Config) FrameCount() int {
	return int(float64(c.AudioFormat.SampleRate) * c.Ptime)
}
