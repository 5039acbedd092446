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

package audio

import "fmt"

// Deinterleave splits an interleaved buffer (frame-major: sample for
// channel 0, channel 1, ..., channel N-1, then the next frame) of the
// given format into one planar buffer per channel.
func Deinterleave(format Format, channels int, interleaved []byte, planar [][]byte) error {
	if channels < 1 {
		return fmt.Errorf("audio: channels must be >= 1, got %d", channels)
	}
	if len(planar) != channels {
		return fmt.Errorf("audio: planar has %d channels, want %d", len(planar), channels)
	}
	width := format.BytesPerSample()
	frameSize := width * channels
	frames := len(interleaved) / frameSize
	for c, p := range planar {
		if len(p) < frames*width {
			return fmt.Errorf("audio: planar channel %d too short for %d frames", c, frames)
		}
	}
	for f := 0; f < frames; f++ {
		base := f * frameSize
		for c := 0; c < channels; c++ {
			src := interleaved[base+c*width : base+(c+1)*width]
			copy(planar[c][f*width:(f+1)*width], src)
		}
	}
	return nil
}

// Interleave is the inverse of Deinterleave: it writes channels planar
// buffers into one frame-major interleaved buffer.
func Interleave(format Format, channels int, planar [][]byte, interleaved []byte) error {
	if channels < 1 {
		return fmt.Errorf("audio: channels must be >= 1, got %d", channels)
	}
	if len(planar) != channels {
		return fmt.Errorf("audio: planar has %d channels, want %d", len(planar), channels)
	}
	width := format.BytesPerSample()
	frames := len(interleaved) / (width * channels)
	for c, p := range planar {
		if len(p) < frames*width {
			return fmt.Errorf("audio: planar channel %d too short for %d frames", c, frames)
		}
	}
	for f := 0; f < frames; f++ {
		base := f * width * channels
		for c := 0; c < channels; c++ {
			dst := interleaved[base+c*width : base+(c+1)*width]
			copy(dst, planar[c][f*width:(f+1)*width])
		}
	}
	return nil
}
