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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterleaveDeinterleaveIsInvolution(t *testing.T) {
	for channels := 1; channels <= 4; channels++ {
		const frames = 5
		width := Int16.BytesPerSample()

		original := make([]byte, frames*channels*width)
		for i := range original {
			original[i] = byte(i*7 + channels)
		}

		planar := make([][]byte, channels)
		for c := range planar {
			planar[c] = make([]byte, frames*width)
		}
		require.NoError(t, Deinterleave(Int16, channels, original, planar))

		back := make([]byte, len(original))
		require.NoError(t, Interleave(Int16, channels, planar, back))

		require.True(t, bytes.Equal(original, back), "channels=%d", channels)
	}
}

func TestDeinterleaveRejectsChannelMismatch(t *testing.T) {
	err := Deinterleave(Int16, 2, make([]byte, 8), [][]byte{make([]byte, 4)})
	require.Error(t, err)
}
