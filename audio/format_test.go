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
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const tolerance = 4e-5

func TestConvertInt16BigEndianToFloat32Native(t *testing.T) {
	src := []byte{0x80, 0x00, 0x7F, 0xFF, 0x00, 0x00}
	dst := make([]byte, 3*4)

	n, err := Convert(Int16, binary.BigEndian, src, Float32, NativeOrder, dst)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	want := []float64{-1.0, 1.0, 0.0}
	for i, w := range want {
		got := float64(math.Float32frombits(NativeOrder.Uint32(dst[i*4 : i*4+4])))
		require.InDelta(t, w, got, tolerance)
	}
}

func TestConvertRejectsUndersizedDst(t *testing.T) {
	src := make([]byte, 4) // two int16 samples
	dst := make([]byte, 3) // room for at most 0 float32 samples
	_, err := Convert(Int16, binary.BigEndian, src, Float32, NativeOrder, dst)
	require.Error(t, err)
}

func TestInt24RoundTrip(t *testing.T) {
	samples := []float64{-1.0, -0.5, 0.0, 0.5, 0.999}
	buf := make([]byte, len(samples)*3)
	for i, v := range samples {
		encodeInt24(binary.BigEndian, v, buf[i*3:i*3+3])
	}
	for i, v := range samples {
		got := decodeInt24(binary.BigEndian, buf[i*3:i*3+3])
		require.InDelta(t, v, got, 2e-7)
	}
}
