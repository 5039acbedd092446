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

package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	b, err := Encode(96, 1000, 48000, 0xdeadbeef, false, payload)
	require.NoError(t, err)

	v, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, uint8(96), v.PayloadType)
	require.Equal(t, uint16(1000), v.SequenceNumber)
	require.Equal(t, uint32(48000), v.Timestamp)
	require.Equal(t, uint32(0xdeadbeef), v.SSRC)
	require.Equal(t, payload, v.Payload)
}

func TestDecodeRejectsOversizedPacket(t *testing.T) {
	oversized := make([]byte, MaxPacketSize+1)
	_, err := Decode(oversized)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0x80, 0x60})
	require.Error(t, err)
}
