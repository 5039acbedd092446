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

// Package audio converts PCM samples between the wire formats AES67
// streams carry (big-endian L16/L24) and the native formats audio devices
// and mixers want, including interleaved/non-interleaved layout changes.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format identifies a PCM sample encoding.
type Format uint8

const (
	Int16 Format = iota
	Int24
	Float32
)

// BytesPerSample returns the wire width of one sample in the format.
func (f Format) BytesPerSample() int {
	switch f {
	case Int16:
		return 2
	case Int24:
		return 3
	case Float32:
		return 4
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case Int16:
		return "L16"
	case Int24:
		return "L24"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// decodeFuncs and encodeFuncs are the outer dispatch table, one entry per
// Format; each entry is itself parameterized by byte order, so the inner
// (src-order, dst-order) dimension never needs its own N×N table — only
// two concrete orders (big/little) exist, and every format-level function
// already knows how to read or write either.
var decodeFuncs = [...]func(binary.ByteOrder, []byte) float64{
	Int16:   decodeInt16,
	Int24:   decodeInt24,
	Float32: decodeFloat32,
}

var encodeFuncs = [...]func(binary.ByteOrder, float64, []byte){
	Int16:   encodeInt16,
	Int24:   encodeInt24,
	Float32: encodeFloat32,
}

func decodeInt16(order binary.ByteOrder, b []byte) float64 {
	v := int16(order.Uint16(b))
	return float64(v) / 32768.0
}

func encodeInt16(order binary.ByteOrder, v float64, b []byte) {
	order.PutUint16(b, uint16(int16(clampScaled(v, 32768, -32768, 32767))))
}

func decodeInt24(order binary.ByteOrder, b []byte) float64 {
	var raw int32
	if order == binary.BigEndian {
		raw = int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	} else {
		raw = int32(b[2])<<16 | int32(b[1])<<8 | int32(b[0])
	}
	if raw&0x800000 != 0 {
		raw |= ^int32(0xFFFFFF) // sign-extend from 24 to 32 bits
	}
	return float64(raw) / 8388608.0
}

func encodeInt24(order binary.ByteOrder, v float64, b []byte) {
	raw := int32(clampScaled(v, 8388608, -8388608, 8388607))
	if order == binary.BigEndian {
		b[0] = byte(raw >> 16)
		b[1] = byte(raw >> 8)
		b[2] = byte(raw)
	} else {
		b[0] = byte(raw)
		b[1] = byte(raw >> 8)
		b[2] = byte(raw >> 16)
	}
}

func decodeFloat32(order binary.ByteOrder, b []byte) float64 {
	return float64(math.Float32frombits(order.Uint32(b)))
}

func encodeFloat32(order binary.ByteOrder, v float64, b []byte) {
	order.PutUint32(b, math.Float32bits(float32(v)))
}

func clampScaled(v float64, scale, min, max float64) float64 {
	s := v * scale
	if s < min {
		return min
	}
	if s > max {
		return max
	}
	return s
}

// ConvertSample decodes one sample of srcFormat/srcOrder from src and
// encodes it as dstFormat/dstOrder into dst.
func ConvertSample(srcFormat Format, srcOrder binary.ByteOrder, src []byte, dstFormat Format, dstOrder binary.ByteOrder, dst []byte) error {
	if len(src) < srcFormat.BytesPerSample() {
		return fmt.Errorf("audio: src buffer too short for %s sample", srcFormat)
	}
	if len(dst) < dstFormat.BytesPerSample() {
		return fmt.Errorf("audio: dst buffer too short for %s sample", dstFormat)
	}
	v := decodeFuncs[srcFormat](srcOrder, src)
	encodeFuncs[dstFormat](dstOrder, v, dst)
	return nil
}

// Convert decodes every sample in src (srcFormat/srcOrder) and re-encodes
// it into dst (dstFormat/dstOrder), returning the number of samples
// converted. dst must be at least as large as the converted output.
func Convert(srcFormat Format, srcOrder binary.ByteOrder, src []byte, dstFormat Format, dstOrder binary.ByteOrder, dst []byte) (int, error) {
	srcWidth := srcFormat.BytesPerSample()
	dstWidth := dstFormat.BytesPerSample()
	n := len(src) / srcWidth
	if len(dst) < n*dstWidth {
		return 0, fmt.Errorf("audio: dst has room for %d samples, need %d", len(dst)/dstWidth, n)
	}
	for i := 0; i < n; i++ {
		s := src[i*srcWidth : i*srcWidth+srcWidth]
		d := dst[i*dstWidth : i*dstWidth+dstWidth]
		v := decodeFuncs[srcFormat](srcOrder, s)
		encodeFuncs[dstFormat](dstOrder, v, d)
	}
	return n, nil
}
