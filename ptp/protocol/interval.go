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

package protocol

import "fmt"

// fractionScale is 2**16, the sub-nanosecond scale used throughout PTP
// wire formats and by PtpTimeInterval/PtpTimestamp arithmetic.
const fractionScale = 1 << 16

const nanosPerSecond = 1_000_000_000

// PtpTimeInterval is a signed time span, expressed as whole nanoseconds plus
// a sub-nanosecond fraction scaled by 2**16. It is always kept normalised:
// Fraction is in [0, 2**16). The wire encoding is a single signed 64-bit
// integer equal to Nanos*2**16 + Fraction, matching Correction/TimeInterval
// elsewhere in this package but decomposed into two fields per the exposed
// arithmetic API.
type PtpTimeInterval struct {
	Nanos    int64
	Fraction int32
}

// value packs the interval back into the signed 64-bit wire integer.
func (t PtpTimeInterval) value() int64 {
	return t.Nanos*fractionScale + int64(t.Fraction)
}

// ptpTimeIntervalFromValue unpacks a signed 64-bit wire integer,
// normalising Fraction into [0, 2**16) by using floor division.
func ptpTimeIntervalFromValue(v int64) PtpTimeInterval {
	nanos := v >> 16
	fraction := int32(v & 0xFFFF)
	return PtpTimeInterval{Nanos: nanos, Fraction: fraction}
}

// PtpTimeIntervalFromWire decodes the signed 64-bit wire representation of a
// PTP TimeInterval into a normalised PtpTimeInterval.
func PtpTimeIntervalFromWire(v int64) PtpTimeInterval {
	return ptpTimeIntervalFromValue(v)
}

// Wire encodes t back into the signed 64-bit wire representation.
func (t PtpTimeInterval) Wire() int64 {
	return t.value()
}

// Add returns t+o, normalised.
func (t PtpTimeInterval) Add(o PtpTimeInterval) PtpTimeInterval {
	return ptpTimeIntervalFromValue(t.value() + o.value())
}

// Sub returns t-o, normalised.
func (t PtpTimeInterval) Sub(o PtpTimeInterval) PtpTimeInterval {
	return ptpTimeIntervalFromValue(t.value() - o.value())
}

// Negate returns -t, normalised.
func (t PtpTimeInterval) Negate() PtpTimeInterval {
	return ptpTimeIntervalFromValue(-t.value())
}

// Nanoseconds returns the interval as a float64 count of nanoseconds.
func (t PtpTimeInterval) Nanoseconds() float64 {
	return float64(t.Nanos) + float64(t.Fraction)/fractionScale
}

// NewPtpTimeInterval builds a PtpTimeInterval from a float64 nanosecond
// count, scaling and normalising the sub-nanosecond remainder.
func NewPtpTimeInterval(ns float64) PtpTimeInterval {
	return ptpTimeIntervalFromValue(int64(ns * fractionScale))
}

func (t PtpTimeInterval) String() string {
	return fmt.Sprintf("PtpTimeInterval(%.5fns)", t.Nanoseconds())
}

// PtpTimestamp is a TAI point in time, represented as whole seconds (fits in
// 48 bits on the wire), whole nanoseconds within that second, and a
// sub-nanosecond fraction scaled by 2**16. Mutating arithmetic (Add/Sub)
// renormalises on every operation so that Fraction stays in [0, 2**16) and
// Nanoseconds stays in [0, 1e9).
type PtpTimestamp struct {
	Seconds     uint64 // constrained to 48 bits
	Nanoseconds uint32
	Fraction    uint16
}

const maxSeconds48 = (1 << 48) - 1

// NewPtpTimestamp validates and constructs a PtpTimestamp.
func NewPtpTimestamp(seconds uint64, nanoseconds uint32, fraction uint16) (PtpTimestamp, error) {
	if seconds > maxSeconds48 {
		return PtpTimestamp{}, fmt.Errorf("seconds %d overflows 48 bits", seconds)
	}
	if nanoseconds >= nanosPerSecond {
		return PtpTimestamp{}, fmt.Errorf("nanoseconds %d out of range [0, 1e9)", nanoseconds)
	}
	return PtpTimestamp{Seconds: seconds, Nanoseconds: nanoseconds, Fraction: fraction}, nil
}

// Add returns t advanced by the signed interval iv, renormalised.
func (t PtpTimestamp) Add(iv PtpTimeInterval) PtpTimestamp {
	fracSum := int64(t.Fraction) + int64(iv.Fraction)
	fracCarry := fracSum >> 16
	frac := uint16(fracSum & 0xFFFF)

	nanosTotal := int64(t.Nanoseconds) + iv.Nanos + fracCarry
	secs := int64(t.Seconds)

	addSecs := nanosTotal / nanosPerSecond
	rem := nanosTotal % nanosPerSecond
	if rem < 0 {
		rem += nanosPerSecond
		addSecs--
	}
	secs += addSecs
	if secs < 0 {
		// clamp: a TAI timestamp can't go negative; callers that step
		// this far back have a configuration bug, not a wire bug.
		secs = 0
	}
	return PtpTimestamp{Seconds: uint64(secs), Nanoseconds: uint32(rem), Fraction: frac}
}

// Sub returns the signed interval t-o.
func (t PtpTimestamp) Sub(o PtpTimestamp) PtpTimeInterval {
	secDiff := int64(t.Seconds) - int64(o.Seconds)
	nanoDiff := int64(t.Nanoseconds) - int64(o.Nanoseconds)
	fracDiff := int64(t.Fraction) - int64(o.Fraction)
	totalNanos := secDiff*nanosPerSecond + nanoDiff
	return ptpTimeIntervalFromValue(totalNanos*fractionScale + fracDiff)
}

func (t PtpTimestamp) String() string {
	return fmt.Sprintf("PtpTimestamp(%ds %dns +%d/65536ns)", t.Seconds, t.Nanoseconds, t.Fraction)
}

// ToSamples converts t to a sample count at the given clock rate (e.g. the
// 48000 Hz AES67 media clock), truncating the sub-nanosecond fraction.
func (t PtpTimestamp) ToSamples(rate uint32) uint64 {
	return t.Seconds*uint64(rate) + uint64(t.Nanoseconds)*uint64(rate)/nanosPerSecond
}

// ToWire drops the sub-nanosecond fraction and converts to the wire
// Timestamp format used by Announce/Sync/FollowUp/DelayResp bodies.
func (t PtpTimestamp) ToWire() Timestamp {
	ts := Timestamp{Nanoseconds: t.Nanoseconds}
	v := t.Seconds
	ts.Seconds[0] = byte(v >> 40)
	ts.Seconds[1] = byte(v >> 32)
	ts.Seconds[2] = byte(v >> 24)
	ts.Seconds[3] = byte(v >> 16)
	ts.Seconds[4] = byte(v >> 8)
	ts.Seconds[5] = byte(v)
	return ts
}

// PtpTimestampFromWire builds a PtpTimestamp (with zero fraction) from the
// wire Timestamp format.
func PtpTimestampFromWire(ts Timestamp) PtpTimestamp {
	return PtpTimestamp{Seconds: ts.Seconds.Seconds(), Nanoseconds: ts.Nanoseconds}
}
