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

// Package clock implements the disciplined virtual clock a PTP port steers:
// now() is the local monotonic clock plus an accumulated step and a
// continuously-integrated frequency drift, per the servo's latest estimate.
package clock

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ravenna-audio/ravennad/ptp/protocol"
)

// Source supplies wall-clock readings the virtual clock is built on top of.
// Tests substitute a fake source to drive the clock deterministically.
type Source func() time.Time

// Clock is a local clock disciplined by a PTP servo: Now() returns
// local_clock() + shift + drift(elapsed_since_last_sync).
type Clock struct {
	mu sync.RWMutex

	source Source

	shift   time.Duration // accumulated step applied by Step
	freqPPB float64       // current frequency correction, parts per billion
	epoch   time.Time     // source() reading at which freqPPB started applying

	lastOffset protocol.PtpTimeInterval
	calibrated bool

	offsetGauge prometheus.Gauge
	freqGauge   prometheus.Gauge
}

// New creates a Clock reading from source (time.Now if nil), registering its
// offset/frequency gauges on reg (nil skips registration, useful in tests).
func New(source Source, reg prometheus.Registerer) *Clock {
	if source == nil {
		source = time.Now
	}
	c := &Clock{
		source: source,
		epoch:  source(),
		offsetGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ravennad_ptp_offset_from_master_ns",
			Help: "last measured offset from the PTP master, in nanoseconds",
		}),
		freqGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ravennad_ptp_frequency_ppb",
			Help: "current clock frequency correction, parts per billion",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.offsetGauge, c.freqGauge)
	}
	return c
}

// Now returns the disciplined time as a PtpTimestamp.
func (c *Clock) Now() protocol.PtpTimestamp {
	t := c.now()
	return protocol.PtpTimestamp{
		Seconds:     uint64(t.Unix()),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

func (c *Clock) now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw := c.source()
	elapsed := raw.Sub(c.epoch)
	drift := time.Duration(c.freqPPB * float64(elapsed) / 1e9)
	return raw.Add(c.shift).Add(drift)
}

// Step applies an immediate correction, resetting the drift integration
// epoch so accumulated drift doesn't double-count across the step.
func (c *Clock) Step(offset protocol.PtpTimeInterval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shift += time.Duration(offset.Nanoseconds())
	c.epoch = c.source()
}

// SetFrequency updates the servo-derived frequency correction (ppb),
// folding in drift accrued under the previous frequency before resetting
// the integration epoch.
func (c *Clock) SetFrequency(freqPPB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := c.source()
	elapsed := raw.Sub(c.epoch)
	drift := time.Duration(c.freqPPB * float64(elapsed) / 1e9)
	c.shift += drift
	c.freqPPB = freqPPB
	c.epoch = raw
	c.freqGauge.Set(freqPPB)
}

// ReportOffset records the latest offset-from-master measurement for
// observability and for the OffsetFromMaster surface; it does not affect
// Now().
func (c *Clock) ReportOffset(offset protocol.PtpTimeInterval) {
	c.mu.Lock()
	c.lastOffset = offset
	c.mu.Unlock()
	c.offsetGauge.Set(offset.Nanoseconds())
}

// OffsetFromMaster returns the most recently measured offset between this
// clock and its PTP master.
func (c *Clock) OffsetFromMaster() protocol.PtpTimeInterval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastOffset
}

// SetCalibrated records whether the servo currently considers this clock
// locked to its master, per the servo's own state machine (servo.StateLocked
// vs. StateInit/StateJump/StateFilter).
func (c *Clock) SetCalibrated(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calibrated = v
}

// IsCalibrated reports whether the clock is currently locked to its master.
// False until the servo's first StateLocked sample, and again after any
// Reset — unlike the source this tracks real servo state rather than
// returning false unconditionally.
func (c *Clock) IsCalibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calibrated
}

// Reset clears the accumulated step and frequency correction. The clock is
// uncalibrated until the next servo lock. The port's master-reselection and
// sustained-offset paths do not call it; they use SetCalibrated, Step and
// PiServo.Reset instead.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shift = 0
	c.freqPPB = 0
	c.epoch = c.source()
	c.calibrated = false
}
