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

package servo

import (
	"container/ring"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// kpScale/kiScale are the aggressive-tracking gains used while the servo
	// has not yet settled; they are the defaults for a freshly (re)started
	// node.
	kpScale = 0.7
	kiScale = 0.3

	// kpScaleLow/kiScaleLow are used once the servo is locked and tracking
	// small offsets only.
	kpScaleLow = 0.07
	kiScaleLow = 0.03

	maxKpNormMax = 1.0
	maxKiNormMax = 2.0

	freqEstMargin = 0.001

	defaultOffsetRange = 100
)

type filterState uint8

const (
	filterNoSpike filterState = iota
	filterSpike
	filterReset
)

// PiConfig holds the tunable gains for PiServo.
type PiConfig struct {
	KpScale    float64
	KpExponent float64
	KpNormMax  float64
	KiScale    float64
	KiExponent float64
	KiNormMax  float64
}

// DefaultPiConfig returns the spec's default PI gains: kp scale 0.7, ki
// scale 0.3, matching the aggressive-tracking profile used until the servo
// locks.
func DefaultPiConfig() *PiConfig {
	cfg := &PiConfig{
		KpNormMax: maxKpNormMax,
		KiNormMax: maxKiNormMax,
	}
	cfg.makeFast()
	return cfg
}

func (cfg *PiConfig) makeFast() {
	cfg.KpScale = kpScale
	cfg.KiScale = kiScale
}

func (cfg *PiConfig) makeSlow() {
	cfg.KpScale = kpScaleLow
	cfg.KiScale = kiScaleLow
}

// FilterConfig tunes the spike-rejection filter layered in front of the PI
// servo's offset samples.
type FilterConfig struct {
	MinOffsetLocked   int64
	MaxFreqChange     int64
	MaxSkipCount      int
	OffsetRange       int64
	OffsetStdevFactor float64
	FreqStdevFactor   float64
	RingSize          int
}

// DefaultFilterConfig returns the spike filter defaults.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		MinOffsetLocked:   15000,
		MaxFreqChange:     40,
		MaxSkipCount:      15,
		OffsetRange:       defaultOffsetRange,
		OffsetStdevFactor: 3.0,
		FreqStdevFactor:   3.0,
		RingSize:          30,
	}
}

type filterSample struct {
	offset int64
	freq   float64
}

// Filter rejects offset spikes before they reach the PI servo, tracking a
// running mean/stdev of recent offset and frequency samples.
type Filter struct {
	offsetStdev        int64
	offsetMean         int64
	lastOffset         int64
	freqStdev          float64
	freqMean           float64
	skippedCount       int
	offsetSamples      *ring.Ring
	offsetSamplesCount int
	freqSamples        *ring.Ring
	freqSamplesCount   int
	cfg                *FilterConfig
}

// NewFilter creates a Filter seeded with srv's current frequency estimate.
func NewFilter(srv *PiServo, cfg *FilterConfig) *Filter {
	f := &Filter{cfg: cfg}
	f.Reset()
	f.freqMean = srv.lastFreq
	srv.filter = f
	return f
}

// Reset clears accumulated samples, keeping the last known mean frequency.
func (f *Filter) Reset() {
	f.offsetSamples = ring.New(f.cfg.RingSize)
	f.freqSamples = ring.New(f.cfg.RingSize)
	f.offsetStdev = 0
	f.offsetMean = 0
	f.freqStdev = 0.0
	f.skippedCount = 0
	f.offsetSamplesCount = 0
	f.freqSamplesCount = 0
}

// MeanFreq returns the best calculated frequency from the filter.
func (f *Filter) MeanFreq() float64 {
	return f.freqMean
}

// IsStable reports whether the last and current offsets both fall within
// the configured offset range.
func (f *Filter) IsStable(offset int64) bool {
	return inRange(f.lastOffset, -f.cfg.OffsetRange, f.cfg.OffsetRange) && inRange(offset, -f.cfg.OffsetRange, f.cfg.OffsetRange)
}

func (f *Filter) isSpike(offset int64, lastCorrection time.Time) filterState {
	if f.skippedCount >= f.cfg.MaxSkipCount {
		return filterReset
	}
	if f.offsetSamplesCount != f.cfg.RingSize {
		return filterNoSpike
	}
	maxOffsetLocked := int64(f.cfg.OffsetStdevFactor * float64(f.offsetStdev))
	secPassed := math.Round(time.Since(lastCorrection).Seconds())
	waitFactor := secPassed * (f.cfg.FreqStdevFactor*f.freqStdev + float64(f.cfg.MaxFreqChange/2))
	maxOffsetLocked += int64(waitFactor)

	log.Debugf("servo filter: offset stdev %d, wait factor %0.3f, max offset locked %d", f.offsetStdev, waitFactor, maxOffsetLocked)
	if offset < 0 {
		offset *= -1
	}
	if offset > max(maxOffsetLocked, f.cfg.MinOffsetLocked) && f.skippedCount < f.cfg.MaxSkipCount {
		return filterSpike
	}
	return filterNoSpike
}

// Sample folds a new offset/frequency pair into the filter's running
// statistics.
func (f *Filter) Sample(s *filterSample) {
	if f.offsetSamples.Value != nil {
		v := f.offsetSamples.Value.(*filterSample)
		f.offsetMean -= v.offset / int64(f.offsetSamplesCount)
	}
	f.offsetSamples.Value = s
	f.offsetSamples = f.offsetSamples.Next()
	if f.offsetSamplesCount != f.cfg.RingSize {
		f.offsetSamplesCount++
		f.offsetMean = -1 * (s.offset / int64(f.offsetSamplesCount))
		f.offsetSamples.Do(func(val any) {
			if val == nil {
				return
			}
			v := val.(*filterSample)
			f.offsetMean += v.offset / int64(f.offsetSamplesCount)
		})
	}
	f.offsetMean += s.offset / int64(f.offsetSamplesCount)
	var offsetSigmaSq int64
	f.offsetSamples.Do(func(val any) {
		if val == nil {
			return
		}
		v := val.(*filterSample)
		offsetSigmaSq += (v.offset - f.offsetMean) * (v.offset - f.offsetMean)
	})
	f.offsetStdev = int64(math.Sqrt(float64(offsetSigmaSq) / float64(f.offsetSamplesCount)))
	f.lastOffset = s.offset

	if f.IsStable(s.offset) {
		var freqSigmaSq float64
		if f.freqSamples.Value != nil {
			v := f.freqSamples.Value.(*filterSample)
			f.freqMean -= v.freq / float64(f.freqSamplesCount)
			f.freqSamples.Value = s
			f.freqSamples = f.freqSamples.Next()
			f.freqMean += s.freq / float64(f.freqSamplesCount)
		} else {
			f.freqSamples.Value = s
			f.freqSamples = f.freqSamples.Next()
			f.freqSamplesCount++
			if f.freqSamples.Value != nil {
				f.freqMean = 0
				f.freqSamples.Do(func(val any) {
					if val == nil {
						return
					}
					v := val.(*filterSample)
					f.freqMean += v.freq / float64(f.freqSamplesCount)
				})
			}
		}
		f.freqSamples.Do(func(val any) {
			if val == nil {
				return
			}
			v := val.(*filterSample)
			freqSigmaSq += (v.freq - f.freqMean) * (v.freq - f.freqMean)
		})
		f.freqStdev = math.Sqrt(freqSigmaSq / float64(f.offsetSamplesCount))
	}
}

func inRange(value, minimum, maximum int64) bool {
	return value >= minimum && value <= maximum
}

// PiServo is a proportional-integral clock servo: the integral term tracks
// the clock's long-term frequency drift in parts-per-billion, while the
// proportional term contributes a direct step when the offset exceeds the
// configured step threshold.
type PiServo struct {
	Config
	offset             [2]int64
	local              [2]uint64
	drift              float64
	kp                 float64
	ki                 float64
	lastFreq           float64
	syncInterval       float64
	count              int
	lastCorrectionTime time.Time
	filter             *Filter
	cfg                *PiConfig
}

// NewPiServo creates a PI servo seeded with the given base config and
// initial frequency estimate (0 for a cold start).
func NewPiServo(base Config, cfg *PiConfig, freq float64) *PiServo {
	return &PiServo{
		Config:   base,
		cfg:      cfg,
		lastFreq: freq,
		drift:    freq,
	}
}

// SetLastFreq overrides the servo's last known frequency estimate.
func (s *PiServo) SetLastFreq(freq float64) { s.lastFreq = freq }

// MeanFreq returns the best calculated frequency, preferring the spike
// filter's running mean when one is attached.
func (s *PiServo) MeanFreq() float64 {
	if s.filter != nil {
		return s.filter.MeanFreq()
	}
	return s.lastFreq
}

// IsSpike reports whether offset should be rejected as a measurement spike,
// resetting the servo if too many spikes have accumulated in a row.
func (s *PiServo) IsSpike(offset int64) bool {
	if s.filter == nil || s.count < 2 {
		return false
	}
	fState := s.filter.isSpike(offset, s.lastCorrectionTime)
	switch fState {
	case filterSpike:
		s.lastFreq = s.filter.freqMean
		s.filter.skippedCount++
		return true
	case filterReset:
		s.lastFreq = s.filter.freqMean
		s.count = 0
		s.drift = 0
		s.filter.Reset()
		s.cfg.makeFast()
		s.resyncInterval()
		log.Warn("servo spike filter triggered a full reset")
		return true
	}
	return false
}

// Sample feeds a new offset measurement (nanoseconds) taken at localTs
// (monotonic nanoseconds since some epoch) into the servo and returns the
// resulting frequency correction in ppb plus the servo's state.
func (s *PiServo) Sample(offset int64, localTs uint64) (float64, State) {
	var kiTerm, freqEstInterval, localDiff float64
	state := StateInit
	ppb := s.lastFreq
	absOffset := offset
	if absOffset < 0 {
		absOffset = -absOffset
	}

	switch s.count {
	case 0:
		s.offset[0] = offset
		s.local[0] = localTs
		s.count = 1
	case 1:
		s.offset[1] = offset
		s.local[1] = localTs

		if s.local[0] >= s.local[1] {
			s.count = 0
			break
		}

		localDiff = float64(s.local[1]-s.local[0]) / math.Pow10(9)
		localDiff += localDiff * freqEstMargin
		freqEstInterval = 0.016 / s.ki
		if freqEstInterval > 1000.0 {
			freqEstInterval = 1000.0
		}
		if localDiff < freqEstInterval {
			log.Warn("servo sampled too often; not enough time passed since first sample")
			break
		}

		s.drift += (math.Pow10(9) - s.drift) * float64(s.offset[1]-s.offset[0]) / float64(s.local[1]-s.local[0])
		if s.drift < -s.MaxFreqPPB {
			s.drift = -s.MaxFreqPPB
		} else if s.drift > s.MaxFreqPPB {
			s.drift = s.MaxFreqPPB
		}

		if (s.FirstUpdate && s.FirstStepThreshold > 0 && s.FirstStepThreshold < absOffset) ||
			(s.StepThreshold > 0 && s.StepThreshold < absOffset) {
			state = StateJump
		} else {
			state = StateLocked
		}
		ppb = s.drift
		s.count = 2
	case 2:
		if s.StepThreshold != 0 && s.StepThreshold < absOffset {
			s.count = 0
			state = StateInit
			if s.filter != nil {
				s.filter.Reset()
			}
			break
		}
		state = StateLocked
		kiTerm = s.ki * float64(offset)
		ppb = s.kp*float64(offset) + s.drift + kiTerm
		if ppb < -s.MaxFreqPPB {
			ppb = -s.MaxFreqPPB
		} else if ppb > s.MaxFreqPPB {
			ppb = s.MaxFreqPPB
		} else {
			s.drift += kiTerm
		}
	}
	s.lastFreq = ppb
	if state == StateLocked && s.filter != nil {
		s.filter.Sample(&filterSample{offset: offset, freq: ppb})
		s.filter.skippedCount = 0
		s.lastCorrectionTime = time.Now()
	}

	return ppb, state
}

func (s *PiServo) resyncInterval() {
	if s.syncInterval == 0 {
		return
	}
	s.kp = s.cfg.KpScale * math.Pow(s.syncInterval, s.cfg.KpExponent)
	if s.kp > s.cfg.KpNormMax/s.syncInterval {
		s.kp = s.cfg.KpNormMax / s.syncInterval
	}
	s.ki = s.cfg.KiScale * math.Pow(s.syncInterval, s.cfg.KiExponent)
	if s.ki > s.cfg.KiNormMax/s.syncInterval {
		s.ki = s.cfg.KiNormMax / s.syncInterval
	}
}

// SyncInterval informs the servo of the master's sync interval in seconds,
// which rescales the PI gains.
func (s *PiServo) SyncInterval(interval float64) {
	s.syncInterval = interval
	s.resyncInterval()
}

// GetState returns the servo's current lock state.
func (s *PiServo) GetState() State {
	switch s.count {
	case 0:
		return StateInit
	case 1:
		return StateJump
	default:
		return StateLocked
	}
}

// Reset drops all accumulated servo state and switches back to the
// aggressive-tracking gain profile. Called after a sustained large offset
// forces a clock step, per the failure-semantics contract: "sustained
// |offset| > 1s: step and reset servo state".
func (s *PiServo) Reset() {
	s.count = 0
	s.drift = 0
	s.cfg.makeFast()
	s.resyncInterval()
	if s.filter != nil {
		s.filter.Reset()
	}
}
