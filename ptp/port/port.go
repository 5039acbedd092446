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

// Package port implements the PTP port state machine: BMCA-driven master
// selection, Sync/Follow-Up/Delay-Req/Delay-Resp handling, and clock servo
// feeding.
package port

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/eventbus"
	"github.com/ravenna-audio/ravennad/ptp/bmca"
	"github.com/ravenna-audio/ravennad/ptp/clock"
	"github.com/ravenna-audio/ravennad/ptp/foreignmaster"
	ptp "github.com/ravenna-audio/ravennad/ptp/protocol"
	"github.com/ravenna-audio/ravennad/ptp/servo"
	"github.com/ravenna-audio/ravennad/syncx"
)

// Config holds the per-port dataset fields and timing parameters.
type Config struct {
	Identity         ptp.ClockIdentity
	PortNumber       uint16
	Domain           uint8
	AnnounceInterval time.Duration
	SyncInterval     time.Duration
	// AnnounceReceiptTimeoutIntervals is the number of announce intervals
	// without an Announce from the parent before dropping to Listening;
	// spec's default is 4.
	AnnounceReceiptTimeoutIntervals int
	SlaveOnly                       bool
	Priority1                       uint8
	Priority2                       uint8
	ClockClass                      ptp.ClockClass
	ClockAccuracy                   ptp.ClockAccuracy
	OffsetScaledLogVariance         uint16
	// SustainedOffsetLimit is the offset magnitude (nanoseconds) that, when
	// exceeded continuously for SustainedOffsetWindow, forces a clock step
	// and servo reset. Spec default is 1 second.
	SustainedOffsetLimit  int64
	SustainedOffsetWindow time.Duration
}

// DefaultConfig returns the timing defaults named in the spec.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval:                time.Second,
		SyncInterval:                    time.Second,
		AnnounceReceiptTimeoutIntervals: 4,
		SustainedOffsetLimit:            int64(time.Second),
		SustainedOffsetWindow:           time.Second,
	}
}

// ParentChangedEvent is emitted whenever BMCA selects a new parent.
type ParentChangedEvent struct {
	Parent              ptp.PortIdentity
	GrandmasterIdentity ptp.ClockIdentity
	StepsRemoved        uint16
}

// PortDataset is the read-only snapshot of BMCA-selected state that RTP/RTSP
// code reads: the grandmaster identity a session's SDP advertises in its
// ts-refclk attribute comes from here, not from the port's own mutex.
type PortDataset struct {
	State               ptp.PortState
	Parent              ptp.PortIdentity
	GrandmasterIdentity ptp.ClockIdentity
	StepsRemoved        uint16
}

// twoWayMeasurement holds the four PTP timestamps used to derive offset and
// mean path delay: t1 (master's Sync origin), t2 (local Sync receipt), t3
// (local Delay_Req send), t4 (master's Delay_Resp receipt time).
type twoWayMeasurement struct {
	t1, t2, t3, t4 ptp.PtpTimestamp
	haveT1T2       bool
	haveT3T4       bool
}

// Port runs one PTP port's state machine.
type Port struct {
	cfg   Config
	clock *clock.Clock
	servo *servo.PiServo

	foreign *foreignmaster.List

	mu               sync.Mutex
	state            ptp.PortState
	parent           *ptp.Announce
	lastAnnounceSeen time.Time
	measurement      twoWayMeasurement
	offsetOutOfBound time.Time // zero until a sustained out-of-bound window starts

	ParentChanged eventbus.Signal[ParentChangedEvent]

	dataset *syncx.RCU[PortDataset]
}

// New creates a port in the Initializing state.
func New(cfg Config, clk *clock.Clock, srv *servo.PiServo) *Port {
	windowIntervals := cfg.AnnounceReceiptTimeoutIntervals
	if windowIntervals == 0 {
		windowIntervals = 4
	}
	return &Port{
		cfg:     cfg,
		clock:   clk,
		servo:   srv,
		foreign: foreignmaster.New(cfg.AnnounceInterval, windowIntervals),
		state:   ptp.PortStateInitializing,
		dataset: syncx.NewRCU(PortDataset{
			State:               ptp.PortStateInitializing,
			GrandmasterIdentity: cfg.Identity,
		}),
	}
}

// Dataset returns the port's most recently published BMCA snapshot. Unlike
// State/Parent it never touches the port's mutex — RTP/RTSP consumers that
// only need the grandmaster identity and step count read this RCU slot
// instead of contending with the hot Sync/Follow-Up/Delay-Resp path.
func (p *Port) Dataset() PortDataset {
	return p.dataset.Load()
}

// publishDataset refreshes the RCU snapshot from current port state. Called
// after every state transition, so State is always current. While the port
// has no parent (before the first selection, or after an announce timeout
// clears it), Parent and StepsRemoved are zero and GrandmasterIdentity is
// the port's own identity.
func (p *Port) publishDataset() {
	p.mu.Lock()
	ds := PortDataset{State: p.state, GrandmasterIdentity: p.cfg.Identity}
	if p.parent != nil {
		ds.Parent = p.parent.Header.SourcePortIdentity
		ds.GrandmasterIdentity = p.parent.GrandmasterIdentity
		ds.StepsRemoved = p.parent.StepsRemoved + 1
	}
	p.mu.Unlock()
	p.dataset.Store(ds)
}

// Start transitions the port out of Initializing into Listening, per the
// spec's state machine: Initializing -> Listening -> (Master | Slave |
// Passive).
func (p *Port) Start() {
	p.transition(ptp.PortStateListening)
}

// State returns the port's current state.
func (p *Port) State() ptp.PortState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Parent returns the currently selected parent's Announce, or nil if none.
func (p *Port) Parent() *ptp.Announce {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

func (p *Port) transition(next ptp.PortState) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	if prev != next {
		log.Infof("ptp port %d: %s -> %s", p.cfg.PortNumber, prev, next)
	}
	p.publishDataset()
}

// HandleAnnounce processes an inbound Announce per the BMCA qualification
// and dataset-compare rules.
func (p *Port) HandleAnnounce(a *ptp.Announce, now time.Time) {
	if !p.foreign.Update(a, p.cfg.Identity, now) {
		return
	}
	p.reselectMaster(now)
}

func (p *Port) reselectMaster(now time.Time) {
	qualified := p.foreign.Qualified(now)
	if len(qualified) == 0 {
		if !p.cfg.SlaveOnly {
			p.transition(ptp.PortStateMaster)
		}
		return
	}

	best := qualified[0]
	for _, a := range qualified[1:] {
		if bmca.Better(a, best) {
			best = a
		}
	}

	p.mu.Lock()
	changed := p.parent == nil || p.parent.Header.SourcePortIdentity != best.Header.SourcePortIdentity
	p.parent = best
	p.lastAnnounceSeen = now
	p.mu.Unlock()

	p.transition(ptp.PortStateSlave)

	if changed {
		p.servo.Reset()
		p.clock.SetCalibrated(false)
		p.ParentChanged.Emit(ParentChangedEvent{
			Parent:              best.Header.SourcePortIdentity,
			GrandmasterIdentity: best.GrandmasterIdentity,
			StepsRemoved:        best.StepsRemoved + 1,
		})
	}
}

// CheckAnnounceTimeout drops the port to Listening if no Announce has been
// received from the parent within AnnounceReceiptTimeoutIntervals announce
// intervals.
func (p *Port) CheckAnnounceTimeout(now time.Time) {
	p.mu.Lock()
	hasParent := p.parent != nil
	last := p.lastAnnounceSeen
	p.mu.Unlock()
	if !hasParent {
		return
	}
	intervals := p.cfg.AnnounceReceiptTimeoutIntervals
	if intervals == 0 {
		intervals = 4
	}
	timeout := p.cfg.AnnounceInterval * time.Duration(intervals)
	if now.Sub(last) > timeout {
		log.Warnf("ptp port %d: announce timeout, dropping to listening", p.cfg.PortNumber)
		p.mu.Lock()
		p.parent = nil
		p.mu.Unlock()
		p.foreign.Prune(now)
		p.transition(ptp.PortStateListening)
	}
}

// HandleSync records a one-step Sync's origin timestamp as t1 and the local
// receive time as t2, or (for two-step Sync) waits for the matching
// Follow-Up to supply t1.
func (p *Port) HandleSync(s *ptp.SyncDelayReq, twoStep bool, localReceive ptp.PtpTimestamp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measurement.t2 = localReceive
	if !twoStep {
		p.measurement.t1 = ptp.PtpTimestampFromWire(s.OriginTimestamp)
		p.measurement.haveT1T2 = true
	} else {
		p.measurement.haveT1T2 = false
	}
}

// HandleFollowUp supplies t1 for a two-step Sync.
func (p *Port) HandleFollowUp(f *ptp.FollowUp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measurement.t1 = ptp.PtpTimestampFromWire(f.PreciseOriginTimestamp)
	p.measurement.haveT1T2 = true
	p.tryServoUpdate()
}

// HandleDelayReqSent records the local Delay_Req transmit time as t3.
func (p *Port) HandleDelayReqSent(localSend ptp.PtpTimestamp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measurement.t3 = localSend
	p.measurement.haveT3T4 = false
}

// HandleDelayResp supplies t4 from the master's Delay_Resp.
func (p *Port) HandleDelayResp(r *ptp.DelayResp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measurement.t4 = ptp.PtpTimestampFromWire(r.ReceiveTimestamp)
	p.measurement.haveT3T4 = true
	p.tryServoUpdate()
}

// tryServoUpdate computes offsetFromMaster and meanPathDelay once both
// halves of the two-way exchange are available, then feeds the servo.
// Caller must hold p.mu.
func (p *Port) tryServoUpdate() {
	m := p.measurement
	if !m.haveT1T2 || !m.haveT3T4 {
		return
	}

	masterToSlave := m.t2.Sub(m.t1)       // t2 - t1
	slaveToMaster := m.t4.Sub(m.t3)       // t4 - t3
	sum := masterToSlave.Add(slaveToMaster)
	meanPathDelay := sum.Nanoseconds() / 2

	offset := masterToSlave.Nanoseconds() - meanPathDelay

	p.clock.ReportOffset(ptp.NewPtpTimeInterval(offset))

	if p.sustainedOffsetExceeded(offset, m.t2) {
		log.Warnf("ptp port %d: sustained offset %fns exceeds limit, stepping clock", p.cfg.PortNumber, offset)
		p.clock.Step(ptp.NewPtpTimeInterval(-offset))
		p.servo.Reset()
		p.clock.SetCalibrated(false)
		p.offsetOutOfBound = time.Time{}
		return
	}

	localNow := uint64(m.t2.Seconds)*1e9 + uint64(m.t2.Nanoseconds)
	ppb, state := p.servo.Sample(int64(offset), localNow)
	if state == servo.StateJump {
		p.clock.Step(ptp.NewPtpTimeInterval(-offset))
	}
	p.clock.SetFrequency(ppb)
	p.clock.SetCalibrated(state == servo.StateLocked)
}

// sustainedOffsetExceeded implements the failure-semantics rule: "sustained
// |offset| > 1s: step and reset servo state". Caller must hold p.mu.
func (p *Port) sustainedOffsetExceeded(offsetNs float64, now ptp.PtpTimestamp) bool {
	abs := offsetNs
	if abs < 0 {
		abs = -abs
	}
	nowT := time.Unix(int64(now.Seconds), int64(now.Nanoseconds))
	if int64(abs) <= p.cfg.SustainedOffsetLimit {
		p.offsetOutOfBound = time.Time{}
		return false
	}
	if p.offsetOutOfBound.IsZero() {
		p.offsetOutOfBound = nowT
		return false
	}
	return nowT.Sub(p.offsetOutOfBound) >= p.cfg.SustainedOffsetWindow
}
