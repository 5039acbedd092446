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

// Package node is the RAVENNA node façade: it owns every reactive
// component (RTSP server/client, DNS-SD browser/advertiser, advertised
// sessions) on a single dedicated goroutine, and gives outside callers —
// the CLI, audio device callbacks, DNS-SD backend callbacks — a
// synchronous dispatch-and-wait API to reach that state safely.
package node

import (
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/config"
	"github.com/ravenna-audio/ravennad/dnssd"
	"github.com/ravenna-audio/ravennad/ptp/clock"
	"github.com/ravenna-audio/ravennad/ptp/port"
	"github.com/ravenna-audio/ravennad/ptp/protocol"
	"github.com/ravenna-audio/ravennad/ravenna"
	"github.com/ravenna-audio/ravennad/rtp/session"
	"github.com/ravenna-audio/ravennad/rtsp"
	"github.com/ravenna-audio/ravennad/syncx"
	"github.com/ravenna-audio/ravennad/udpsock"
)

// ErrStopped is returned by Dispatch once the node has been, or is being,
// stopped — the Go analogue of the spec's OperationAborted: in-flight
// handlers observe it and return without further scheduling.
var ErrStopped = errors.New("node: stopped")

// tickInterval drives the send schedule of every running session. ptime/10
// is the general rule; sessions typically run ptime=1ms, so a fixed 100µs
// tick comfortably services them without a per-session timer.
const tickInterval = 100 * time.Microsecond

// receiverHealthInterval is the cadence of the stale-receiver sweep.
const receiverHealthInterval = 5 * time.Second

// receiverStaleAfter is how long a receiver may go without a delivered
// packet before the sweep logs it as stale.
const receiverStaleAfter = 5 * time.Second

type job struct {
	fn   func() error
	done chan error
}

// Node is a single RAVENNA node: one PTP-disciplined clock, one RTSP
// server exposing every locally advertised session, one RTSP client for
// reaching discovered peers, and DNS-SD browse/advertise of the node and
// its sessions. GrandmasterIdentity reports the identity of the PTP
// master the node is currently synced to; it defaults to the node's own
// clock identity until BMCA parent tracking overrides it.
type Node struct {
	Clock               *clock.Clock
	RTSPServer          *rtsp.Server
	RTSPClient          *rtsp.Client
	Browser             dnssd.Browser
	Advertiser          dnssd.Advertiser
	GrandmasterIdentity func() protocol.ClockIdentity

	sessions map[string]*ravenna.Session

	configLock   syncx.AtomicRWLock
	activeConfig *config.Config

	iface *net.Interface

	ptpPort        *port.Port
	ptpEventSock   *udpsock.Socket
	ptpGeneralSock *udpsock.Socket
	ptpPoller      *udpsock.Poller

	rtpRegistry     *session.Registry
	rtpPoller       *udpsock.Poller
	receivers       map[string]*ravenna.Receiver
	receiverSockets map[string]*udpsock.Socket

	jobs chan job
	post chan func()
	stop chan struct{}
	done chan struct{}

	cancel context.CancelFunc
}

// New builds a Node around the given clock and DNS-SD backends. The RTSP
// server and client are constructed internally since nothing outside this
// package needs to share them.
func New(clk *clock.Clock, browser dnssd.Browser, advertiser dnssd.Advertiser, identity protocol.ClockIdentity) *Node {
	n := &Node{
		Clock:      clk,
		RTSPServer: rtsp.NewServer(),
		RTSPClient: rtsp.NewClient(),
		Browser:    browser,
		Advertiser: advertiser,
		sessions:   make(map[string]*ravenna.Session),

		rtpRegistry:     session.NewRegistry(),
		receivers:       make(map[string]*ravenna.Receiver),
		receiverSockets: make(map[string]*udpsock.Socket),

		jobs: make(chan job),
		post: make(chan func(), 64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	n.GrandmasterIdentity = func() protocol.ClockIdentity { return identity }
	return n
}

// Run starts the reactor goroutine, the RTSP accept loop on ln, and the
// DNS-SD watch that binds discovered sessions. It returns once those are
// launched; the reactor keeps running until Stop.
func (n *Node) Run(ln net.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	go n.reactor(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		if err := n.RTSPServer.Serve(ln); err != nil && ctx.Err() == nil {
			log.Errorf("node: rtsp server stopped: %v", err)
		}
	}()
	n.watchDiscovery()
}

// reactor is the node's single-threaded async context: every touch of
// n.sessions and every session lifecycle transition happens here, in
// submission order, whether the request came from a dispatch-and-wait
// caller or a posted reactive callback.
func (n *Node) reactor(ctx context.Context) {
	defer close(n.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	healthTicker := time.NewTicker(receiverHealthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case j := <-n.jobs:
			j.done <- j.fn()
		case fn := <-n.post:
			fn()
		case <-ticker.C:
			n.tickSessions()
		case <-healthTicker.C:
			n.checkReceiverHealth()
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		}
	}
}

func (n *Node) tickSessions() {
	for name, s := range n.sessions {
		if err := s.Tick(); err != nil {
			log.Errorf("node: session %s: tick: %v", name, err)
		}
	}
}

// Dispatch posts fn onto the reactor and blocks until it runs and
// completes, or ctx is cancelled, or the node is stopped first. This is
// the node's public synchronous API: every exported Add/Remove/Start/Stop
// session operation is implemented in terms of it.
func (n *Node) Dispatch(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case n.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post marshals fn onto the reactor without waiting for it to run — the
// path a blocking backend callback (DNS-SD resolution arriving on the
// backend's own thread) uses to touch reactive state safely.
func (n *Node) Post(fn func()) {
	select {
	case n.post <- fn:
	case <-n.done:
	}
}

// Stop aborts outstanding timers, stops the RTSP accept loop's listener
// goroutine and every RTSP client connection, and waits for the reactor to
// exit.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
	<-n.done
	n.RTSPClient.Close()

	if n.ptpPoller != nil {
		n.ptpPoller.Stop()
		n.ptpEventSock.Close()
		n.ptpGeneralSock.Close()
	}
	if n.rtpPoller != nil {
		n.rtpPoller.Stop()
		for _, sock := range n.receiverSockets {
			sock.Close()
		}
	}
}

// nowSamples returns a callback reading the node clock's current time as a
// sample count at rate — the callback every session's send schedule is
// armed with.
func (n *Node) nowSamples(rate uint32) func() uint64 {
	return func() uint64 {
		return n.Clock.Now().ToSamples(rate)
	}
}

// ActiveConfig returns the configuration behind the most recently added
// session. Unlike Session/Sessions it doesn't go through Dispatch: a SIGHUP
// reload handler or a status endpoint running on its own goroutine reads it
// through a spinning reader-writer lock instead of waiting on the reactor's
// queue.
func (n *Node) ActiveConfig() *config.Config {
	for !n.configLock.LockShared() {
	}
	defer n.configLock.UnlockShared()
	return n.activeConfig
}

// setActiveConfig publishes cfg for ActiveConfig readers. Called from
// AddSession on the reactor.
func (n *Node) setActiveConfig(cfg *config.Config) {
	for !n.configLock.LockExclusive() {
	}
	defer n.configLock.UnlockExclusive()
	n.activeConfig = cfg
}
