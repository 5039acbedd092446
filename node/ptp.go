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

package node

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/ptp/port"
	"github.com/ravenna-audio/ravennad/ptp/protocol"
	"github.com/ravenna-audio/ravennad/ptp/servo"
	"github.com/ravenna-audio/ravennad/udpsock"
)

// ptpMulticastGroup is the IEEE 1588 default multicast address PTP event
// and general messages are sent to.
var ptpMulticastGroup = netip.MustParseAddr("224.0.1.129")

const ptpBufferSize = 1500

// StartPTP opens the PTP event (319) and general (320) multicast sockets
// on iface, starts a port in the given clock domain, and begins sending
// Delay_Req once that port acquires a parent. Received Sync/Follow_Up/
// Delay_Resp/Announce messages discipline n.Clock via the port's servo.
// Call at most once per Node.
func (n *Node) StartPTP(iface string, domain uint8) error {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("node: ptp interface %s: %w", iface, err)
	}

	eventSock, err := udpsock.Listen(&net.UDPAddr{Port: protocol.PortEvent})
	if err != nil {
		return fmt.Errorf("node: ptp event socket: %w", err)
	}
	if err := eventSock.JoinGroup(ptpMulticastGroup, ifi); err != nil {
		eventSock.Close()
		return fmt.Errorf("node: joining ptp event multicast group: %w", err)
	}

	generalSock, err := udpsock.Listen(&net.UDPAddr{Port: protocol.PortGeneral})
	if err != nil {
		eventSock.Close()
		return fmt.Errorf("node: ptp general socket: %w", err)
	}
	if err := generalSock.JoinGroup(ptpMulticastGroup, ifi); err != nil {
		eventSock.Close()
		generalSock.Close()
		return fmt.Errorf("node: joining ptp general multicast group: %w", err)
	}

	poller, err := udpsock.NewPoller(ptpBufferSize)
	if err != nil {
		eventSock.Close()
		generalSock.Close()
		return fmt.Errorf("node: ptp poller: %w", err)
	}

	cfg := port.DefaultConfig()
	cfg.Identity = n.GrandmasterIdentity()
	cfg.PortNumber = 1
	cfg.Domain = domain

	srv := servo.NewPiServo(servo.DefaultConfig(), servo.DefaultPiConfig(), 0)
	srv.SyncInterval(cfg.SyncInterval.Seconds())
	p := port.New(cfg, n.Clock, srv)

	n.iface = ifi
	n.ptpPort = p
	n.ptpEventSock = eventSock
	n.ptpGeneralSock = generalSock
	n.ptpPoller = poller

	if err := poller.Register(eventSock, n.handlePTPPacket); err != nil {
		return fmt.Errorf("node: registering ptp event socket: %w", err)
	}
	if err := poller.Register(generalSock, n.handlePTPPacket); err != nil {
		return fmt.Errorf("node: registering ptp general socket: %w", err)
	}

	// GrandmasterIdentity now reads the port's lock-free RCU dataset snapshot
	// directly: every session's SDP (rendered from whatever goroutine issues
	// DESCRIBE or ANNOUNCE) sees the current grandmaster without contending
	// with the port's own mutex or crossing onto the reactor.
	n.GrandmasterIdentity = func() protocol.ClockIdentity { return p.Dataset().GrandmasterIdentity }

	go func() {
		if err := poller.Run(); err != nil {
			log.Errorf("node: ptp poller stopped: %v", err)
		}
	}()

	p.Start()
	go n.ptpDelayReqLoop(cfg)

	return nil
}

// handlePTPPacket decodes one datagram off either PTP socket and feeds it
// to the port. The port guards its own state with a mutex, so this runs
// safely on the poller's goroutine without touching the reactor.
func (n *Node) handlePTPPacket(pkt udpsock.Packet) {
	msg, err := protocol.DecodePacket(pkt.Data)
	if err != nil {
		log.Debugf("node: ptp: decoding packet from %s: %v", pkt.Src, err)
		return
	}

	switch m := msg.(type) {
	case *protocol.Announce:
		n.ptpPort.HandleAnnounce(m, pkt.Arrival)
	case *protocol.SyncDelayReq:
		if m.MessageType() == protocol.MessageSync {
			twoStep := m.Header.FlagField&protocol.FlagTwoStep != 0
			n.ptpPort.HandleSync(m, twoStep, n.Clock.Now())
		}
		// Delay_Req addressed to us would be handled here in master mode;
		// this node only runs the slave side of the exchange.
	case *protocol.FollowUp:
		n.ptpPort.HandleFollowUp(m)
	case *protocol.DelayResp:
		n.ptpPort.HandleDelayResp(m)
	}
}

// ptpDelayReqLoop periodically sends Delay_Req to the multicast group once
// the port has selected a parent, recording the local send time so
// HandleDelayResp can complete the two-way exchange.
func (n *Node) ptpDelayReqLoop(cfg port.Config) {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dst := netip.AddrPortFrom(ptpMulticastGroup, uint16(protocol.PortEvent))
	var seq uint16

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
		}

		if n.ptpPort.Parent() == nil {
			continue
		}

		seq++
		req := &protocol.SyncDelayReq{
			Header: protocol.Header{
				SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageDelayReq, 0),
				Version:         protocol.Version,
				DomainNumber:    cfg.Domain,
				SequenceID:      seq,
				SourcePortIdentity: protocol.PortIdentity{
					ClockIdentity: cfg.Identity,
					PortNumber:    cfg.PortNumber,
				},
				LogMessageInterval: 0x7f,
			},
		}

		b, err := protocol.Bytes(req)
		if err != nil {
			log.Errorf("node: ptp: encoding delay_req: %v", err)
			continue
		}
		if _, err := n.ptpEventSock.WriteTo(b, dst); err != nil {
			log.Warnf("node: ptp: sending delay_req: %v", err)
			continue
		}
		n.ptpPort.HandleDelayReqSent(n.Clock.Now())
	}
}
