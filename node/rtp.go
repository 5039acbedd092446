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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/dnssd"
	"github.com/ravenna-audio/ravennad/ravenna"
	"github.com/ravenna-audio/ravennad/sdp"
	"github.com/ravenna-audio/ravennad/udpsock"
)

// defaultJitterDelayFrames is the receive-side playout delay, in frames at
// the stream's own clock rate, absorbed before audio is read back out —
// 5ms at the common 48kHz AES67 rate.
const defaultJitterDelayFrames = 240

const rtpPollerBufferSize = 1500

// installReceiver runs on the reactor: it parses a peer's advertised SDP,
// installs the resulting RTP session into the shared registry, and joins
// its multicast group so packets start flowing into the de-jitter buffer.
// This is the second half of §4.4's "Binding" data flow, the first half
// (DESCRIBE) having already completed in bindDiscovered.
func (n *Node) installReceiver(desc dnssd.ServiceDescription, sdpBody []byte) {
	parsed, err := sdp.Parse(sdpBody)
	if err != nil {
		log.Warnf("node: parsing sdp from %s: %v", desc.Fullname, err)
		return
	}

	recv, err := ravenna.NewReceiverFromSDP(n.rtpRegistry, parsed, defaultJitterDelayFrames)
	if err != nil {
		log.Warnf("node: installing receiver for %s: %v", desc.Fullname, err)
		return
	}

	sock, err := n.joinReceiverSocket(recv)
	if err != nil {
		log.Warnf("node: opening rtp socket for %s: %v", desc.Fullname, err)
		n.rtpRegistry.Remove(recv.RTPSession.ConnectionAddr, recv.RTPSession.RTPPort)
		return
	}

	n.receivers[desc.Fullname] = recv
	n.receiverSockets[desc.Fullname] = sock
	log.Infof("node: receiving session %q from %s at %s", recv.SessionName, desc.Fullname, recv.RTPSession)
}

// removeReceiver runs on the reactor, undoing installReceiver.
func (n *Node) removeReceiver(desc dnssd.ServiceDescription) {
	recv, ok := n.receivers[desc.Fullname]
	if !ok {
		return
	}
	if sock, ok := n.receiverSockets[desc.Fullname]; ok {
		n.rtpPoller.Unregister(sock)
		sock.Close()
		delete(n.receiverSockets, desc.Fullname)
	}
	n.rtpRegistry.Remove(recv.RTPSession.ConnectionAddr, recv.RTPSession.RTPPort)
	delete(n.receivers, desc.Fullname)
}

// checkReceiverHealth runs on the reactor. It reads each installed
// receiver's last packet arrival time off its wait-free TripleBuffer
// handoff — no lock shared with the poller goroutine actually delivering
// packets — and warns about any that have gone quiet.
func (n *Node) checkReceiverHealth() {
	now := time.Now()
	for name, recv := range n.receivers {
		arrival, ok := recv.LastPacketArrival()
		if !ok {
			continue
		}
		if age := now.Sub(arrival); age > receiverStaleAfter {
			log.Warnf("node: receiver %q (session %q): no packet in %s", name, recv.SessionName, age.Round(time.Millisecond))
		}
	}
}

// joinReceiverSocket opens (and, on first use, lazily starts a poller for)
// the UDP socket a receiver's packets arrive on, joining its multicast
// group if it has one.
func (n *Node) joinReceiverSocket(recv *ravenna.Receiver) (*udpsock.Socket, error) {
	if n.rtpPoller == nil {
		poller, err := udpsock.NewPoller(rtpPollerBufferSize)
		if err != nil {
			return nil, fmt.Errorf("creating rtp poller: %w", err)
		}
		n.rtpPoller = poller
		go func() {
			if err := poller.Run(); err != nil {
				log.Errorf("node: rtp poller stopped: %v", err)
			}
		}()
	}

	sock, err := udpsock.Listen(&net.UDPAddr{Port: int(recv.RTPSession.RTPPort)})
	if err != nil {
		return nil, err
	}
	if recv.RTPSession.ConnectionAddr.IsMulticast() {
		if err := sock.JoinGroup(recv.RTPSession.ConnectionAddr, n.iface); err != nil {
			sock.Close()
			return nil, err
		}
	}

	if err := n.rtpPoller.Register(sock, func(pkt udpsock.Packet) {
		if _, err := recv.RTPReceiver.HandlePacket(pkt.Data, pkt.Src, pkt.Dst, pkt.Arrival); err != nil {
			log.Debugf("node: rtp: %v", err)
		}
	}); err != nil {
		sock.Close()
		return nil, err
	}

	return sock, nil
}
