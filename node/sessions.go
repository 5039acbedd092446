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
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/config"
	"github.com/ravenna-audio/ravennad/dnssd"
	"github.com/ravenna-audio/ravennad/ravenna"
	"github.com/ravenna-audio/ravennad/rtp/session"
)

// AddSession builds a session from cfg, registers it on the RTSP server at
// its own path, advertises it over DNS-SD, and returns it. All reactive
// state changes happen on the node's single goroutine, reached via
// Dispatch.
func (n *Node) AddSession(ctx context.Context, cfg *config.Config, rtpPort uint16, payloadType uint8) (*ravenna.Session, error) {
	var s *ravenna.Session
	err := n.Dispatch(ctx, func() error {
		if _, exists := n.sessions[cfg.SessionName]; exists {
			return fmt.Errorf("node: session %q already exists", cfg.SessionName)
		}

		sess, err := ravenna.New(cfg, rtpPort, payloadType, n.GrandmasterIdentity().String())
		if err != nil {
			return err
		}

		n.sessions[cfg.SessionName] = sess
		n.RTSPServer.Handle(sess.Path(), sess)
		n.setActiveConfig(cfg)

		if n.Advertiser != nil && cfg.Enabled {
			txt := dnssd.TxtRecord{"session": cfg.SessionName}
			if err := n.Advertiser.Advertise(cfg.SessionName, dnssd.SubtypeSession, int(rtpPort), txt); err != nil {
				log.Warnf("node: advertising session %q: %v", cfg.SessionName, err)
			}
		}

		s = sess
		return nil
	})
	return s, err
}

// RemoveSession tears down and unregisters a session by name.
func (n *Node) RemoveSession(ctx context.Context, name string) error {
	return n.Dispatch(ctx, func() error {
		sess, ok := n.sessions[name]
		if !ok {
			return fmt.Errorf("node: session %q not found", name)
		}
		sess.Stop()
		delete(n.sessions, name)
		return nil
	})
}

// StartSession arms a session's send schedule against the node clock and
// the given frame producer, starting at the clock's current sample
// position. It sends no RTSP request: PLAY is receiver-driven per §4.3,
// sent by the client that SETUP'd the stream.
func (n *Node) StartSession(ctx context.Context, name string, produce session.FrameProducer, send func([]byte) error) error {
	return n.Dispatch(ctx, func() error {
		sess, ok := n.sessions[name]
		if !ok {
			return fmt.Errorf("node: session %q not found", name)
		}
		rate := sess.RTPSession.ClockRate
		sess.Start(n.nowSamples(rate), produce, send, n.Clock.Now().ToSamples(rate))
		return nil
	})
}

// StopSession disarms a session's send schedule without removing it.
func (n *Node) StopSession(ctx context.Context, name string) error {
	return n.Dispatch(ctx, func() error {
		sess, ok := n.sessions[name]
		if !ok {
			return fmt.Errorf("node: session %q not found", name)
		}
		sess.Stop()
		return nil
	})
}

// Session returns the named session, or nil if it doesn't exist.
func (n *Node) Session(ctx context.Context, name string) (*ravenna.Session, error) {
	var s *ravenna.Session
	err := n.Dispatch(ctx, func() error {
		s = n.sessions[name]
		return nil
	})
	return s, err
}

// Sessions returns a snapshot of every session currently registered.
func (n *Node) Sessions(ctx context.Context) ([]*ravenna.Session, error) {
	var out []*ravenna.Session
	err := n.Dispatch(ctx, func() error {
		out = make([]*ravenna.Session, 0, len(n.sessions))
		for _, s := range n.sessions {
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

// describeTimeout bounds how long bindDiscovered waits for a DESCRIBE
// response from a newly discovered peer.
const describeTimeout = 5 * time.Second

// watchDiscovery subscribes to the node's DNS-SD browser and marshals
// every resolved/removed event onto the reactor via Post, implementing
// §4.4's binding behavior: a discovered RAVENNA session resolves to
// (host, port), and the node's RTSP client issues DESCRIBE there to learn
// how to install the matching RTP receiver. Subscribe handlers run on
// whichever goroutine the backend emits from (the zeroconf consume loop,
// or a test driving a mock directly) — exactly the "blocking backend
// callback that marshals onto the context" case §5 calls out.
func (n *Node) watchDiscovery() {
	if n.Browser == nil {
		return
	}
	if err := n.Browser.BrowseFor(dnssd.SubtypeSession); err != nil {
		log.Errorf("node: browsing for %s: %v", dnssd.SubtypeSession, err)
		return
	}

	n.Browser.Resolved().Subscribe(func(desc dnssd.ServiceDescription) {
		n.Post(func() { n.bindDiscovered(desc) })
	})
	n.Browser.Removed().Subscribe(func(desc dnssd.ServiceDescription) {
		n.Post(func() { n.unbindDiscovered(desc) })
	})
}

// bindDiscovered runs on the reactor. It issues DESCRIBE against the
// discovered peer and, on success, installs the RTP receiver the returned
// SDP describes.
func (n *Node) bindDiscovered(desc dnssd.ServiceDescription) {
	ctx, cancel := context.WithTimeout(context.Background(), describeTimeout)
	defer cancel()

	uri := fmt.Sprintf("rtsp://%s/%s", desc.Host, desc.Name)
	resp, err := n.RTSPClient.Describe(ctx, desc.Host, desc.Port, uri)
	if err != nil {
		log.Warnf("node: describing discovered session %s at %s:%d: %v", desc.Fullname, desc.Host, desc.Port, err)
		return
	}
	if resp.StatusCode != 200 {
		log.Warnf("node: DESCRIBE %s returned %d %s", uri, resp.StatusCode, resp.Reason)
		return
	}
	log.Infof("node: resolved session %s at %s:%d, SDP received (%d bytes)", desc.Fullname, desc.Host, desc.Port, len(resp.Body))
	n.installReceiver(desc, resp.Body)
}

func (n *Node) unbindDiscovered(desc dnssd.ServiceDescription) {
	log.Infof("node: session %s at %s:%d no longer advertised", desc.Fullname, desc.Host, desc.Port)
	n.removeReceiver(desc)
}
