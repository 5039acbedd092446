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

package ravenna

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ravenna-audio/ravennad/rtsp"
	"github.com/ravenna-audio/ravennad/sdp"
)

// ServeRTSP implements rtsp.Handler: a Session answers DESCRIBE with its
// current SDP, acknowledges SETUP and PLAY, and tears itself down on
// TEARDOWN. Start/Stop of the underlying send schedule is driven by the
// node, not by this handler directly, since arming the schedule needs the
// node's mixer and clock wiring.
func (s *Session) ServeRTSP(conn *rtsp.Connection, req *rtsp.Request) *rtsp.Response {
	switch req.Method {
	case rtsp.MethodDescribe:
		body, err := sdp.Generate(s.SDP())
		if err != nil {
			log.Errorf("ravenna: generating SDP for session %s: %v", s.SessionName, err)
			return &rtsp.Response{Version: "1.0", StatusCode: 500, Reason: "Internal Server Error"}
		}
		return &rtsp.Response{
			Version:    "1.0",
			StatusCode: 200,
			Reason:     "OK",
			Headers:    rtsp.Headers{{Name: "Content-Type", Value: "application/sdp"}},
			Body:       body,
		}
	case rtsp.MethodSetup, rtsp.MethodPlay:
		return &rtsp.Response{Version: "1.0", StatusCode: 200, Reason: "OK"}
	case rtsp.MethodTeardown:
		s.Stop()
		return &rtsp.Response{Version: "1.0", StatusCode: 200, Reason: "OK"}
	default:
		return &rtsp.Response{Version: "1.0", StatusCode: 501, Reason: "Not Implemented"}
	}
}

// Announce pushes this session's SDP to a receiver at host:port via
// ANNOUNCE, the way a sender-side node advertises a newly started session
// to a statically configured or DNS-SD discovered peer.
func (s *Session) Announce(ctx context.Context, client *rtsp.Client, host string, port int) (*rtsp.Response, error) {
	body, err := sdp.Generate(s.SDP())
	if err != nil {
		return nil, fmt.Errorf("ravenna: generating SDP for announce: %w", err)
	}
	uri := fmt.Sprintf("rtsp://%s%s", host, s.Path())
	return client.Announce(ctx, host, port, uri, body)
}
