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

package rtsp

import (
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// AllPath is the special path that receives a copy of every request, used
// for broadcast-style ANNOUNCE fan-out.
const AllPath = "/all"

// Handler serves one RTSP request on a path and returns the response to
// send back, or nil to send no response (e.g. when NOTIFY-style requests
// observed via AllPath need no reply of their own).
type Handler interface {
	ServeRTSP(conn *Connection, req *Request) *Response
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(conn *Connection, req *Request) *Response

// ServeRTSP calls f.
func (f HandlerFunc) ServeRTSP(conn *Connection, req *Request) *Response { return f(conn, req) }

// Server listens for RTSP connections and dispatches requests to
// path-registered handlers.
type Server struct {
	metrics *metrics

	mu          sync.Mutex
	handlers    map[string]Handler
	subscribers map[string]map[*Connection]struct{}
	cseq        int
}

// NewServer returns a Server with no registered paths.
func NewServer() *Server {
	return &Server{
		metrics:     newMetrics(),
		handlers:    make(map[string]Handler),
		subscribers: make(map[string]map[*Connection]struct{}),
	}
}

// RegisterMetrics registers the server's connection/request counters with reg.
func (s *Server) RegisterMetrics(reg prometheus.Registerer) error {
	return s.metrics.Register(reg)
}

// Handle registers h to serve requests whose URI path equals path.
// Registering AllPath additionally subscribes h as an observer of every
// request regardless of its own path.
func (s *Server) Handle(path string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
}

// Attach subscribes conn to receive server-initiated requests sent via
// SendRequest(path, ...). SETUP handlers typically call this for the
// session path they just accepted.
func (s *Server) Attach(path string, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.subscribers[path]
	if !ok {
		set = make(map[*Connection]struct{})
		s.subscribers[path] = set
	}
	set[conn] = struct{}{}
}

// Detach removes a prior Attach subscription.
func (s *Server) Detach(path string, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subscribers[path]; ok {
		delete(set, conn)
	}
}

// SendRequest fans req out to every connection attached to path, giving
// each copy the next value of one server-wide CSeq counter.
func (s *Server) SendRequest(path string, req *Request) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.subscribers[path]))
	for c := range s.subscribers[path] {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		s.mu.Lock()
		s.cseq++
		cseq := s.cseq
		s.mu.Unlock()
		clone := *req
		clone.Headers = append(Headers(nil), req.Headers...)
		clone.Headers.Set("CSeq", strconv.Itoa(cseq))
		if err := conn.SendRequest(&clone); err != nil {
			log.Warnf("rtsp: failed to send request to %s: %v", conn.RemoteAddr(), err)
		}
	}
}

// Serve accepts connections on ln until it returns an error (typically from
// ln.Close during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		s.metrics.connectionsOpened.Inc()
		conn := NewConnection(nc)
		conn.OnRequest = s.dispatch
		conn.OnClose = func(c *Connection) {
			s.metrics.connectionsClosed.Inc()
			s.untrackAll(c)
		}
		go conn.Run()
	}
}

func (s *Server) untrackAll(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.subscribers {
		delete(set, conn)
	}
}

func (s *Server) dispatch(conn *Connection, req *Request) {
	s.metrics.requestsHandled.Inc()

	path := requestPath(req.URI)

	s.mu.Lock()
	handler, ok := s.handlers[path]
	allHandler, haveAll := s.handlers[AllPath]
	s.mu.Unlock()

	if haveAll && path != AllPath {
		allHandler.ServeRTSP(conn, req)
	}

	var resp *Response
	if ok {
		resp = handler.ServeRTSP(conn, req)
	} else {
		resp = &Response{Version: "1.0", StatusCode: 404, Reason: "Not Found"}
	}
	if resp == nil {
		return
	}
	if cseq, ok := req.CSeq(); ok {
		resp.Headers.Set("CSeq", strconv.Itoa(cseq))
	}
	if err := conn.SendResponse(resp); err != nil {
		log.Warnf("rtsp: failed to send response to %s: %v", conn.RemoteAddr(), err)
	}
}

// requestPath extracts the path component of an RTSP URI, falling back to
// the raw URI if it does not parse (e.g. "*" for OPTIONS).
func requestPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return uri
	}
	return u.Path
}
