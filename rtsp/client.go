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
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// endpointKey identifies a (host, port) RTSP endpoint.
type endpointKey struct {
	host string
	port int
}

type clientConn struct {
	conn *Connection
	mu   sync.Mutex
	cseq int
	wait map[int]chan *Response
}

// Client multiplexes RTSP requests over lazily-established, per-(host,port)
// TCP connections. CSeq is generated monotonically per connection and used
// to pair responses with their request.
type Client struct {
	DialTimeout time.Duration
	metrics     *metrics

	mu    sync.Mutex
	conns map[endpointKey]*clientConn
}

// NewClient returns a Client with no open connections.
func NewClient() *Client {
	return &Client{
		DialTimeout: 5 * time.Second,
		conns:       make(map[endpointKey]*clientConn),
		metrics:     newMetrics(),
	}
}

func (c *Client) connFor(host string, port int) (*clientConn, error) {
	key := endpointKey{host: host, port: port}

	c.mu.Lock()
	if cc, ok := c.conns[key]; ok {
		c.mu.Unlock()
		return cc, nil
	}
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, c.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rtsp: dial %s: %w", addr, err)
	}

	cc := &clientConn{
		conn: NewConnection(conn),
		wait: make(map[int]chan *Response),
	}
	cc.conn.OnResponse = func(_ *Connection, resp *Response) {
		cseq, ok := resp.CSeq()
		if !ok {
			log.Warnf("rtsp: response from %s missing CSeq, dropping", addr)
			return
		}
		cc.mu.Lock()
		ch, ok := cc.wait[cseq]
		if ok {
			delete(cc.wait, cseq)
		}
		cc.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	cc.conn.OnClose = func(*Connection) {
		c.mu.Lock()
		delete(c.conns, key)
		c.mu.Unlock()
		c.metrics.connectionsClosed.Inc()
	}

	c.mu.Lock()
	c.conns[key] = cc
	c.mu.Unlock()
	c.metrics.connectionsOpened.Inc()

	go cc.conn.Run()
	return cc, nil
}

// SendRequest sends req to (host, port), assigning it the connection's next
// CSeq, and blocks until the paired response arrives or ctx is done.
func (c *Client) SendRequest(ctx context.Context, host string, port int, req *Request) (*Response, error) {
	cc, err := c.connFor(host, port)
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	cc.cseq++
	cseq := cc.cseq
	ch := make(chan *Response, 1)
	cc.wait[cseq] = ch
	cc.mu.Unlock()

	req.Headers.Set("CSeq", strconv.Itoa(cseq))
	if err := cc.conn.SendRequest(req); err != nil {
		cc.mu.Lock()
		delete(cc.wait, cseq)
		cc.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		cc.mu.Lock()
		delete(cc.wait, cseq)
		cc.mu.Unlock()
		return nil, ctx.Err()
	case <-cc.conn.Done():
		return nil, fmt.Errorf("rtsp: connection to %s:%d closed while awaiting response", host, port)
	}
}

func (c *Client) request(ctx context.Context, host string, port int, method Method, uri string, headers Headers, body []byte) (*Response, error) {
	return c.SendRequest(ctx, host, port, &Request{Method: method, URI: uri, Version: "1.0", Headers: headers, Body: body})
}

// Describe issues a DESCRIBE for uri.
func (c *Client) Describe(ctx context.Context, host string, port int, uri string) (*Response, error) {
	return c.request(ctx, host, port, MethodDescribe, uri, nil, nil)
}

// Setup issues a SETUP for uri.
func (c *Client) Setup(ctx context.Context, host string, port int, uri string, headers Headers) (*Response, error) {
	return c.request(ctx, host, port, MethodSetup, uri, headers, nil)
}

// Play issues a PLAY for uri.
func (c *Client) Play(ctx context.Context, host string, port int, uri string) (*Response, error) {
	return c.request(ctx, host, port, MethodPlay, uri, nil, nil)
}

// Teardown issues a TEARDOWN for uri.
func (c *Client) Teardown(ctx context.Context, host string, port int, uri string) (*Response, error) {
	return c.request(ctx, host, port, MethodTeardown, uri, nil, nil)
}

// Announce issues an ANNOUNCE of sdp for uri.
func (c *Client) Announce(ctx context.Context, host string, port int, uri string, sdp []byte) (*Response, error) {
	headers := Headers{{Name: "Content-Type", Value: "application/sdp"}}
	return c.request(ctx, host, port, MethodAnnounce, uri, headers, sdp)
}

// RegisterMetrics registers the client's connection counters with reg.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	return c.metrics.Register(reg)
}

// Close closes every open connection.
func (c *Client) Close() {
	c.mu.Lock()
	conns := make([]*clientConn, 0, len(c.conns))
	for _, cc := range c.conns {
		conns = append(conns, cc)
	}
	c.mu.Unlock()
	for _, cc := range conns {
		cc.conn.Close()
	}
}
