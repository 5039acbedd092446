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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultIdleTimeout is how long a Connection waits for activity before
// closing itself.
const DefaultIdleTimeout = 5 * time.Second

// Connection owns a TCP stream, an input parser and a coalesced output
// buffer. Appending to the output buffer kicks a write only when a previous
// write from this connection is not already in flight.
type Connection struct {
	conn        net.Conn
	parser      *Parser
	idleTimeout time.Duration

	OnRequest  func(*Connection, *Request)
	OnResponse func(*Connection, *Response)
	OnClose    func(*Connection)

	writeMu sync.Mutex
	outbuf  []byte
	writing bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps conn, ready to have its read loop started.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:        conn,
		parser:      NewParser(),
		idleTimeout: DefaultIdleTimeout,
		closed:      make(chan struct{}),
	}
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Run drives the read loop until the connection closes or errs. It blocks;
// callers run it in its own goroutine.
func (c *Connection) Run() {
	defer c.Close()
	buf := make([]byte, 4096)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			log.Debugf("rtsp: failed to set read deadline: %v", err)
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			log.Debugf("rtsp: connection %s closing: %v", c.conn.RemoteAddr(), err)
			return
		}
		requests, responses, perr := c.parser.Feed(buf[:n])
		for _, req := range requests {
			if c.OnRequest != nil {
				c.OnRequest(c, req)
			}
		}
		for _, resp := range responses {
			if c.OnResponse != nil {
				c.OnResponse(c, resp)
			}
		}
		if perr != nil {
			log.Warnf("rtsp: malformed message from %s: %v", c.conn.RemoteAddr(), perr)
			return
		}
	}
}

// SendRequest marshals and writes req.
func (c *Connection) SendRequest(req *Request) error {
	return c.send(req.marshal())
}

// SendResponse marshals and writes resp.
func (c *Connection) SendResponse(resp *Response) error {
	return c.send(resp.marshal())
}

func (c *Connection) send(b []byte) error {
	c.writeMu.Lock()
	c.outbuf = append(c.outbuf, b...)
	if c.writing {
		c.writeMu.Unlock()
		return nil
	}
	c.writing = true
	c.writeMu.Unlock()
	go c.drainWrites()
	return nil
}

func (c *Connection) drainWrites() {
	for {
		c.writeMu.Lock()
		if len(c.outbuf) == 0 {
			c.writing = false
			c.writeMu.Unlock()
			return
		}
		pending := c.outbuf
		c.outbuf = nil
		c.writeMu.Unlock()

		if _, err := c.conn.Write(pending); err != nil {
			log.Warnf("rtsp: write to %s failed: %v", c.conn.RemoteAddr(), err)
			c.Close()
			return
		}
	}
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		close(c.closed)
		if c.OnClose != nil {
			c.OnClose(c)
		}
	})
	return err
}

// Done returns a channel closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }
