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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer()
	go s.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return s, addr.IP.String(), addr.Port
}

func TestClientServerDescribeRoundTrip(t *testing.T) {
	s, host, port := startTestServer(t)

	s.Handle("/session1", HandlerFunc(func(_ *Connection, req *Request) *Response {
		require.Equal(t, MethodDescribe, req.Method)
		return &Response{Version: "1.0", StatusCode: 200, Reason: "OK",
			Headers: Headers{{Name: "Content-Type", Value: "application/sdp"}},
			Body:    []byte("v=0\r\n")}
	}))

	c := NewClient()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Describe(ctx, host, port, "rtsp://"+host+"/session1")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, []byte("v=0\r\n"), resp.Body)
}

func TestClientServerPreservesCSeq(t *testing.T) {
	s, host, port := startTestServer(t)
	s.Handle("/s", HandlerFunc(func(_ *Connection, req *Request) *Response {
		return &Response{Version: "1.0", StatusCode: 200, Reason: "OK"}
	}))

	c := NewClient()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		resp, err := c.Describe(ctx, host, port, "rtsp://"+host+"/s")
		require.NoError(t, err)
		cseq, ok := resp.CSeq()
		require.True(t, ok)
		require.Equal(t, i+1, cseq)
	}
}

func TestServerRespondsNotFoundForUnregisteredPath(t *testing.T) {
	_, host, port := startTestServer(t)

	c := NewClient()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Describe(ctx, host, port, "rtsp://"+host+"/missing")
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
}

func TestAllPathObservesEveryRequest(t *testing.T) {
	s, host, port := startTestServer(t)

	observed := make(chan Method, 4)
	s.Handle(AllPath, HandlerFunc(func(_ *Connection, req *Request) *Response {
		observed <- req.Method
		return nil
	}))
	s.Handle("/s", HandlerFunc(func(_ *Connection, req *Request) *Response {
		return &Response{Version: "1.0", StatusCode: 200, Reason: "OK"}
	}))

	c := NewClient()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Describe(ctx, host, port, "rtsp://"+host+"/s")
	require.NoError(t, err)

	select {
	case m := <-observed:
		require.Equal(t, MethodDescribe, m)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for /all observer")
	}
}

func TestServerSendRequestFansOutToAttachedConnections(t *testing.T) {
	s, host, port := startTestServer(t)

	received := make(chan *Request, 1)
	s.Handle("/s", HandlerFunc(func(conn *Connection, req *Request) *Response {
		s.Attach("/s", conn)
		return &Response{Version: "1.0", StatusCode: 200, Reason: "OK"}
	}))

	c := NewClient()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Setup(ctx, host, port, "rtsp://"+host+"/s", nil)
	require.NoError(t, err)

	// give the handler time to Attach before the server pushes a request
	time.Sleep(50 * time.Millisecond)

	cc, err := c.connFor(host, port)
	require.NoError(t, err)
	cc.conn.OnRequest = func(_ *Connection, req *Request) { received <- req }

	s.SendRequest("/s", &Request{Method: MethodAnnounce, URI: "rtsp://" + host + "/s", Version: "1.0"})

	select {
	case req := <-received:
		require.Equal(t, MethodAnnounce, req.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-pushed request")
	}
}

func TestRequestPath(t *testing.T) {
	require.Equal(t, "/session1", requestPath("rtsp://host:554/session1"))
	require.Equal(t, "*", requestPath("*"))
}
