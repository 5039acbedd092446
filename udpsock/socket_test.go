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

package udpsock

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenAndRoundTrip(t *testing.T) {
	recv, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer recv.Close()

	send, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer send.Close()

	dst := recv.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	_, err = send.WriteTo([]byte("hello"), dst)
	require.NoError(t, err)

	buf := make([]byte, 64)
	require.NoError(t, recv.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	pkt, err := recv.ReadPacket(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pkt.Data)
	require.Equal(t, dst.Addr(), pkt.Dst.Addr())
}

func TestPollerDispatchesToRegisteredHandler(t *testing.T) {
	recv, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer recv.Close()

	send, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer send.Close()

	poller, err := NewPoller(256)
	require.NoError(t, err)

	got := make(chan Packet, 1)
	require.NoError(t, poller.Register(recv, func(p Packet) { got <- p }))

	go poller.Run()
	defer poller.Stop()

	dst := recv.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	_, err = send.WriteTo([]byte("ping"), dst)
	require.NoError(t, err)

	select {
	case pkt := <-got:
		require.Equal(t, []byte("ping"), pkt.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched packet")
	}
}
