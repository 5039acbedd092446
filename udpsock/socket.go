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

// Package udpsock implements the extended UDP socket the RTP/RTSP/PTP
// planes read and write through: opened non-blocking with SO_REUSEADDR,
// recovering the packet's destination address from IP_PKTINFO/
// IPV6_RECVPKTINFO control messages so a single socket can serve several
// multicast groups bound to the wildcard address.
package udpsock

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// Packet is one datagram read off an extended socket, with its source and
// recovered destination endpoints and arrival time.
type Packet struct {
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Data    []byte
	Arrival time.Time
}

// Socket is a UDP socket with destination-address recovery and multicast
// group membership management. Not safe for concurrent reads; intended to
// be polled by a single reader (see Poller).
type Socket struct {
	conn *net.UDPConn
	pc4  *ipv4.PacketConn
	pc6  *ipv6.PacketConn
	v6   bool
}

// Listen opens a non-blocking UDP socket bound to laddr with SO_REUSEADDR
// set and destination-address recovery enabled.
func Listen(laddr *net.UDPAddr) (*Socket, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", laddr, err)
	}
	conn := pc.(*net.UDPConn)

	s := &Socket{conn: conn, v6: laddr.IP.To4() == nil}
	if s.v6 {
		s.pc6 = ipv6.NewPacketConn(conn)
		if err := s.pc6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable ipv6 control messages: %w", err)
		}
	} else {
		s.pc4 = ipv4.NewPacketConn(conn)
		if err := s.pc4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable ipv4 control messages: %w", err)
		}
	}
	return s, nil
}

// Fd returns the underlying socket file descriptor, for use with
// unix.Poll in a Poller.
func (s *Socket) Fd() (int, error) {
	sc, err := s.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := sc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// JoinGroup joins the multicast group addr on iface (nil picks the default
// interface).
func (s *Socket) JoinGroup(addr netip.Addr, iface *net.Interface) error {
	group := &net.UDPAddr{IP: net.IP(addr.AsSlice())}
	if s.v6 {
		return s.pc6.JoinGroup(iface, group)
	}
	return s.pc4.JoinGroup(iface, group)
}

// LeaveGroup leaves a previously-joined multicast group.
func (s *Socket) LeaveGroup(addr netip.Addr, iface *net.Interface) error {
	group := &net.UDPAddr{IP: net.IP(addr.AsSlice())}
	if s.v6 {
		return s.pc6.LeaveGroup(iface, group)
	}
	return s.pc4.LeaveGroup(iface, group)
}

// SetMulticastLoopback controls whether multicast packets sent from this
// socket are looped back to local listeners.
func (s *Socket) SetMulticastLoopback(on bool) error {
	if s.v6 {
		return s.pc6.SetMulticastLoopback(on)
	}
	return s.pc4.SetMulticastLoopback(on)
}

// SetMulticastTTL sets the outgoing multicast hop limit / TTL.
func (s *Socket) SetMulticastTTL(ttl int) error {
	if s.v6 {
		return s.pc6.SetMulticastHopLimit(ttl)
	}
	return s.pc4.SetMulticastTTL(ttl)
}

// ReadPacket reads one datagram into buf, returning the source/destination
// endpoints recovered from the packet's control message and its arrival
// time. The returned Packet's Data aliases buf.
func (s *Socket) ReadPacket(buf []byte) (Packet, error) {
	now := time.Now()
	if s.v6 {
		n, cm, src, err := s.pc6.ReadFrom(buf)
		if err != nil {
			return Packet{}, err
		}
		return Packet{
			Src:     udpAddrPort(src),
			Dst:     cmDstPort6(cm, s.conn),
			Data:    buf[:n],
			Arrival: now,
		}, nil
	}
	n, cm, src, err := s.pc4.ReadFrom(buf)
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		Src:     udpAddrPort(src),
		Dst:     cmDstPort4(cm, s.conn),
		Data:    buf[:n],
		Arrival: now,
	}, nil
}

// WriteTo sends a datagram to dst.
func (s *Socket) WriteTo(b []byte, dst netip.AddrPort) (int, error) {
	return s.conn.WriteToUDPAddrPort(b, dst)
}

// Close closes the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func udpAddrPort(a net.Addr) netip.AddrPort {
	ua, ok := a.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	return ua.AddrPort()
}

func cmDstPort4(cm *ipv4.ControlMessage, conn *net.UDPConn) netip.AddrPort {
	if cm == nil || cm.Dst == nil {
		return localAddrPort(conn)
	}
	addr, ok := netip.AddrFromSlice(cm.Dst.To4())
	if !ok {
		return localAddrPort(conn)
	}
	return netip.AddrPortFrom(addr, localPort(conn))
}

func cmDstPort6(cm *ipv6.ControlMessage, conn *net.UDPConn) netip.AddrPort {
	if cm == nil || cm.Dst == nil {
		return localAddrPort(conn)
	}
	addr, ok := netip.AddrFromSlice(cm.Dst.To16())
	if !ok {
		return localAddrPort(conn)
	}
	return netip.AddrPortFrom(addr, localPort(conn))
}

func localAddrPort(conn *net.UDPConn) netip.AddrPort {
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return la.AddrPort()
	}
	return netip.AddrPort{}
}

func localPort(conn *net.UDPConn) uint16 {
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(la.Port)
	}
	return 0
}
