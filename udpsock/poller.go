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
	"errors"
	"fmt"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Handler receives one packet arriving on the socket it was registered
// against.
type Handler func(Packet)

type registration struct {
	sock    *Socket
	fd      int
	handler Handler
	buf     []byte
}

// Poller runs a single-threaded poll loop over a set of sockets, delivering
// each arriving datagram to the handler registered for that socket.
// Registering or removing sockets is safe from any goroutine; Run itself
// must only ever execute on one goroutine at a time.
type Poller struct {
	mu    sync.Mutex
	regs  []*registration
	wake  [2]int
	quit  chan struct{}
	bufsz int
}

// NewPoller creates a Poller that reads up to bufSize bytes per datagram.
func NewPoller(bufSize int) (*Poller, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}
	return &Poller{
		wake:  [2]int{fds[0], fds[1]},
		quit:  make(chan struct{}),
		bufsz: bufSize,
	}, nil
}

// Register adds sock to the poll set; handler is invoked for every
// datagram subsequently read from it.
func (p *Poller) Register(sock *Socket, handler Handler) error {
	fd, err := sock.Fd()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, &registration{
		sock:    sock,
		fd:      fd,
		handler: handler,
		buf:     make([]byte, p.bufsz),
	})
	p.nudge()
	return nil
}

// Unregister removes sock from the poll set.
func (p *Poller) Unregister(sock *Socket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.regs {
		if r.sock == sock {
			p.regs = append(p.regs[:i], p.regs[i+1:]...)
			break
		}
	}
	p.nudge()
}

// nudge wakes a blocked Run call after the registration set changes.
// Caller must hold p.mu.
func (p *Poller) nudge() {
	_, _ = unix.Write(p.wake[1], []byte{0})
}

// Stop causes Run to return.
func (p *Poller) Stop() {
	close(p.quit)
	_, _ = unix.Write(p.wake[1], []byte{0})
}

// Run blocks, polling every registered socket and dispatching arriving
// packets to their handlers, until Stop is called. This is the single
// reader thread that serves every socket: exactly one goroutine should
// call Run.
func (p *Poller) Run() error {
	defer unix.Close(p.wake[0])
	defer unix.Close(p.wake[1])

	for {
		select {
		case <-p.quit:
			return nil
		default:
		}

		p.mu.Lock()
		fds := make([]unix.PollFd, 0, len(p.regs)+1)
		fds = append(fds, unix.PollFd{Fd: int32(p.wake[0]), Events: unix.POLLIN})
		for _, r := range p.regs {
			fds = append(fds, unix.PollFd{Fd: int32(r.fd), Events: unix.POLLIN})
		}
		regs := p.regs
		p.mu.Unlock()

		n, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			drain := make([]byte, 64)
			_, _ = unix.Read(p.wake[0], drain)
		}

		for i, r := range regs {
			pfd := fds[i+1]
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			pkt, err := r.sock.ReadPacket(r.buf)
			if err != nil {
				log.Warnf("udpsock: read error on registered socket: %v", err)
				continue
			}
			r.handler(pkt)
		}
	}
}
