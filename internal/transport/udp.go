// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
	madaralog "github.com/jredmondson/madara-sub009/pkg/log"
)

// UDPTransport is a raw-datagram Transport covering TypeUDP, TypeBroadcast
// and TypeMulticast (spec §4.5/§6). Its endpoint lifecycle (Setup/Close,
// configurable read-thread count) is grounded structurally on
// original_source/udp/UdpTransport.cpp/.h; ecosystem UDP libraries in the
// example pack are all higher-level pub/sub wrappers (NATS, ZeroMQ-style),
// not raw datagram transports, so this layer is built on net.UDPConn, the
// one core piece of the Transport for which stdlib is the right tool
// (see DESIGN.md).
type UDPTransport struct {
	core *Core

	conn  *net.UDPConn
	peers []*net.UDPAddr

	mu      sync.Mutex
	closed  bool
	readers sync.WaitGroup
	stop    chan struct{}
}

// NewUDPTransport binds settings.Hosts[0] (BROADCAST/UDP) or joins a
// multicast group (MULTICAST) and resolves the remaining hosts as send
// peers. It does not start reading; call Start for that.
func NewUDPTransport(ctx *knowledge.Context, settings Settings, filters FilterPipeline) (*UDPTransport, error) {
	if len(settings.Hosts) == 0 {
		return nil, fmt.Errorf("transport: udp requires at least one host (local bind)")
	}

	localAddr, err := net.ResolveUDPAddr("udp", settings.Hosts[0])
	if err != nil {
		return nil, fmt.Errorf("transport: resolve local bind %q: %w", settings.Hosts[0], err)
	}

	var conn *net.UDPConn
	switch settings.Type {
	case TypeMulticast:
		conn, err = net.ListenMulticastUDP("udp", nil, localAddr)
	default:
		conn, err = net.ListenUDP("udp", localAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", settings.Hosts[0], err)
	}

	var peers []*net.UDPAddr
	for _, h := range settings.Hosts[1:] {
		addr, err := net.ResolveUDPAddr("udp", h)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve peer %q: %w", h, err)
		}
		peers = append(peers, addr)
	}

	t := &UDPTransport{
		core:  NewCore(ctx, settings, filters),
		conn:  conn,
		peers: peers,
		stop:  make(chan struct{}),
	}
	return t, nil
}

// Start launches ReadThreads goroutines, each running the receive
// pipeline in a loop until Close is called.
func (t *UDPTransport) Start() {
	n := t.core.Settings.ReadThreads
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		t.readers.Add(1)
		go t.readLoop()
	}
}

func (t *UDPTransport) readLoop() {
	defer t.readers.Done()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
				madaralog.Warnf("[TRANSPORT] udp read error: %s", err)
				continue
			}
		}
		datagram := append([]byte(nil), buf[:n]...)
		if err := t.core.HandleDatagram(datagram, t.rebroadcast); err != nil {
			madaralog.Warnf("[TRANSPORT] handle datagram: %s", err)
		}
	}
}

func (t *UDPTransport) rebroadcast(buf []byte) error {
	return t.writeAll(buf)
}

func (t *UDPTransport) writeAll(buf []byte) error {
	var firstErr error
	for _, peer := range t.peers {
		if _, err := t.conn.WriteToUDP(buf, peer); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendModifieds implements karl.Sender, letting a Waiter drive replication
// directly (spec §4.3: "the Waiter triggers a send of global-modifieds
// through any attached Transport").
func (t *UDPTransport) SendModifieds(ctx *knowledge.Context) error {
	return t.core.SendModifieds(t.writeAll)
}

// Registry exposes the transport's private Prometheus registry for
// scraping (spec §7.3).
func (t *UDPTransport) Registry() *prometheus.Registry {
	return t.core.Registry()
}

// Close invalidates the transport, closes the socket, and joins read
// goroutines (spec §5: "close() atomically invalidates the transport,
// shuts down sockets, and joins read threads").
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	err := t.conn.Close()
	t.readers.Wait()
	return err
}
