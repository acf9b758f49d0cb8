// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport implements the Replication Transport: the datagram
// wire format, fragmentation/reassembly, per-peer bandwidth and
// packet-scheduling policy, send/receive pipelines, filters, and
// rebroadcast semantics (spec §4.4-§4.6).
package transport

import "time"

// Type enumerates the transport backends recognized by TransportSettings
// (spec §6). Only UDP/BROADCAST/MULTICAST and the NATS-backed
// REGISTRY_SERVER/REGISTRY_CLIENT pair are implemented here; the
// remainder are accepted as configuration values but have no Go
// implementation, matching how the teacher's config schema accepts
// values for collaborators it does not itself implement.
type Type int

const (
	TypeNone Type = iota
	TypeBroadcast
	TypeMulticast
	TypeUDP
	TypeTCP
	TypeRegistryServer
	TypeRegistryClient
	TypeZMQ
	TypeSplice
	TypeNDDS
)

// Reliability is advisory for UDP/multicast endpoints (spec §6).
type Reliability int

const (
	BestEffort Reliability = iota
	Reliable
)

// Settings carries every TransportSettings option spec.md §6 names.
type Settings struct {
	// Hosts is the ordered list of host:port peers; element 0 is the
	// local bind address.
	Hosts []string

	Type        Type
	Domain      string
	QueueLength int
	MaxFragmentSize int

	Reliability Reliability

	ReadThreads     int
	ReadThreadHertz float64

	ResendAttempts int
	SlackTime      time.Duration

	SendBandwidthLimit  int64 // bytes/s, -1 disables
	TotalBandwidthLimit int64 // bytes/s, -1 disables

	// Deadline drops inbound records whose TOI (the sending message's
	// header timestamp) is older than this many seconds, 0 disables.
	Deadline time.Duration

	SendReducedMessageHeader bool
	NeverExit                bool

	// OnDataReceivedLogic is a KaRL expression. Core does not evaluate
	// it when a batch is accepted; cmd/madara-agent compiles it and runs
	// it in a Waiter that re-evaluates it once a second.
	OnDataReceivedLogic string

	// FragmentReassemblyWindow resolves Open Question Q3: default
	// 2 * assumed RTT (200ms) bounded at 10s, i.e. 400ms.
	FragmentReassemblyWindow time.Duration

	// BandwidthWindow is the BandwidthMonitor's sliding-window size,
	// default 10s per original_source/BandwidthMonitor.h.
	BandwidthWindow time.Duration

	// DiagnosticPrefix labels the Prometheus diagnostic counters of
	// spec §7.3 ("counted in per-transport diagnostic records under a
	// configurable prefix").
	DiagnosticPrefix string

	// MulticastTTL is accepted and carried in Settings, but
	// NewUDPTransport does not apply it to the multicast socket, so
	// multicast endpoints use the operating system's default TTL.
	MulticastTTL int

	Scheduler SchedulerSettings
}

// DefaultSettings mirrors the field defaults spec.md §6 implies plus
// the Q3 resolution.
func DefaultSettings() Settings {
	return Settings{
		Type:                     TypeUDP,
		Domain:                   "madara",
		QueueLength:              64 * 1024,
		MaxFragmentSize:          1400,
		ReadThreads:              1,
		ResendAttempts:           3,
		SendBandwidthLimit:       -1,
		TotalBandwidthLimit:      -1,
		FragmentReassemblyWindow: 400 * time.Millisecond,
		BandwidthWindow:          10 * time.Second,
		DiagnosticPrefix:         "madara_transport",
		MulticastTTL:             1,
	}
}
