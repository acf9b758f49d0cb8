// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import "math/rand"

// SchedulerStrategy enumerates the drop/delay policies of spec §4.5
// ("Policies"), used to emulate loss or enforce a send rate in testing.
type SchedulerStrategy int

const (
	SchedulerNone SchedulerStrategy = iota
	SchedulerDropDeterministic
	SchedulerDropProbabilistic
	SchedulerDropBursty
	SchedulerReordering
)

// SchedulerSettings configures a PacketScheduler.
type SchedulerSettings struct {
	Strategy SchedulerStrategy

	// DROP_DETERMINISTIC(n/m): drop n out of every m datagrams.
	DropN, DropM int

	// DROP_PROBABILISTIC(p): drop with independent probability p.
	DropProbability float64

	// DROP_BURSTY(mean,stddev): drop-run lengths drawn from a normal
	// distribution, modeling correlated (bursty) loss.
	BurstyMean, BurstyStdDev float64

	// Reordering holds back a fraction of datagrams by one send, then
	// flushes them with the next — a simple two-slot reordering model.
	ReorderingFraction float64
}

// PacketScheduler decides whether a datagram should be sent, dropped, or
// (for REORDERING) deferred. Core consults ShouldDrop once per
// SendModifieds call, before encoding, and drops that whole send; the
// receive path does not consult the scheduler, and Core never calls
// Reorder.
type PacketScheduler struct {
	settings SchedulerSettings
	rng      *rand.Rand

	count       int
	burstRemain int
	pending     [][]byte
}

// NewPacketScheduler builds a scheduler from settings. seed is exposed
// for deterministic tests; production callers should pass a time-derived
// seed.
func NewPacketScheduler(settings SchedulerSettings, seed int64) *PacketScheduler {
	return &PacketScheduler{settings: settings, rng: rand.New(rand.NewSource(seed))}
}

// ShouldDrop reports whether the next datagram should be dropped
// outright under the configured strategy.
func (s *PacketScheduler) ShouldDrop() bool {
	s.count++
	switch s.settings.Strategy {
	case SchedulerDropDeterministic:
		if s.settings.DropM <= 0 {
			return false
		}
		return s.count%s.settings.DropM < s.settings.DropN
	case SchedulerDropProbabilistic:
		return s.rng.Float64() < s.settings.DropProbability
	case SchedulerDropBursty:
		if s.burstRemain > 0 {
			s.burstRemain--
			return true
		}
		if s.rng.Float64() < s.settings.BurstyMean/(s.settings.BurstyMean+1) {
			run := int(s.rng.NormFloat64()*s.settings.BurstyStdDev + s.settings.BurstyMean)
			if run > 0 {
				s.burstRemain = run - 1
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Reorder feeds buf through the REORDERING policy, returning the
// datagrams that should actually be sent now (possibly none, possibly
// buf plus a previously-held datagram).
func (s *PacketScheduler) Reorder(buf []byte) [][]byte {
	if s.settings.Strategy != SchedulerReordering || s.settings.ReorderingFraction <= 0 {
		return [][]byte{buf}
	}
	if s.rng.Float64() < s.settings.ReorderingFraction {
		s.pending = append(s.pending, buf)
		return nil
	}
	out := s.pending
	s.pending = nil
	out = append(out, buf)
	return out
}
