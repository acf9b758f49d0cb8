// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bandwidthEntry is one timestamped accounting record, mirroring
// original_source/BandwidthMonitor.h's `BandwidthRecord` (pair of
// timestamp, size).
type bandwidthEntry struct {
	at    time.Time
	bytes uint64
}

// BandwidthMonitor is a sliding-window byte accountant: add(bytes)
// records a timestamped entry, get_utilization sums entries within the
// window after evicting stale ones (spec §4.5 "Policies").
//
// A deque-of-(timestamp,size) pairs is the sliding-window primitive
// itself, grounded directly on original_source's BandwidthMonitor; an
// x/time/rate.Limiter is layered on top as the write-path smoothing
// token bucket in front of this hard window cap (SPEC_FULL.md §4.5).
type BandwidthMonitor struct {
	mu      sync.Mutex
	entries []bandwidthEntry
	window  time.Duration
	limiter *rate.Limiter
}

// NewBandwidthMonitor builds a monitor with the given sliding window
// (default 10s per original_source) and, when limit >= 0, a token-bucket
// limiter sized to that many bytes/s for smoothing ahead of the window's
// hard cap.
func NewBandwidthMonitor(window time.Duration, limit int64) *BandwidthMonitor {
	if window <= 0 {
		window = 10 * time.Second
	}
	m := &BandwidthMonitor{window: window}
	if limit >= 0 {
		m.limiter = rate.NewLimiter(rate.Limit(limit), int(limit))
	}
	return m
}

// Add records bytes written/read at the current time.
func (m *BandwidthMonitor) Add(bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, bandwidthEntry{at: time.Now(), bytes: bytes})
	m.evictLocked(time.Now())
}

func (m *BandwidthMonitor) evictLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.entries) && m.entries[i].at.Before(cutoff) {
		i++
	}
	m.entries = m.entries[i:]
}

// Utilization returns total bytes recorded within the current window.
func (m *BandwidthMonitor) Utilization() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(time.Now())
	var total uint64
	for _, e := range m.entries {
		total += e.bytes
	}
	return total
}

// BytesPerSecond is Utilization averaged over the window.
func (m *BandwidthMonitor) BytesPerSecond() uint64 {
	u := m.Utilization()
	secs := m.window.Seconds()
	if secs <= 0 {
		return u
	}
	return uint64(float64(u) / secs)
}

// IsViolated reports whether the window's bytes/s average, as it stands
// before this send, already exceeds limit (spec §4.1 Policies:
// "is_bandwidth_violated(limit) returns true iff utilization bytes/s
// exceeds limit"). It judges accumulated utilization only, never the
// pending send's own size, so a cold window always admits the first
// datagram regardless of how large it is (S6: the 2000-byte write that
// first crosses a 1000 bytes/s limit still goes out; only a following
// send, now over limit, is suppressed). A limit < 0 disables the check
// (spec §6 "-1 disables").
func (m *BandwidthMonitor) IsViolated(limit int64) bool {
	if limit < 0 {
		return false
	}
	return float64(m.BytesPerSecond()) > float64(limit)
}

// Allow consults the smoothing token bucket (if configured). A datagram
// larger than the bucket's burst can never be approved by AllowN no
// matter how empty the bucket is, so such datagrams skip the smoothing
// check entirely and are governed by IsViolated's window cap alone —
// otherwise a single oversized-but-legitimate send (S6's first 2000-byte
// write against a 1000-byte bucket) would be refused outright instead of
// merely accounted against the window.
func (m *BandwidthMonitor) Allow(bytes int) bool {
	if m.limiter == nil {
		return true
	}
	if bytes > m.limiter.Burst() {
		return true
	}
	return m.limiter.AllowN(time.Now(), bytes)
}

// Clear empties the monitor (original_source's BandwidthMonitor::clear).
func (m *BandwidthMonitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// NumMessages returns the number of entries within the current window.
func (m *BandwidthMonitor) NumMessages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(time.Now())
	return len(m.entries)
}
