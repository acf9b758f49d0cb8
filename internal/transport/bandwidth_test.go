// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBandwidthMonitorAccumulatesWithinWindow(t *testing.T) {
	m := NewBandwidthMonitor(time.Minute, -1)
	m.Add(100)
	m.Add(250)
	assert.Equal(t, uint64(350), m.Utilization())
	assert.Equal(t, 2, m.NumMessages())
}

func TestBandwidthMonitorEvictsStaleEntries(t *testing.T) {
	m := NewBandwidthMonitor(10*time.Millisecond, -1)
	m.Add(500)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(0), m.Utilization())
}

func TestBandwidthMonitorIsViolated(t *testing.T) {
	m := NewBandwidthMonitor(time.Second, -1)
	assert.False(t, m.IsViolated(1000), "negative/disabled limit check")

	m2 := NewBandwidthMonitor(time.Second, 1000)
	assert.False(t, m2.IsViolated(1000), "empty window is never violated regardless of pending send size")

	m2.Add(1500)
	assert.True(t, m2.IsViolated(1000), "utilization already over limit")
}

func TestBandwidthMonitorClear(t *testing.T) {
	m := NewBandwidthMonitor(time.Minute, -1)
	m.Add(10)
	m.Clear()
	assert.Equal(t, uint64(0), m.Utilization())
}

// TestBandwidthGateAdmitsFirstOversizedSendThenSuppressesSecond is
// Scenario S6: with a 1000 bytes/s limit, a write that encodes to 2000
// bytes still goes out the first time (a cold window is never violated,
// and Allow must not refuse a single datagram solely for exceeding the
// smoothing bucket's burst); a second send_modifieds call within the
// same window, now over limit, is suppressed.
func TestBandwidthGateAdmitsFirstOversizedSendThenSuppressesSecond(t *testing.T) {
	const limit = 1000
	m := NewBandwidthMonitor(time.Second, limit)

	gate := func(n int) bool {
		if m.IsViolated(limit) || !m.Allow(n) {
			return false
		}
		m.Add(uint64(n))
		return true
	}

	assert.True(t, gate(2000), "first send_modifieds over a cold window must write despite exceeding the limit")
	assert.False(t, gate(2000), "second send_modifieds within the same window must be suppressed")
}

func TestBandwidthAllowNeverRefusesADatagramLargerThanBurstAlone(t *testing.T) {
	m := NewBandwidthMonitor(time.Second, 1000)
	assert.True(t, m.Allow(2000), "a send exceeding the smoothing bucket's burst is governed by IsViolated, not Allow")
}
