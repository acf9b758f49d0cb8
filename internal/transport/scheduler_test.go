// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerNoneNeverDrops(t *testing.T) {
	s := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerNone}, 1)
	for i := 0; i < 20; i++ {
		assert.False(t, s.ShouldDrop())
	}
}

func TestSchedulerDropDeterministic(t *testing.T) {
	s := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerDropDeterministic, DropN: 1, DropM: 4}, 1)
	var drops int
	for i := 0; i < 12; i++ {
		if s.ShouldDrop() {
			drops++
		}
	}
	assert.Equal(t, 3, drops, "1 in every 4 over 12 sends")
}

func TestSchedulerDropProbabilisticAlwaysOrNever(t *testing.T) {
	always := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerDropProbabilistic, DropProbability: 1}, 1)
	assert.True(t, always.ShouldDrop())

	never := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerDropProbabilistic, DropProbability: 0}, 1)
	assert.False(t, never.ShouldDrop())
}

func TestSchedulerReorderingHoldsAndFlushes(t *testing.T) {
	s := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerReordering, ReorderingFraction: 1}, 1)
	out := s.Reorder([]byte("a"))
	assert.Nil(t, out, "fraction 1 always holds back")

	s2 := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerReordering, ReorderingFraction: 0}, 1)
	out2 := s2.Reorder([]byte("a"))
	assert.Equal(t, [][]byte{[]byte("a")}, out2)
}

func TestSchedulerReorderingPassthroughWhenDisabled(t *testing.T) {
	s := NewPacketScheduler(SchedulerSettings{Strategy: SchedulerNone}, 1)
	out := s.Reorder([]byte("a"))
	assert.Equal(t, [][]byte{[]byte("a")}, out)
}
