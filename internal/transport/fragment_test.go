// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// TestFragmentRoundTrip is Scenario S3: a 4096-byte string record at
// max_fragment_size=1000 splits into exactly 5 datagrams sharing
// (originator, clock, timestamp), indices 0..4, and reassembles
// byte-for-byte.
func TestFragmentRoundTrip(t *testing.T) {
	payload := EncodeRecord("big", knowledge.NewString(strings.Repeat("x", 4096)))

	h := MessageHeader{
		Domain:     "madara",
		Originator: "agent-1",
		Type:       TypeMultiAssign,
		Updates:    1,
		Clock:      10,
		Timestamp:  1710000000,
		TTL:        5,
	}

	frags, err := Fragment(h, payload, 1000, false)
	require.NoError(t, err)
	assert.Len(t, frags, 5)

	r := NewReassembler(0)
	var complete []byte
	var ok bool
	for i, f := range frags {
		fh, off, err := DecodeHeader(f)
		require.NoError(t, err)
		assert.Equal(t, h.Originator, fh.Originator)
		assert.Equal(t, h.Clock, fh.Clock)
		assert.Equal(t, h.Timestamp, fh.Timestamp)
		assert.NotZero(t, fh.Type&FragmentBit)
		idx := int(beUint32(f[off:]))
		assert.Equal(t, i, idx)
		chunk := f[off+FragmentHeaderExtra:]
		complete, ok = r.Insert(fh, idx, chunk)
		if i < len(frags)-1 {
			assert.False(t, ok)
		}
	}
	require.True(t, ok)
	assert.Equal(t, payload, complete)
}

// TestFragmentCountMatchesCeilDivision (property P5): fragment count is ceil(len(payload)/chunkBudget).
func TestFragmentCountMatchesCeilDivision(t *testing.T) {
	h := MessageHeader{Type: TypeMultiAssign, Clock: 1, Timestamp: 1}
	payload := make([]byte, 3301)
	frags, err := Fragment(h, payload, 500, false)
	require.NoError(t, err)

	chunkBudget := 500 - HeaderSize - FragmentHeaderExtra
	want := (len(payload) + chunkBudget - 1) / chunkBudget
	assert.Len(t, frags, want)
}

func TestFragmentRejectsTooSmallBudget(t *testing.T) {
	h := MessageHeader{Type: TypeMultiAssign}
	_, err := Fragment(h, make([]byte, 10), HeaderSize, false)
	assert.Error(t, err)
}

func TestReassemblerDropsUnknownFragmentIndex(t *testing.T) {
	r := NewReassembler(0)
	h := MessageHeader{Originator: "a", Clock: 1, Timestamp: 1, Updates: 2}
	_, ok := r.Insert(h, 5, []byte("x"))
	assert.False(t, ok)
}

func TestReassemblerDuplicateFragmentIsIdempotent(t *testing.T) {
	r := NewReassembler(0)
	h := MessageHeader{Originator: "a", Clock: 1, Timestamp: 1, Updates: 2}
	_, ok := r.Insert(h, 0, []byte("AAAA"))
	assert.False(t, ok)
	_, ok = r.Insert(h, 0, []byte("AAAA"))
	assert.False(t, ok)
	assert.Equal(t, 1, r.Pending())
	complete, ok := r.Insert(h, 1, []byte("BBBB"))
	require.True(t, ok)
	assert.Equal(t, []byte("AAAABBBB"), complete)
	assert.Equal(t, 0, r.Pending())
}
