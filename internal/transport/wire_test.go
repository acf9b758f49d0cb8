// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// TestHeaderRoundTrip is property P4: Encode/Decode round-trips a
// header bit-for-bit.
func TestHeaderRoundTrip(t *testing.T) {
	h := MessageHeader{
		Size:       123,
		Domain:     "madara",
		Originator: "agent-1",
		Type:       TypeMultiAssign,
		Updates:    3,
		Quality:    7,
		Clock:      42,
		Timestamp:  1710000000,
		TTL:        5,
	}
	buf := h.Encode()
	assert.Equal(t, HeaderSize, len(buf))

	got, n, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, n)
	assert.Equal(t, h, got)
}

func TestReducedHeaderRoundTrip(t *testing.T) {
	h := MessageHeader{Size: 99, Type: TypeMultiAssign, Updates: 1, Quality: 1, Clock: 10, Timestamp: 99, TTL: 1}
	buf := h.EncodeReduced()
	assert.Equal(t, ReducedHeaderSize, len(buf))

	got, n, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, ReducedHeaderSize, n)
	assert.Empty(t, got.Domain)
	assert.Empty(t, got.Originator)
	assert.Equal(t, h.Clock, got.Clock)
}

// TestReducedHeaderWithLargeBodyIsNotMisdecodedAsFull guards against
// classifying the header variant by datagram length: a reduced header
// (ReducedHeaderSize bytes) followed by a body bigger than the gap
// between ReducedHeaderSize and HeaderSize makes the whole datagram
// longer than a full header, even though it still carries the reduced
// magic. DecodeHeader must still recognize it as reduced and hand back
// the body untouched.
func TestReducedHeaderWithLargeBodyIsNotMisdecodedAsFull(t *testing.T) {
	h := MessageHeader{Size: 99, Type: TypeMultiAssign, Updates: 1, Quality: 1, Clock: 10, Timestamp: 99, TTL: 1}
	hdr := h.EncodeReduced()

	body := make([]byte, HeaderSize-ReducedHeaderSize+96)
	for i := range body {
		body[i] = byte(i)
	}
	buf := append(append([]byte(nil), hdr...), body...)
	assert.Greater(t, len(buf), HeaderSize, "datagram must be at least as long as a full header to reproduce the bug")

	got, n, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, ReducedHeaderSize, n)
	assert.Empty(t, got.Domain)
	assert.Empty(t, got.Originator)
	assert.Equal(t, h.Clock, got.Clock)
	assert.Equal(t, h.Timestamp, got.Timestamp)
	assert.Equal(t, h.TTL, got.TTL)
	assert.Equal(t, body, buf[n:])
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	h := MessageHeader{Type: TypeMultiAssign}
	buf := h.Encode()
	buf[8] = 'x'
	_, _, err := DecodeHeader(buf)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, _, err := DecodeHeader(make([]byte, 4))
	assert.Error(t, err)
}

// TestRecordRoundTrip exercises every Value kind through
// EncodeRecord/DecodeRecord.
func TestRecordRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    knowledge.Value
	}{
		{"integer", knowledge.NewInteger(-7)},
		{"double", knowledge.NewDouble(3.5)},
		{"string", knowledge.NewString("hello world")},
		{"integer_array", knowledge.NewIntegerArray([]int64{1, 2, 3})},
		{"double_array", knowledge.NewDoubleArray([]float64{1.5, -2.5})},
		{"buffer", knowledge.NewBuffer([]byte{0x01, 0x02, 0x03})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := EncodeRecord(".key", tc.v)
			key, v, n, err := DecodeRecord(buf)
			require.NoError(t, err)
			assert.Equal(t, len(buf), n)
			assert.Equal(t, ".key", key)
			assert.True(t, tc.v.Equal(v), "expected %v got %v", tc.v, v)
		})
	}
}

func TestDecodeRecordRejectsTruncated(t *testing.T) {
	buf := EncodeRecord(".key", knowledge.NewString("abcdef"))
	_, _, _, err := DecodeRecord(buf[:len(buf)-2])
	assert.Error(t, err)
}
