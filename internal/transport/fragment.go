// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fragment splits an already-encoded records payload (the body after the
// message header) into
// datagrams no larger than maxFragmentSize, each carrying the same
// header (with the FRAGMENT bit set and Updates repurposed as the total
// fragment count) plus an update_number field (spec §4.4).
func Fragment(h MessageHeader, payload []byte, maxFragmentSize int, reduced bool) ([][]byte, error) {
	headerSize := HeaderSize
	if reduced {
		headerSize = ReducedHeaderSize
	}
	chunkBudget := maxFragmentSize - headerSize - FragmentHeaderExtra
	if chunkBudget <= 0 {
		return nil, fmt.Errorf("transport: max_fragment_size %d too small for header", maxFragmentSize)
	}

	total := (len(payload) + chunkBudget - 1) / chunkBudget
	if total == 0 {
		total = 1
	}

	out := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		lo := i * chunkBudget
		hi := lo + chunkBudget
		if hi > len(payload) {
			hi = len(payload)
		}
		chunk := payload[lo:hi]

		fh := h
		fh.Type |= FragmentBit
		fh.Updates = uint32(total)
		fh.Size = uint64(headerSize + FragmentHeaderExtra + len(chunk))

		var hdrBytes []byte
		if reduced {
			hdrBytes = fh.EncodeReduced()
		} else {
			hdrBytes = fh.Encode()
		}

		buf := make([]byte, len(hdrBytes)+FragmentHeaderExtra+len(chunk))
		off := copy(buf, hdrBytes)
		binary.BigEndian.PutUint32(buf[off:], uint32(i))
		off += 4
		copy(buf[off:], chunk)
		out = append(out, buf)
	}
	return out, nil
}

// reassemblyKey derives a collision-resistant map key for the
// (originator, clock, timestamp) tuple fragments share (spec §4.4:
// "Fragments share the tuple (originator, clock, timestamp) as the
// reassembly key"), using a deterministic name-based UUID so repeated
// fragments of the same message hash to the same key.
func reassemblyKey(originator string, clock, timestamp uint64) uuid.UUID {
	name := fmt.Sprintf("%s|%d|%d", originator, clock, timestamp)
	return uuid.NewSHA1(uuid.Nil, []byte(name))
}

type reassemblyEntry struct {
	total    int
	chunks   [][]byte
	got      int
	header   MessageHeader
	deadline time.Time
}

// Reassembler tracks in-flight fragmented messages and reconstructs them
// once complete, discarding partial sets after their reassembly window
// expires (spec §4.4, Q3).
type Reassembler struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[uuid.UUID]*reassemblyEntry
}

// NewReassembler builds a Reassembler with the given reassembly window
// (Q3: default 400ms, i.e. 2 * assumed 200ms RTT, bounded at 10s).
func NewReassembler(window time.Duration) *Reassembler {
	if window <= 0 {
		window = 400 * time.Millisecond
	}
	if window > 10*time.Second {
		window = 10 * time.Second
	}
	return &Reassembler{window: window, entries: make(map[uuid.UUID]*reassemblyEntry)}
}

// Insert adds one fragment and returns the reconstructed payload plus
// true once every fragment of its message has arrived. Duplicate
// fragments are idempotent (re-inserting the same index is a no-op).
func (r *Reassembler) Insert(h MessageHeader, fragmentIndex int, chunk []byte) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	key := reassemblyKey(h.Originator, h.Clock, h.Timestamp)
	e, ok := r.entries[key]
	if !ok {
		e = &reassemblyEntry{
			total:    int(h.Updates),
			chunks:   make([][]byte, h.Updates),
			header:   h,
			deadline: time.Now().Add(r.window),
		}
		r.entries[key] = e
	}

	if fragmentIndex < 0 || fragmentIndex >= e.total {
		return nil, false
	}
	if e.chunks[fragmentIndex] == nil {
		e.chunks[fragmentIndex] = append([]byte(nil), chunk...)
		e.got++
	}

	if e.got < e.total {
		return nil, false
	}

	delete(r.entries, key)
	var out []byte
	for _, c := range e.chunks {
		out = append(out, c...)
	}
	return out, true
}

func (r *Reassembler) evictExpiredLocked() {
	now := time.Now()
	for k, e := range r.entries {
		if now.After(e.deadline) {
			delete(r.entries, k)
		}
	}
}

// Pending returns the number of in-flight (incomplete) reassemblies,
// used by diagnostics/tests.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
