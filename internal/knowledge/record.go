// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

// Status distinguishes a key that has never been written (invisible to
// exists/iteration/reads, I3) from one that has been locally or remotely
// mutated since the last send/clear.
type Status int

const (
	StatusUncreated Status = iota
	StatusModified
)

// HistoryEntry is one slot of a Record's bounded ring-buffer history.
type HistoryEntry struct {
	Value Value
	TOI   uint64
}

// Record is a single tagged-variant value plus its replication metadata.
// All fields are only ever touched while the owning Context's mutex is
// held; Record itself has no lock of its own (the source's
// Thread_Safe_Context serializes all record access through one context
// mutex, and so does this port — see Context for the locking discipline).
type Record struct {
	Value        Value
	Clock        uint64 // I1: never decreases except via an administrative reset
	TOI          uint64
	Quality      uint32
	WriteQuality uint32
	Status       Status
	Originator   string // writer id of the last accepted write, for §4.1 tie-break

	history    []HistoryEntry
	historyCap int
	historyPos int
	historyLen int
}

// newRecord creates a lazily-initialized record with no history capacity
// (capacity-1 behavior, per §3).
func newRecord() *Record {
	return &Record{Status: StatusUncreated}
}

// SetHistoryCapacity configures the bounded ring buffer. Capacity 0 or 1
// means "no history beyond the current value" (the default).
func (r *Record) SetHistoryCapacity(n int) {
	if n < 1 {
		n = 1
	}
	r.historyCap = n
	r.history = make([]HistoryEntry, n)
	r.historyPos = 0
	r.historyLen = 0
}

// pushHistory records the value that is about to be overwritten, prior to
// an accepted write, when history capacity is configured above 1.
func (r *Record) pushHistory(v Value, toi uint64) {
	if r.historyCap <= 1 {
		return
	}
	r.history[r.historyPos] = HistoryEntry{Value: v, TOI: toi}
	r.historyPos = (r.historyPos + 1) % r.historyCap
	if r.historyLen < r.historyCap {
		r.historyLen++
	}
}

// History returns the retained prior values, oldest first.
func (r *Record) History() []HistoryEntry {
	if r.historyCap <= 1 || r.historyLen == 0 {
		return nil
	}
	out := make([]HistoryEntry, r.historyLen)
	start := (r.historyPos - r.historyLen + r.historyCap) % r.historyCap
	for i := 0; i < r.historyLen; i++ {
		out[i] = r.history[(start+i)%r.historyCap]
	}
	return out
}

// Visible reports whether the record should be treated as present for
// exists/iteration/read purposes (I3).
func (r *Record) Visible() bool {
	return r != nil && r.Status != StatusUncreated
}

// snapshot copies the fields a send pipeline or checkpoint needs without
// holding a pointer into the live map entry.
func (r *Record) snapshot() Record {
	return Record{
		Value:        r.Value,
		Clock:        r.Clock,
		TOI:          r.TOI,
		Quality:      r.Quality,
		WriteQuality: r.WriteQuality,
		Status:       r.Status,
		Originator:   r.Originator,
	}
}
