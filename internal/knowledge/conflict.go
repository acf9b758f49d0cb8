// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

// writeAttempt describes an incoming write (local or remote-origin)
// before the §4.1 conflict rule has been applied.
type writeAttempt struct {
	Value      Value
	Clock      uint64
	Quality    uint32
	Originator string
}

// resolveConflict applies the §4.1 conflict-resolution rule in place on
// rec, returning whether the write was accepted. rec must be non-nil;
// callers lazily create it first. This is the only place I1/I2 are
// enforced, grounded on the tie-break rule spec'd in §4.1 and exercised
// by Scenarios S1/S2 in §8.
func resolveConflict(rec *Record, w writeAttempt, alwaysOverwrite bool) bool {
	accept := false

	switch {
	case alwaysOverwrite:
		accept = true
		if w.Clock > rec.Clock {
			rec.Clock = w.Clock
		}
	case w.Quality < rec.Quality:
		accept = false
	case w.Quality > rec.Quality:
		accept = true
		rec.Quality = w.Quality
		rec.Clock = w.Clock
	default: // w.Quality == rec.Quality
		switch {
		case w.Clock > rec.Clock:
			accept = true
			rec.Clock = w.Clock
		case w.Clock < rec.Clock:
			accept = false
		default:
			accept = w.Originator > rec.Originator
			if accept {
				rec.Clock = w.Clock
			}
		}
	}

	if !accept {
		return false
	}

	if rec.historyCap > 1 && rec.Status == StatusModified {
		rec.pushHistory(rec.Value, rec.TOI)
	}

	rec.Value = w.Value
	rec.Originator = w.Originator
	rec.Status = StatusModified
	return true
}
