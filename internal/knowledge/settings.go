// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

// UpdateSettings controls how a single mutating call is applied, mirroring
// Knowledge_Update_Settings from the original source (see
// _examples/original_source/include/madara/knowledge/Knowledge_Update_Settings.h):
// the field names and defaults below are a direct port of that type.
type UpdateSettings struct {
	// TreatGlobalsAsLocals suppresses replication of this write.
	TreatGlobalsAsLocals bool
	// SignalChanges wakes any goroutine blocked in WaitForChange once the
	// write is accepted. Defaults to true; disabling it can break `wait`.
	SignalChanges bool
	// AlwaysOverwrite bypasses the §4.1 conflict rule entirely.
	AlwaysOverwrite bool
	// ExpandVariables resolves brace segments in the provided key before
	// lookup. Ignored for handle-based (VariableReference) setters.
	ExpandVariables bool
	// TrackLocalChanges additionally records the key in local-modified.
	TrackLocalChanges bool
	// ClockIncrement is how much to advance the record's clock on an
	// accepted local write. Zero is not a valid increment and is
	// treated as 1 by the local write path.
	ClockIncrement uint64
	// DelaySendingModifieds suppresses an implicit send triggered by this
	// write (consulted by callers that drive a Transport, not by Context
	// itself).
	DelaySendingModifieds bool
}

// DefaultUpdateSettings matches the source's default-constructed
// Knowledge_Update_Settings: signal changes, expand variables, increment
// by one, do not overwrite unconditionally.
func DefaultUpdateSettings() UpdateSettings {
	return UpdateSettings{
		SignalChanges:   true,
		ExpandVariables: true,
		ClockIncrement:  1,
	}
}

// ReferenceSettings controls a read-only access (get, get_ref, exists).
type ReferenceSettings struct {
	ExpandVariables bool
}

func DefaultReferenceSettings() ReferenceSettings {
	return ReferenceSettings{ExpandVariables: true}
}

// Setter return codes, per spec §6: "Error returns for setters".
const (
	ReturnAccepted            = 0
	ReturnNullOrEmptyKey      = -1
	ReturnQualityRejected     = -2
	ReturnTypeCoercionRejected = -3
)
