// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import "fmt"

// CompileError is raised by Compile/prune on malformed source: unbalanced
// punctuation, unknown system calls, wrong arity. It carries enough for a
// caller to point at the offending source span (§7.2: "a typed
// KarlException carrying message, cursor or node kind, and a human-
// readable hint").
type CompileError struct {
	Kind   string // e.g. "syntax", "arity", "unknown-call"
	Cursor int
	Hint   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("karl: %s error at offset %d: %s", e.Kind, e.Cursor, e.Hint)
}

// KarlException is a runtime (post-compile) error surfaced from
// evaluate — a missing function, an #isinf-style domain error passed
// through #eval, or a propagated compile error encountered lazily
// through #eval(s). It is never a panic (§7.2).
type KarlException struct {
	NodeKind string
	Message  string
	Hint     string
}

func (e *KarlException) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("karl: %s: %s (%s)", e.NodeKind, e.Message, e.Hint)
	}
	return fmt.Sprintf("karl: %s: %s", e.NodeKind, e.Message)
}
