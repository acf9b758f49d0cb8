// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"fmt"
	"strings"
)

// IsLocalKey reports whether key is a local key (begins with '.'): not
// replicated, not modified-tracked for transport, per §3 "Key conventions".
func IsLocalKey(key string) bool {
	return strings.HasPrefix(key, ".")
}

// ValidateBraces checks brace balance in a key pattern at compile time,
// per §3's "Compilation validates brace balance". It does not resolve
// segments; that happens on every use in expandKeyLocked.
func ValidateBraces(key string) error {
	depth := 0
	for i, r := range key {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("knowledge: unbalanced '}' in key %q at offset %d", key, i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("knowledge: unbalanced '{' in key %q", key)
	}
	return nil
}

// ExpandStatement resolves brace-delimited segments in s against the
// Context, locking internally. It is the exported entry point used by
// karl's `#expand_statement` system call.
func (c *Context) ExpandStatement(s string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expandKeyLocked(s)
}

// expandKeyLocked resolves brace-delimited segments in key against the
// Context (already locked by the caller). Each innermost `{...}` segment
// is looked up as a key and its string value substituted in place, so
// nested segments resolve inside-out one pass at a time until no braces
// remain — matching "at each use, inner segments are resolved against the
// Context to produce the effective key" (§3).
func (c *Context) expandKeyLocked(key string) (string, error) {
	if err := ValidateBraces(key); err != nil {
		return "", err
	}

	for strings.ContainsRune(key, '{') {
		open := strings.LastIndexByte(key, '{')
		rel := strings.IndexByte(key[open:], '}')
		if rel < 0 {
			return "", fmt.Errorf("knowledge: unbalanced '{' in key %q", key)
		}
		closeIdx := open + rel

		inner := key[open+1 : closeIdx]
		rec := c.records[inner]
		var resolved string
		if rec.Visible() {
			resolved = rec.Value.AsString("")
		}

		key = key[:open] + resolved + key[closeIdx+1:]
	}

	return key, nil
}
