// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// TestWaiterWaitReturnsOnVariableRead drives Waiter.Wait (not bare
// Expression.Evaluate) over an expression that reads a context variable.
// Wait must evaluate without deadlocking against Get's own locking; run
// under `go test -timeout` (or -race) this hangs forever on the bug where
// Wait held ctx's lock across Evaluate.
func TestWaiterWaitReturnsOnVariableRead(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	_, err := ctx.Set(".ready", knowledge.NewInteger(1))
	require.NoError(t, err)

	expr, err := Compile(".ready", ctx)
	require.NoError(t, err)

	w := NewWaiter(expr, WaitSettings{EvalSettings: DefaultEvalSettings()})

	done := make(chan knowledge.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := w.Wait(ctx)
		if err != nil {
			errCh <- err
			return
		}
		done <- v
	}()

	select {
	case v := <-done:
		assert.Equal(t, int64(1), v.AsInteger())
	case err := <-errCh:
		t.Fatalf("wait returned error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return within 2s; likely self-deadlocked on ctx's lock")
	}
}

// TestWaiterWaitReturnsOnVariableWrite covers an expression that assigns
// a variable (reaching Set, not just Get) while Wait is driving it.
func TestWaiterWaitReturnsOnVariableWrite(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	_, err := ctx.Set(".count", knowledge.NewInteger(0))
	require.NoError(t, err)

	expr, err := Compile(".count = .count + 1", ctx)
	require.NoError(t, err)

	w := NewWaiter(expr, WaitSettings{EvalSettings: DefaultEvalSettings()})

	done := make(chan knowledge.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := w.Wait(ctx)
		if err != nil {
			errCh <- err
			return
		}
		done <- v
	}()

	select {
	case v := <-done:
		assert.Equal(t, int64(1), v.AsInteger())
		assert.Equal(t, int64(1), ctx.Get(".count").AsInteger())
	case err := <-errCh:
		t.Fatalf("wait returned error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return within 2s; likely self-deadlocked on ctx's lock")
	}
}
