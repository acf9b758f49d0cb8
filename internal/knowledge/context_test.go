// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistsOnUncreatedKeyIsFalse(t *testing.T) {
	c := Open()
	defer c.Close()

	assert.False(t, c.Exists("x"))
	assert.Equal(t, int64(0), c.Get("x").AsInteger())
}

func TestSetThenGetRoundTrip(t *testing.T) {
	c := Open()
	defer c.Close()

	code, err := c.Set("x", NewInteger(42))
	require.NoError(t, err)
	assert.Equal(t, ReturnAccepted, code)
	assert.True(t, c.Exists("x"))
	assert.Equal(t, int64(42), c.Get("x").AsInteger())
}

// TestQualityBasedRejection is Scenario S1: a lower-quality remote write
// must be rejected and must not enter global-modified.
func TestQualityBasedRejection(t *testing.T) {
	c := Open()
	defer c.Close()

	c.mu.Lock()
	rec := c.recordLocked("x")
	rec.Value = NewInteger(5)
	rec.Clock = 5
	rec.Quality = 3
	rec.Status = StatusModified
	c.mu.Unlock()
	c.ResetModified()

	code, err := c.ApplyRemoteWrite("x", "alice", NewInteger(7), 6, 2)
	require.NoError(t, err)
	assert.Equal(t, ReturnQualityRejected, code)
	assert.Equal(t, int64(5), c.Get("x").AsInteger())

	c.mu.Lock()
	_, modified := c.globalModified["x"]
	c.mu.Unlock()
	assert.False(t, modified, "rejected write must not mark x as modified")
}

// TestClockTieBreakIsLexicographicOnOriginator is Scenario S2: equal
// clock and quality falls back to comparing originator ids, and "bob" >
// "alice" lexicographically means alice's write loses.
func TestClockTieBreakIsLexicographicOnOriginator(t *testing.T) {
	c := Open()
	defer c.Close()

	c.mu.Lock()
	rec := c.recordLocked("x")
	rec.Value = NewInteger(5)
	rec.Clock = 10
	rec.Quality = 1
	rec.Originator = "bob"
	rec.Status = StatusModified
	c.mu.Unlock()

	code, err := c.ApplyRemoteWrite("x", "alice", NewInteger(9), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, ReturnQualityRejected, code)
	assert.Equal(t, int64(5), c.Get("x").AsInteger())
}

func TestClockTieBreakAcceptsHigherOriginator(t *testing.T) {
	c := Open()
	defer c.Close()

	c.mu.Lock()
	rec := c.recordLocked("x")
	rec.Value = NewInteger(5)
	rec.Clock = 10
	rec.Quality = 1
	rec.Originator = "alice"
	rec.Status = StatusModified
	c.mu.Unlock()

	code, err := c.ApplyRemoteWrite("x", "bob", NewInteger(9), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, ReturnAccepted, code)
	assert.Equal(t, int64(9), c.Get("x").AsInteger())
}

func TestLocalKeysAreNotTrackedAsGlobalModified(t *testing.T) {
	c := Open()
	defer c.Close()

	_, err := c.Set(".private", NewInteger(1))
	require.NoError(t, err)
	_, err = c.Set("shared", NewInteger(1))
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, privateTracked := c.globalModified[".private"]
	_, sharedTracked := c.globalModified["shared"]
	assert.False(t, privateTracked)
	assert.True(t, sharedTracked)
}

func TestGetModifiedsAndResetModified(t *testing.T) {
	c := Open()
	defer c.Close()

	_, err := c.Set("a", NewInteger(1))
	require.NoError(t, err)
	_, err = c.Set("b", NewInteger(2))
	require.NoError(t, err)

	c.Lock()
	mods := c.GetModifiedsLocked()
	c.Unlock()
	assert.Len(t, mods, 2)

	c.ResetModified()
	c.Lock()
	mods = c.GetModifiedsLocked()
	c.Unlock()
	assert.Empty(t, mods)
}

func TestEraseInvalidatesVisibility(t *testing.T) {
	c := Open()
	defer c.Close()

	_, err := c.Set("x", NewInteger(1))
	require.NoError(t, err)
	c.Erase("x")
	assert.False(t, c.Exists("x"))
}

func TestWaitForChangeWakesOnBroadcast(t *testing.T) {
	c := Open()
	defer c.Close()

	woke := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.WaitForChange(ctx)
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := c.Set("x", NewInteger(1))
	require.NoError(t, err)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not wake on broadcast")
	}
}

func TestWaitForChangeRespectsContextCancellation(t *testing.T) {
	c := Open()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.WaitForChange(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not return when its context was cancelled")
	}
}

func TestKeyExpansion(t *testing.T) {
	c := Open()
	defer c.Close()

	_, err := c.Set("host", NewString("node01"))
	require.NoError(t, err)
	_, err = c.Set("node01.status", NewString("ready"))
	require.NoError(t, err)

	assert.Equal(t, "ready", c.Get("{host}.status").AsString(""))
}

func TestValidateBracesRejectsUnbalanced(t *testing.T) {
	assert.Error(t, ValidateBraces("{a"))
	assert.Error(t, ValidateBraces("a}"))
	assert.NoError(t, ValidateBraces("{a}.{b}"))
}

func TestCheckpointRoundTrip(t *testing.T) {
	c := Open()
	defer c.Close()

	_, err := c.Set("count", NewInteger(7))
	require.NoError(t, err)
	_, err = c.Set("name", NewString("agent-1"))
	require.NoError(t, err)
	_, err = c.Set("samples", NewDoubleArray([]float64{1.5, 2.5}))
	require.NoError(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "snapshot.json")
	require.NoError(t, c.SaveCheckpoint(file))

	restored := Open()
	defer restored.Close()
	require.NoError(t, restored.LoadCheckpoint(file))

	assert.Equal(t, int64(7), restored.Get("count").AsInteger())
	assert.Equal(t, "agent-1", restored.Get("name").AsString(""))
	assert.Equal(t, []float64{1.5, 2.5}, restored.Get("samples").DoubleArray())
}

func TestRegisterAndLookupFunction(t *testing.T) {
	c := Open()
	defer c.Close()

	c.RegisterFunction("double", func(ctx *Context, args []Value) (Value, error) {
		return NewInteger(args[0].AsInteger() * 2), nil
	})

	fn, ok := c.LookupFunction("double")
	require.True(t, ok)
	result, err := fn(c, []Value{NewInteger(21)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.AsInteger())
}
