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

func newTestCore(t *testing.T, settings Settings) (*knowledge.Context, *Core) {
	t.Helper()
	ctx := knowledge.Open()
	t.Cleanup(ctx.Close)
	return ctx, NewCore(ctx, settings, FilterPipeline{})
}

func TestSendModifiedsRoundTripsThroughHandleDatagram(t *testing.T) {
	settings := DefaultSettings()
	settings.SendBandwidthLimit = -1
	settings.TotalBandwidthLimit = -1

	sender, senderCore := newTestCore(t, settings)
	receiver, receiverCore := newTestCore(t, settings)

	_, err := sender.Set("temperature", knowledge.NewInteger(42))
	require.NoError(t, err)

	var datagrams [][]byte
	err = senderCore.SendModifieds(func(buf []byte) error {
		cp := append([]byte(nil), buf...)
		datagrams = append(datagrams, cp)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, datagrams, 1)

	for _, dg := range datagrams {
		require.NoError(t, receiverCore.HandleDatagram(dg, nil))
	}

	v := receiver.Get("temperature")
	assert.Equal(t, int64(42), v.AsInteger())
}

func TestSendModifiedsIsNoOpWithNothingModified(t *testing.T) {
	_, core := newTestCore(t, DefaultSettings())
	var called bool
	err := core.SendModifieds(func(buf []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestHandleDatagramRebroadcastsWithDecrementedTTL(t *testing.T) {
	settings := DefaultSettings()
	sender, senderCore := newTestCore(t, settings)
	_, relayCore := newTestCore(t, settings)

	_, err := sender.Set("x", knowledge.NewInteger(1))
	require.NoError(t, err)

	var sent []byte
	require.NoError(t, senderCore.SendModifieds(func(buf []byte) error {
		sent = buf
		return nil
	}))

	var rebroadcast []byte
	require.NoError(t, relayCore.HandleDatagram(sent, func(buf []byte) error {
		rebroadcast = buf
		return nil
	}))
	require.NotNil(t, rebroadcast)

	h, _, err := DecodeHeader(sent)
	require.NoError(t, err)
	rh, _, err := DecodeHeader(rebroadcast)
	require.NoError(t, err)
	assert.Equal(t, h.TTL-1, rh.TTL)
}

func TestHandleDatagramDoesNotRebroadcastAtZeroTTL(t *testing.T) {
	settings := DefaultSettings()
	sender, senderCore := newTestCore(t, settings)
	_, relayCore := newTestCore(t, settings)

	_, err := sender.Set("x", knowledge.NewInteger(1))
	require.NoError(t, err)

	var sent []byte
	require.NoError(t, senderCore.SendModifieds(func(buf []byte) error {
		sent = buf
		return nil
	}))

	h, off, err := DecodeHeader(sent)
	require.NoError(t, err)
	h.TTL = 0
	rebuilt := append(h.Encode(), sent[off:]...)

	var called bool
	require.NoError(t, relayCore.HandleDatagram(rebuilt, func(buf []byte) error {
		called = true
		return nil
	}))
	assert.False(t, called, "ttl 0 must never rebroadcast")
}

func TestSendModifiedsRejectedByDeterministicScheduler(t *testing.T) {
	settings := DefaultSettings()
	settings.Scheduler = SchedulerSettings{Strategy: SchedulerDropDeterministic, DropN: 1, DropM: 1}
	ctx, core := newTestCore(t, settings)
	_, err := ctx.Set("x", knowledge.NewInteger(1))
	require.NoError(t, err)

	var called bool
	require.NoError(t, core.SendModifieds(func(buf []byte) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestFilterPipelineCanDropRecords(t *testing.T) {
	drop := func(records []knowledge.KeyValue, fctx *FilterContext) []knowledge.KeyValue {
		return nil
	}
	settings := DefaultSettings()
	ctx, _ := newTestCore(t, settings)
	core := NewCore(ctx, settings, FilterPipeline{Send: Pipeline{drop}})

	_, err := ctx.Set("x", knowledge.NewInteger(1))
	require.NoError(t, err)

	var called bool
	require.NoError(t, core.SendModifieds(func(buf []byte) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
