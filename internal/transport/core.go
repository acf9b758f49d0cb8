// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// Core implements the transport-agnostic send/receive pipelines of spec
// §4.5, parameterized over a write function so UDP/broadcast/multicast
// and NATS-backed Transports (the two concrete backends implemented
// here) share one pipeline implementation.
type Core struct {
	Ctx        *knowledge.Context
	Settings   Settings
	Filters    FilterPipeline
	Scheduler  *PacketScheduler
	SendBW     *BandwidthMonitor
	RecvBW     *BandwidthMonitor
	Reassembler *Reassembler
	Diag       *diagnostics
	Originator string
}

// NewCore wires up the shared bandwidth monitors, scheduler, diagnostics
// and reassembler from Settings.
func NewCore(ctx *knowledge.Context, settings Settings, filters FilterPipeline) *Core {
	originator := ""
	if len(settings.Hosts) > 0 {
		originator = settings.Hosts[0]
	}
	return &Core{
		Ctx:         ctx,
		Settings:    settings,
		Filters:     filters,
		Scheduler:   NewPacketScheduler(settings.Scheduler, time.Now().UnixNano()),
		SendBW:      NewBandwidthMonitor(settings.BandwidthWindow, settings.SendBandwidthLimit),
		RecvBW:      NewBandwidthMonitor(settings.BandwidthWindow, settings.TotalBandwidthLimit),
		Reassembler: NewReassembler(settings.FragmentReassemblyWindow),
		Diag:        newDiagnostics(settings.DiagnosticPrefix),
		Originator:  originator,
	}
}

// Registry exposes the Core's private Prometheus registry for scraping.
func (c *Core) Registry() *prometheus.Registry { return c.Diag.Registry() }

// buildBatches greedily packs records into groups whose encoded size
// fits within queueLength (spec §4.5 step 6: "if full, split at record
// boundary and iterate").
func buildBatches(records []knowledge.KeyValue, budget int) [][]knowledge.KeyValue {
	if budget <= 0 {
		budget = 1 << 30
	}
	var batches [][]knowledge.KeyValue
	var cur []knowledge.KeyValue
	used := 0
	for _, kv := range records {
		sz := len(EncodeRecord(kv.Key, kv.Record.Value))
		if used+sz > budget && len(cur) > 0 {
			batches = append(batches, cur)
			cur = nil
			used = 0
		}
		cur = append(cur, kv)
		used += sz
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func encodeBatch(h MessageHeader, batch []knowledge.KeyValue) []byte {
	var body []byte
	for _, kv := range batch {
		body = append(body, EncodeRecord(kv.Key, kv.Record.Value)...)
	}
	h.Updates = uint32(len(batch))
	h.Size = uint64(HeaderSize) + uint64(len(body))
	var hdr []byte
	if len(h.Domain) == 0 {
		hdr = h.EncodeReduced()
	} else {
		hdr = h.Encode()
	}
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	out = append(out, body...)
	return out
}

// SendModifieds implements spec §4.5's send pipeline steps 1-9. write is
// called once per datagram that should actually go out (after scheduler
// and bandwidth checks). The message clock is advanced once, before any
// batch is encoded; the sent keys are reset in the modified set only
// after every datagram for this generation has been attempted.
func (c *Core) SendModifieds(write func([]byte) error) error {
	c.Ctx.Lock()
	kvs := c.Ctx.GetModifiedsLocked()
	c.Ctx.Unlock()

	if len(kvs) == 0 {
		return nil
	}

	if c.Scheduler.ShouldDrop() {
		c.Diag.dropped.WithLabelValues("scheduler").Inc()
		return nil
	}

	fctx := &FilterContext{Sender: c.Originator, Domain: c.Settings.Domain, TTL: 255}
	kvs = c.Filters.Send.Run(kvs, fctx)
	if len(kvs) == 0 {
		c.Ctx.ResetModified()
		return nil
	}

	clock := c.Ctx.IncClock()

	var quality uint32
	for _, kv := range kvs {
		if kv.Record.Quality > quality {
			quality = kv.Record.Quality
		}
	}

	h := MessageHeader{
		Domain:     c.Settings.Domain,
		Originator: c.Originator,
		Type:       TypeMultiAssign,
		Quality:    quality,
		Clock:      clock,
		Timestamp:  uint64(time.Now().Unix()),
		TTL:        255,
	}
	if c.Settings.SendReducedMessageHeader {
		h.Domain = ""
		h.Originator = ""
	}

	budget := c.Settings.QueueLength - HeaderSize
	batches := buildBatches(kvs, budget)

	var sentKeys []string
	for _, batch := range batches {
		buf := encodeBatch(h, batch)

		var datagrams [][]byte
		if len(buf) > c.Settings.MaxFragmentSize {
			frags, err := Fragment(h, buf[headerLenOf(h):], c.Settings.MaxFragmentSize, c.Settings.SendReducedMessageHeader)
			if err != nil {
				return fmt.Errorf("transport: fragment: %w", err)
			}
			datagrams = frags
			c.Diag.fragmentsSent.Add(float64(len(frags)))
		} else {
			datagrams = [][]byte{buf}
		}

		for _, dg := range datagrams {
			if c.SendBW.IsViolated(c.Settings.SendBandwidthLimit) || !c.SendBW.Allow(len(dg)) {
				c.Diag.dropped.WithLabelValues("bandwidth").Inc()
				continue
			}
			if err := write(dg); err != nil {
				return fmt.Errorf("transport: write: %w", err)
			}
			c.SendBW.Add(uint64(len(dg)))
			c.Diag.sent.Inc()
			if c.Settings.SlackTime > 0 {
				time.Sleep(c.Settings.SlackTime)
			}
		}
		for _, kv := range batch {
			sentKeys = append(sentKeys, kv.Key)
		}
	}

	for _, k := range sentKeys {
		c.Ctx.ResetModifiedKey(k)
	}
	return nil
}

func headerLenOf(h MessageHeader) int {
	if h.Domain == "" && h.Originator == "" {
		return ReducedHeaderSize
	}
	return HeaderSize
}

// HandleDatagram implements spec §4.5's receive pipeline steps 1-7.
// rebroadcast is called with a re-encoded (ttl-1) datagram when the
// message should be forwarded on; it may be nil for transports with no
// rebroadcast peer set.
func (c *Core) HandleDatagram(buf []byte, rebroadcast func([]byte) error) error {
	c.RecvBW.Add(uint64(len(buf)))
	c.Diag.received.Inc()

	h, off, err := DecodeHeader(buf)
	if err != nil {
		c.Diag.oversizeDatagrams.WithLabelValues("malformed-header").Inc()
		return nil
	}
	if h.Domain != "" && h.Domain != c.Settings.Domain {
		c.Diag.oversizeDatagrams.WithLabelValues("domain-mismatch").Inc()
		return nil
	}

	var body []byte
	if h.Type&FragmentBit != 0 {
		if len(buf) < off+FragmentHeaderExtra {
			c.Diag.oversizeDatagrams.WithLabelValues("malformed-fragment").Inc()
			return nil
		}
		idx := int(beUint32(buf[off:]))
		chunk := buf[off+FragmentHeaderExtra:]
		c.Diag.fragmentsReceived.Inc()
		complete, ok := c.Reassembler.Insert(h, idx, chunk)
		if !ok {
			return nil
		}
		body = complete
	} else {
		body = buf[off:]
	}

	var records []knowledge.KeyValue
	pos := 0
	for pos < len(body) {
		key, v, n, err := DecodeRecord(body[pos:])
		if err != nil {
			c.Diag.oversizeDatagrams.WithLabelValues("malformed-record").Inc()
			break
		}
		records = append(records, knowledge.KeyValue{Key: key, Record: knowledge.Record{Value: v, Clock: h.Clock, Quality: h.Quality, TOI: h.Timestamp}})
		pos += n
	}

	fctx := &FilterContext{Sender: h.Originator, Domain: h.Domain, Clock: h.Clock, Originator: h.Originator, TTL: h.TTL}
	records = c.Filters.Receive.Run(records, fctx)

	deadline := c.Settings.Deadline
	for _, kv := range records {
		if deadline > 0 {
			age := time.Now().Unix() - int64(kv.Record.TOI)
			if age > int64(deadline.Seconds()) {
				continue
			}
		}
		c.Ctx.ApplyRemoteWrite(kv.Key, h.Originator, kv.Record.Value, h.Clock, h.Quality, knowledge.UpdateSettings{SignalChanges: true})
	}

	if c.Settings.OnDataReceivedLogic != "" {
		// Evaluated by the caller (cmd/madara-agent wiring), which has
		// access to the karl package; Core itself does not import karl
		// to avoid a cycle (karl's Waiter already depends on a Sender
		// interface satisfied by UDPTransport and NATSTransport).
	}

	// Q2 resolution: ttl is decremented before the rebroadcast check; a
	// message rebroadcasts only while ttl > 0 before decrement, and is
	// sent on with ttl-1. ttl == 0 never rebroadcasts.
	if h.TTL > 0 && rebroadcast != nil {
		rbFctx := &FilterContext{Sender: h.Originator, Domain: h.Domain, Clock: h.Clock, Originator: h.Originator, TTL: h.TTL}
		rbRecords := c.Filters.Rebroadcast.Run(records, rbFctx)
		if len(rbRecords) > 0 {
			h.TTL--
			out := encodeBatch(h, rbRecords)
			if err := rebroadcast(out); err != nil {
				return fmt.Errorf("transport: rebroadcast: %w", err)
			}
			c.Diag.rebroadcasts.Inc()
		}
	}

	return nil
}
