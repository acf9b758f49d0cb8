// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import "github.com/jredmondson/madara-sub009/internal/knowledge"

// FilterContext is the read-only side input a Filter may query (spec
// §4.6: "Filters see the full message header as a read-only side input
// and may set ttl on outgoing batches to control rebroadcast depth").
type FilterContext struct {
	Sender     string
	Domain     string
	Clock      uint64
	Originator string
	TTL        uint8
}

// Filter transforms a batch of records; it may mutate, drop, or add
// entries (spec §4.6: "a native callback, ... an aggregated updater
// ..., or ... a KaRL expression compiled against the Context").
type Filter func(records []knowledge.KeyValue, fctx *FilterContext) []knowledge.KeyValue

// Pipeline is an ordered, left-to-right fold of Filters (spec §4.6:
// "organized as three ordered pipelines (send, receive, rebroadcast),
// each pipeline applied as a left-to-right fold").
type Pipeline []Filter

// Run applies every filter in order, threading the output of one into
// the input of the next.
func (p Pipeline) Run(records []knowledge.KeyValue, fctx *FilterContext) []knowledge.KeyValue {
	for _, f := range p {
		records = f(records, fctx)
		if records == nil {
			return nil
		}
	}
	return records
}

// FilterPipeline bundles the three pipelines a Transport applies on
// send, receive and rebroadcast (spec §4.5/§4.6).
type FilterPipeline struct {
	Send       Pipeline
	Receive    Pipeline
	Rebroadcast Pipeline
}
