// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// contextMetrics are the Context-local counters/gauges, grounded on
// friggdb/pool's promauto.NewGauge package-var pattern
// (_examples/grafana-tempo/friggdb/pool/pool.go) but registered against
// a private prometheus.Registry per Context rather than the global
// DefaultRegisterer, since a process may open more than one Context
// (tests routinely do) and the default registry panics on duplicate
// registration.
type contextMetrics struct {
	registry       *prometheus.Registry
	recordsCreated prometheus.Counter
	writesAccepted prometheus.Counter
	writesRejected *prometheus.CounterVec
	broadcasts     prometheus.Counter
}

func newContextMetrics() *contextMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &contextMetrics{
		registry: reg,
		recordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "madara",
			Subsystem: "knowledge",
			Name:      "records_created_total",
			Help:      "Number of distinct keys ever created in this context.",
		}),
		writesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "madara",
			Subsystem: "knowledge",
			Name:      "writes_accepted_total",
			Help:      "Writes (local or remote) accepted by the conflict rule.",
		}),
		writesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "madara",
			Subsystem: "knowledge",
			Name:      "writes_rejected_total",
			Help:      "Writes rejected by the conflict rule, by reason.",
		}, []string{"reason"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "madara",
			Subsystem: "knowledge",
			Name:      "change_broadcasts_total",
			Help:      "Times WaitForChange waiters were signaled.",
		}),
	}
}

// Registry exposes the Context's private metrics registry so a caller
// (cmd/madara-agent) can fold it into a process-wide /metrics handler.
func (c *Context) Registry() *prometheus.Registry {
	return c.metrics.registry
}
