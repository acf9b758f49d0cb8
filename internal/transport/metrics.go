// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// diagnostics holds the Prometheus counters spec §7.3 requires for
// data-plane anomalies ("counted in per-transport diagnostic records
// under a configurable prefix"), grounded on the Context's own private-
// registry-per-instance pattern in internal/knowledge/metrics.go.
type diagnostics struct {
	registry *prometheus.Registry

	oversizeDatagrams *prometheus.CounterVec
	sent              prometheus.Counter
	received          prometheus.Counter
	dropped           *prometheus.CounterVec
	fragmentsSent     prometheus.Counter
	fragmentsReceived prometheus.Counter
	rebroadcasts      prometheus.Counter
}

func newDiagnostics(prefix string) *diagnostics {
	if prefix == "" {
		prefix = "madara_transport"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &diagnostics{
		registry: reg,
		oversizeDatagrams: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_anomalies_total",
			Help: "Count of dropped data-plane anomalies by reason.",
		}, []string{"reason"}),
		sent:     f.NewCounter(prometheus.CounterOpts{Name: prefix + "_datagrams_sent_total"}),
		received: f.NewCounter(prometheus.CounterOpts{Name: prefix + "_datagrams_received_total"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_drops_total",
			Help: "Count of sends suppressed by scheduler or bandwidth policy.",
		}, []string{"reason"}),
		fragmentsSent:     f.NewCounter(prometheus.CounterOpts{Name: prefix + "_fragments_sent_total"}),
		fragmentsReceived: f.NewCounter(prometheus.CounterOpts{Name: prefix + "_fragments_received_total"}),
		rebroadcasts:      f.NewCounter(prometheus.CounterOpts{Name: prefix + "_rebroadcasts_total"}),
	}
}

// Registry exposes the private Prometheus registry for scraping.
func (d *diagnostics) Registry() *prometheus.Registry { return d.registry }
