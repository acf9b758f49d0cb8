// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
	madaranats "github.com/jredmondson/madara-sub009/pkg/nats"
)

// NATSTransport wraps pkg/nats's singleton Connect/Subscribe/Publish
// client as a Replication Transport backend (TypeRegistryServer/
// TypeRegistryClient, spec §6), grounded directly on pkg/nats/client.go's
// Client. Subjects are `madara.<domain>.data` / `madara.<domain>.control`
// (SPEC_FULL.md §4.5); the same WireCodec-encoded payload used by
// UDPTransport is published as the message body, so conflict resolution,
// filters and fragmentation stay transport-agnostic.
type NATSTransport struct {
	core   *Core
	client *madaranats.Client

	dataSubject    string
	controlSubject string
}

// NewNATSTransport builds a transport over an already-configured client
// and derives the domain's data and control subjects. It neither
// connects nor subscribes; Start subscribes to the data subject.
func NewNATSTransport(ctx *knowledge.Context, settings Settings, filters FilterPipeline, client *madaranats.Client) (*NATSTransport, error) {
	if client == nil {
		return nil, fmt.Errorf("transport: nats client is required")
	}
	domain := settings.Domain
	if domain == "" {
		domain = "madara"
	}
	t := &NATSTransport{
		core:           NewCore(ctx, settings, filters),
		client:         client,
		dataSubject:    "madara." + domain + ".data",
		controlSubject: "madara." + domain + ".control",
	}
	return t, nil
}

// Start subscribes to the data subject; each message is handled through
// the same receive pipeline UDPTransport uses.
func (t *NATSTransport) Start() error {
	return t.client.Subscribe(t.dataSubject, func(subject string, data []byte) {
		if err := t.core.HandleDatagram(data, t.rebroadcast); err != nil {
			t.core.Ctx.Logger().Warnf("transport: nats handle message: %s", err)
		}
	})
}

func (t *NATSTransport) rebroadcast(buf []byte) error {
	return t.client.Publish(t.dataSubject, buf)
}

// SendModifieds implements karl.Sender.
func (t *NATSTransport) SendModifieds(ctx *knowledge.Context) error {
	return t.core.SendModifieds(func(buf []byte) error {
		return t.client.Publish(t.dataSubject, buf)
	})
}

// PublishControl sends a raw control-subject message (connection
// heartbeats, peer-discovery announcements) — a plain NATS publish, not
// WireCodec-framed, matching the control/data subject split of
// SPEC_FULL.md §4.5.
func (t *NATSTransport) PublishControl(data []byte) error {
	return t.client.Publish(t.controlSubject, data)
}

// Close does nothing and returns nil: the subscription made by Start is
// not removed, and the underlying nats.Conn stays owned by the caller,
// matching pkg/nats.Client's singleton lifecycle.
func (t *NATSTransport) Close() error {
	return nil
}

// Registry exposes the transport's private Prometheus registry for
// scraping (spec §7.3).
func (t *NATSTransport) Registry() *prometheus.Registry {
	return t.core.Registry()
}
