// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the madara-agent configuration,
// grounded on internal/config/config.go's global Keys-plus-Init
// pattern and pkg/nats/config.go's schema-string-plus-jsonschema
// validation.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jredmondson/madara-sub009/internal/transport"
	madaralog "github.com/jredmondson/madara-sub009/pkg/log"
	madaranats "github.com/jredmondson/madara-sub009/pkg/nats"
)

// KnowledgeConfig configures the Context (spec.md §4.1/§6).
type KnowledgeConfig struct {
	ExpressionCacheSize int    `json:"expression-cache-size"`
	CheckpointDir       string `json:"checkpoint-dir"`
	CheckpointInterval  string `json:"checkpoint-interval"`
	CheckpointRetain    int    `json:"checkpoint-retain"`
}

// TransportConfig mirrors transport.Settings in JSON-friendly form;
// Resolve converts it to the real Settings (durations/enums parsed).
type TransportConfig struct {
	Hosts                    []string `json:"hosts"`
	Type                     string   `json:"type"`
	Domain                   string   `json:"domain"`
	QueueLength              int      `json:"queue-length"`
	MaxFragmentSize          int      `json:"max-fragment-size"`
	Reliability              string   `json:"reliability"`
	ReadThreads              int      `json:"read-threads"`
	ResendAttempts           int      `json:"resend-attempts"`
	SlackTimeMS              int      `json:"slack-time-ms"`
	SendBandwidthLimit       int64    `json:"send-bandwidth-limit"`
	TotalBandwidthLimit      int64    `json:"total-bandwidth-limit"`
	DeadlineSeconds          int      `json:"deadline-seconds"`
	SendReducedMessageHeader bool     `json:"send-reduced-message-header"`
	OnDataReceivedLogic      string   `json:"on-data-received-logic"`
	DiagnosticPrefix         string   `json:"diagnostic-prefix"`
	MulticastTTL             int      `json:"multicast-ttl"`
}

// Config is the root madara-agent configuration document.
type Config struct {
	Knowledge KnowledgeConfig    `json:"knowledge"`
	Transport TransportConfig    `json:"transport"`
	Nats      madaranats.NatsConfig `json:"nats"`
}

// Keys holds the process-wide configuration loaded by Init, mirroring
// the teacher's package-level `Keys`/`programConfig` convention.
var Keys = Config{
	Knowledge: KnowledgeConfig{
		ExpressionCacheSize: 256,
		CheckpointInterval:  "5m",
		CheckpointRetain:    3,
	},
	Transport: TransportConfig{
		Type:            "udp",
		Domain:          "madara",
		QueueLength:     64 * 1024,
		MaxFragmentSize: 1400,
		ReadThreads:     1,
		ResendAttempts:  3,
	},
}

// ConfigSchema validates the top-level document shape; the nested
// "nats" object is validated again against madaranats.ConfigSchema when
// present, matching how the teacher's schema.Config composes
// sub-schemas for its own nested sections.
const ConfigSchema = `{
    "type": "object",
    "description": "madara-agent configuration.",
    "properties": {
        "knowledge": {
            "type": "object",
            "properties": {
                "expression-cache-size": {"type": "integer"},
                "checkpoint-dir": {"type": "string"},
                "checkpoint-interval": {"type": "string"},
                "checkpoint-retain": {"type": "integer"}
            }
        },
        "transport": {
            "type": "object",
            "properties": {
                "hosts": {"type": "array", "items": {"type": "string"}},
                "type": {"type": "string", "enum": ["udp", "broadcast", "multicast", "nats"]},
                "domain": {"type": "string"},
                "queue-length": {"type": "integer"},
                "max-fragment-size": {"type": "integer"},
                "reliability": {"type": "string", "enum": ["best-effort", "reliable"]},
                "read-threads": {"type": "integer"},
                "resend-attempts": {"type": "integer"},
                "slack-time-ms": {"type": "integer"},
                "send-bandwidth-limit": {"type": "integer"},
                "total-bandwidth-limit": {"type": "integer"},
                "deadline-seconds": {"type": "integer"},
                "send-reduced-message-header": {"type": "boolean"},
                "on-data-received-logic": {"type": "string"},
                "diagnostic-prefix": {"type": "string"},
                "multicast-ttl": {"type": "integer"}
            },
            "required": ["type", "domain"]
        },
        "nats": {"type": "object"}
    },
    "required": ["transport"]
}`

// Validate checks instance against ConfigSchema, the same
// compile-then-validate sequence as internal/config/validate.go.
func Validate(instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("madara-agent.schema.json", ConfigSchema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: decode for validation: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if doc, ok := v.(map[string]any); ok {
		if nats, ok := doc["nats"]; ok {
			nsch, err := jsonschema.CompileString("nats.schema.json", madaranats.ConfigSchema)
			if err != nil {
				return fmt.Errorf("config: compile nats schema: %w", err)
			}
			if err := nsch.Validate(nats); err != nil {
				return fmt.Errorf("config: nats: %w", err)
			}
		}
	}
	return nil
}

// Init validates and decodes rawConfig into Keys.
func Init(rawConfig json.RawMessage) error {
	if rawConfig == nil {
		return nil
	}
	if err := Validate(rawConfig); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	if Keys.Transport.Domain == "" {
		madaralog.Warn("config: transport.domain empty, defaulting to \"madara\"")
		Keys.Transport.Domain = "madara"
	}
	return nil
}

func parseTransportType(s string) transport.Type {
	switch s {
	case "broadcast":
		return transport.TypeBroadcast
	case "multicast":
		return transport.TypeMulticast
	case "nats":
		return transport.TypeRegistryClient
	default:
		return transport.TypeUDP
	}
}

func parseReliability(s string) transport.Reliability {
	if s == "reliable" {
		return transport.Reliable
	}
	return transport.BestEffort
}

// Resolve converts TransportConfig into transport.Settings, filling
// unset numeric fields from transport.DefaultSettings().
func (c TransportConfig) Resolve() transport.Settings {
	s := transport.DefaultSettings()
	if len(c.Hosts) > 0 {
		s.Hosts = c.Hosts
	}
	s.Type = parseTransportType(c.Type)
	if c.Domain != "" {
		s.Domain = c.Domain
	}
	if c.QueueLength > 0 {
		s.QueueLength = c.QueueLength
	}
	if c.MaxFragmentSize > 0 {
		s.MaxFragmentSize = c.MaxFragmentSize
	}
	s.Reliability = parseReliability(c.Reliability)
	if c.ReadThreads > 0 {
		s.ReadThreads = c.ReadThreads
	}
	if c.ResendAttempts > 0 {
		s.ResendAttempts = c.ResendAttempts
	}
	if c.SlackTimeMS > 0 {
		s.SlackTime = time.Duration(c.SlackTimeMS) * time.Millisecond
	}
	if c.SendBandwidthLimit != 0 {
		s.SendBandwidthLimit = c.SendBandwidthLimit
	}
	if c.TotalBandwidthLimit != 0 {
		s.TotalBandwidthLimit = c.TotalBandwidthLimit
	}
	if c.DeadlineSeconds > 0 {
		s.Deadline = time.Duration(c.DeadlineSeconds) * time.Second
	}
	s.SendReducedMessageHeader = c.SendReducedMessageHeader
	s.OnDataReceivedLogic = c.OnDataReceivedLogic
	if c.DiagnosticPrefix != "" {
		s.DiagnosticPrefix = c.DiagnosticPrefix
	}
	if c.MulticastTTL > 0 {
		s.MulticastTTL = c.MulticastTTL
	}
	return s
}
