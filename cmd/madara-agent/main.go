// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command madara-agent wires the Knowledge Context, Replication
// Transport and KaRL Expression Engine into one running process,
// grounded on cmd/cc-backend/main.go's flag-parsing, gops/godotenv and
// signal-handling shape.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	madaraconfig "github.com/jredmondson/madara-sub009/internal/config"
	"github.com/jredmondson/madara-sub009/internal/karl"
	"github.com/jredmondson/madara-sub009/internal/knowledge"
	"github.com/jredmondson/madara-sub009/internal/transport"
	madaralog "github.com/jredmondson/madara-sub009/pkg/log"
	madaranats "github.com/jredmondson/madara-sub009/pkg/nats"
)

func main() {
	var flagConfigFile, flagEnvFile, flagMetricsAddr, flagOnDataLogic string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "path to the madara-agent JSON configuration")
	flag.StringVar(&flagEnvFile, "env", "./.env", "path to an optional .env file of overrides")
	flag.StringVar(&flagMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. ':9090')")
	flag.StringVar(&flagOnDataLogic, "on-data-received-logic", "", "overrides transport.on-data-received-logic")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			madaralog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
		madaralog.Fatalf("parsing %q failed: %s", flagEnvFile, err.Error())
	}

	if raw, err := os.ReadFile(flagConfigFile); err != nil {
		if !os.IsNotExist(err) {
			madaralog.Fatalf("reading %q: %s", flagConfigFile, err.Error())
		}
	} else {
		if err := madaraconfig.Init(json.RawMessage(raw)); err != nil {
			madaralog.Fatalf("%s", err.Error())
		}
	}

	if flagOnDataLogic != "" {
		madaraconfig.Keys.Transport.OnDataReceivedLogic = flagOnDataLogic
	}

	opts := []knowledge.Option{}
	if madaraconfig.Keys.Knowledge.ExpressionCacheSize > 0 {
		opts = append(opts, knowledge.WithExpressionCacheSize(madaraconfig.Keys.Knowledge.ExpressionCacheSize))
	}
	ctx := knowledge.Open(opts...)
	defer ctx.Close()

	if madaraconfig.Keys.Knowledge.CheckpointDir != "" {
		interval, err := time.ParseDuration(madaraconfig.Keys.Knowledge.CheckpointInterval)
		if err != nil || interval <= 0 {
			interval = 5 * time.Minute
		}
		retain := madaraconfig.Keys.Knowledge.CheckpointRetain
		if retain <= 0 {
			retain = 3
		}
		ctx.StartRetention(madaraconfig.Keys.Knowledge.CheckpointDir, interval, retain)
	}

	settings := madaraconfig.Keys.Transport.Resolve()

	var sender karl.Sender
	var closeTransport func() error
	var registry *prometheus.Registry

	if settings.Type == transport.TypeRegistryClient || settings.Type == transport.TypeRegistryServer {
		madaranats.Keys = madaraconfig.Keys.Nats
		madaranats.Connect()
		client := madaranats.GetClient()
		if client == nil {
			madaralog.Fatal("transport: nats configured but connection failed, see prior warnings")
		}
		nt, err := transport.NewNATSTransport(ctx, settings, transport.FilterPipeline{}, client)
		if err != nil {
			madaralog.Fatalf("transport: nats setup: %s", err.Error())
		}
		if err := nt.Start(); err != nil {
			madaralog.Fatalf("transport: nats start: %s", err.Error())
		}
		sender = nt
		closeTransport = nt.Close
		registry = nt.Registry()
	} else {
		ut, err := transport.NewUDPTransport(ctx, settings, transport.FilterPipeline{})
		if err != nil {
			madaralog.Fatalf("transport: udp setup: %s", err.Error())
		}
		ut.Start()
		sender = ut
		closeTransport = ut.Close
		registry = ut.Registry()
	}

	if settings.OnDataReceivedLogic != "" {
		expr, err := karl.Compile(settings.OnDataReceivedLogic, ctx)
		if err != nil {
			madaralog.Fatalf("on_data_received_logic: compile: %s", err.Error())
		}
		waiter := karl.NewWaiter(expr, karl.WaitSettings{
			EvalSettings:  karl.DefaultEvalSettings(),
			PollFrequency: time.Second,
		})
		waiter.Sender = sender
		go func() {
			if _, err := waiter.Wait(ctx); err != nil {
				madaralog.Warnf("on_data_received_logic: wait: %s", err)
			}
		}()
	}

	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				madaralog.Warnf("metrics server: %s", err)
			}
		}()
	}

	madaralog.Infof("madara-agent running (domain=%s type=%v)", settings.Domain, settings.Type)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	madaralog.Info("madara-agent shutting down")
	if closeTransport != nil {
		if err := closeTransport(); err != nil {
			madaralog.Warnf("transport close: %s", err)
		}
	}
}
