// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/services/api"
	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/telemetry"
)

// runServe exposes one session over HTTP until interrupted.
func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(appConfig, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger.Slog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = api.Version
	tc.TraceExporter = appConfig.Telemetry.TraceExporter
	tc.OTLPEndpoint = appConfig.Telemetry.OTLPEndpoint
	tc.OTLPInsecure = appConfig.Telemetry.OTLPInsecure
	tc.Output = os.Stderr
	shutdown, err := telemetry.Init(ctx, tc)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine := rt.newEngine(chaos.WithMetrics(chaos.NewMetrics(registry)))
	defer engine.Close()
	reporter := arcade.NewReporter(engine, rt.progress, logger)
	watcher := arcade.NewChaosWatcher(reporter, nil)

	if rt.logger.Level() != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := api.NewHandlers(engine, rt.progress, reporter, logger)
	handlers.SetMutationLimit(appConfig.Server.MutationRate, appConfig.Server.MutationBurst)
	addr := appConfig.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	server := api.NewServer(addr, api.NewRouter(handlers, registry), logger)

	if err := engine.Start(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(watcher.Run(gctx, engine)) })
	g.Go(func() error { return rt.watchConfig(gctx, engine) })
	err = g.Wait()

	rt.saveSession(engine.Snapshot())
	return err
}
