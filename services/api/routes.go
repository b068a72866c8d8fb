// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/ArcadeVerse/services/telemetry"
)

// RegisterRoutes registers every endpoint on router.
//
// Endpoints:
//
//	GET  /health
//	GET  /metrics
//	GET  /v1/state
//	POST /v1/stability/repair
//	POST /v1/stability/damage
//	PUT  /v1/chaos
//	PUT  /v1/universe
//	POST /v1/triggers/:name
//	GET  /v1/stream                 (websocket)
//	GET  /v1/leaderboard
//	GET  /v1/achievements
//	GET  /v1/challenges
//	POST /v1/sessions
//	POST /v1/sessions/:id/events
//	POST /v1/sessions/:id/finish
//	POST /v1/repairs
//	POST /v1/characters
//
// gatherer may be nil, in which case /metrics is not registered. The
// state-changing endpoints share the limit set by SetMutationLimit.
func RegisterRoutes(router gin.IRouter, h *Handlers, gatherer prometheus.Gatherer) {
	router.GET("/health", h.HandleHealth)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/state", h.HandleState)
		v1.POST("/stability/repair", h.limitMutations, h.HandleRepair)
		v1.POST("/stability/damage", h.limitMutations, h.HandleDamage)
		v1.PUT("/chaos", h.limitMutations, h.HandleChaos)
		v1.PUT("/universe", h.limitMutations, h.HandleUniverse)
		v1.POST("/triggers/:name", h.limitMutations, h.HandleTrigger)
		v1.GET("/stream", h.HandleStream)

		v1.GET("/leaderboard", h.HandleLeaderboard)
		v1.GET("/achievements", h.HandleAchievements)
		v1.GET("/challenges", h.HandleChallenges)

		v1.POST("/sessions", h.limitMutations, h.HandleStartSession)
		v1.POST("/sessions/:id/events", h.limitMutations, h.HandleSessionEvent)
		v1.POST("/sessions/:id/finish", h.limitMutations, h.HandleFinishSession)
		v1.POST("/repairs", h.limitMutations, h.HandleRepairComplete)
		v1.POST("/characters", h.limitMutations, h.HandleSelectCharacter)
	}
}

// NewRouter returns a gin engine with recovery, tracing, request logging
// and every route registered.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), telemetry.GinTracing("arcadeverse/api"), requestLogger(h.logger))
	RegisterRoutes(router, h, gatherer)
	return router
}

// requestLogger logs one line per request. The websocket stream logs its
// own lifecycle and is skipped.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/v1/stream" {
			return
		}
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"trace_id", telemetry.TraceID(c.Request.Context()),
		)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server runs the HTTP API until its context ends.
type Server struct {
	srv             *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:          logger.With("component", "http"),
		shutdownTimeout: 5 * time.Second,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
