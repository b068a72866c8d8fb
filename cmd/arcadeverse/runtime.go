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
	"errors"
	"fmt"

	"github.com/AleutianAI/ArcadeVerse/cmd/arcadeverse/config"
	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

// logRingSize is how many records the dashboard log panel can scroll.
const logRingSize = 64

// appRuntime bundles what commands build from the configuration: the
// logger, the progress store and the stores layered on it.
type appRuntime struct {
	cfg      config.ArcadeConfig
	logger   *logging.Logger
	ring     *logging.RingExporter
	store    persist.Store
	progress arcade.Progress
}

// newRuntime opens logging and storage. quiet silences the console log and
// keeps records in a ring for the dashboard instead.
func newRuntime(cfg config.ArcadeConfig, quiet bool) (*appRuntime, error) {
	rt := &appRuntime{cfg: cfg}
	lc := logging.Config{
		Level:   cfg.LogLevel(),
		LogDir:  cfg.Logging.Dir,
		Service: "arcadeverse",
		JSON:    cfg.Logging.JSON,
		Quiet:   quiet,
	}
	if quiet {
		rt.ring = logging.NewRingExporter(logRingSize)
		lc.Exporter = rt.ring
	}
	rt.logger = logging.New(lc)

	store, err := persist.Open(persist.StorageConfig{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		Logger: rt.logger.Slog(),
	})
	if err != nil {
		_ = rt.logger.Close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	rt.store = store

	log := rt.logger.Slog()
	rt.progress = arcade.Progress{
		Achievements: persist.NewAchievements(store, log),
		Challenges:   persist.NewChallenges(store, log),
		Leaderboard:  persist.NewLeaderboard(store, log, nil),
		Saves:        persist.NewSaveSlots(store, log),
	}
	return rt, nil
}

// Close closes storage, then the logger.
func (rt *appRuntime) Close() error {
	return errors.Join(rt.store.Close(), rt.logger.Close())
}

// newEngine builds a session engine from the configuration. The current
// save's stability, if any, seeds the session.
func (rt *appRuntime) newEngine(opts ...chaos.Option) *chaos.Engine {
	cfg := rt.cfg.EngineConfig()
	if save, ok := rt.progress.Saves.Current(); ok {
		cfg.InitialStability = save.Stability
	}

	base := []chaos.Option{chaos.WithLogger(rt.logger.Slog())}
	if seed := rt.cfg.Scheduler.Seed; seed != 0 {
		base = append(base, chaos.WithSeed(seed))
	}
	e := chaos.New(cfg, append(base, opts...)...)
	if u := rt.cfg.Universe(); u != chaos.UniverseDefault {
		e.SetUniverse(u)
	}
	return e
}

// saveSession writes the final stability into the current save, if any.
func (rt *appRuntime) saveSession(snap chaos.Snapshot) {
	if _, ok := rt.progress.Saves.Current(); !ok {
		return
	}
	err := rt.progress.Saves.Update(func(g *persist.GameSave) {
		g.Stability = snap.Stability
		g.ChaosLevel = snap.GlitchIntensity * 100
	})
	if err != nil {
		rt.logger.Warn("failed to save session", "error", err)
	}
}

// watchConfig applies hot-reloadable settings until ctx ends.
func (rt *appRuntime) watchConfig(ctx context.Context, e *chaos.Engine) error {
	return appLoader.Watch(ctx, rt.logger.Slog(), func(c config.ArcadeConfig) {
		rt.logger.SetLevel(c.LogLevel())
		if err := e.Scheduler().Retune(c.Scheduler.Chaos()); err != nil {
			rt.logger.Warn("scheduler retune rejected", "error", err)
		}
	})
}

// ignoreCanceled treats context cancellation as a clean stop.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
