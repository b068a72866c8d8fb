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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/tui"
)

// runPlay opens the dashboard on a live session. The session ends when the
// dashboard quits, after which the final stability is saved.
func runPlay(cmd *cobra.Command, args []string) error {
	if !ux.IsInteractive() {
		return errors.New("play needs an interactive terminal; use `arcadeverse watch` instead")
	}

	rt, err := newRuntime(appConfig, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := rt.newEngine()
	defer engine.Close()
	reporter := arcade.NewReporter(engine, rt.progress, rt.logger.Slog())
	watcher := arcade.NewChaosWatcher(reporter, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := engine.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(watcher.Run(gctx, engine)) })
	g.Go(func() error { return rt.watchConfig(gctx, engine) })
	g.Go(func() error {
		defer stop()
		return tui.Run(gctx, engine, rt.ring, tui.Config{Seed: appConfig.Scheduler.Seed})
	})
	err = g.Wait()

	rt.saveSession(engine.Snapshot())
	return err
}

// runWatch prints one line per snapshot until interrupted, the --for
// duration passes or the session logs out.
func runWatch(cmd *cobra.Command, args []string) error {
	var limit time.Duration
	if watchFor != "" {
		d, err := time.ParseDuration(watchFor)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --for %q: want a positive duration", watchFor)
		}
		limit = d
	}

	rt, err := newRuntime(appConfig, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := rt.newEngine()
	defer engine.Close()
	reporter := arcade.NewReporter(engine, rt.progress, rt.logger.Slog())
	watcher := arcade.NewChaosWatcher(reporter, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(watcher.Run(gctx, engine)) })
	g.Go(func() error { return rt.watchConfig(gctx, engine) })
	g.Go(func() error {
		defer stop()
		return printSnapshots(gctx, engine, cmd.OutOrStdout(), watchJSON)
	})
	err = g.Wait()

	rt.saveSession(engine.Snapshot())
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// printSnapshots writes every snapshot to w until ctx ends or the session
// logs out.
func printSnapshots(ctx context.Context, e *chaos.Engine, w io.Writer, asJSON bool) error {
	sub := e.Subscribe()
	defer sub.Close()

	enc := json.NewEncoder(w)
	mode := ux.GetMode()
	for {
		select {
		case <-ctx.Done():
			return ignoreCanceled(ctx.Err())
		case snap, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if asJSON {
				if err := enc.Encode(snap); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(w, formatSnapshot(snap, mode))
			}
			if snap.LoggingOut {
				return nil
			}
		}
	}
}

// formatSnapshot renders one status line.
func formatSnapshot(s chaos.Snapshot, mode ux.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%-4d %s", s.Version, ux.Meter(s.Stability, chaos.MaxStability, 20, mode))
	fmt.Fprintf(&b, "  glitch=%.2f  %s", s.GlitchIntensity, s.Universe)
	if s.ChaosMode {
		b.WriteString("  CHAOS")
	}
	if events := s.ActiveEvents(); len(events) > 0 {
		b.WriteString("  [" + strings.Join(events, ",") + "]")
	}
	if s.LoggingOut {
		b.WriteString("  LOGGING OUT")
	}
	return b.String()
}
