// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package arcade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

const (
	chaosNoviceBelow   = 30.0
	chaosSurvivalBelow = 40.0
)

// ChaosWatcher turns the chaos signal stream into achievement and challenge
// progress: event onsets for glitch_survivor, time spent at low stability
// for chaos_novice and chaos_survival, time in chaos mode for
// extreme_chaos, and the logout sequence for logout_chaos.
type ChaosWatcher struct {
	reporter *Reporter
	clock    chaos.Clock
	logger   *slog.Logger

	seen   bool
	last   chaos.Snapshot
	lastAt time.Time

	below30 time.Duration
	below40 time.Duration
	inChaos time.Duration

	// whole seconds last written, to avoid a store write per snapshot
	wrote30, wrote40, wroteChaos int
}

// NewChaosWatcher returns a watcher feeding r. clock may be nil.
func NewChaosWatcher(r *Reporter, clock chaos.Clock) *ChaosWatcher {
	if clock == nil {
		clock = chaos.RealClock{}
	}
	return &ChaosWatcher{
		reporter: r,
		clock:    clock,
		logger:   r.logger.With("subsystem", "watcher"),
	}
}

// Run consumes engine snapshots until ctx ends or the engine closes.
func (w *ChaosWatcher) Run(ctx context.Context, e *chaos.Engine) error {
	sub := e.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := w.Observe(snap, w.clock.Now()); err != nil {
				w.logger.Warn("failed to record chaos progress", "error", err)
			}
		}
	}
}

// Observe accounts for the time since the previous snapshot under the
// previous snapshot's state, then reacts to transitions into snap.
func (w *ChaosWatcher) Observe(snap chaos.Snapshot, at time.Time) error {
	if !w.seen {
		w.seen = true
		w.last, w.lastAt = snap, at
		return w.onsets(chaos.Snapshot{}, snap)
	}

	if dt := at.Sub(w.lastAt); dt > 0 {
		if w.last.Stability < chaosNoviceBelow {
			w.below30 += dt
		}
		if w.last.Stability < chaosSurvivalBelow {
			w.below40 += dt
		}
		if w.last.ChaosMode {
			w.inChaos += dt
		}
	}
	prev := w.last
	w.last, w.lastAt = snap, at

	return errors.Join(w.onsets(prev, snap), w.flushDurations())
}

// onsets counts every signal that switched on between prev and next.
func (w *ChaosWatcher) onsets(prev, next chaos.Snapshot) error {
	a := w.reporter.progress.Achievements
	if a == nil {
		return nil
	}
	rising := 0
	for _, pair := range [][2]bool{
		{prev.Tornado, next.Tornado},
		{prev.ZeroGravity, next.ZeroGravity},
		{prev.ContinuousGlitch, next.ContinuousGlitch},
		{prev.PowerOutage, next.PowerOutage},
	} {
		if !pair[0] && pair[1] {
			rising++
		}
	}
	var errs []error
	if rising > 0 {
		_, err := a.Increment(persist.AchievementGlitchSurvivor, rising)
		errs = append(errs, err)
	}
	if !prev.LoggingOut && next.LoggingOut {
		_, err := a.Unlock(persist.AchievementLogoutChaos)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *ChaosWatcher) flushDurations() error {
	var errs []error
	if s := int(w.below30.Seconds()); s > w.wrote30 {
		w.wrote30 = s
		if a := w.reporter.progress.Achievements; a != nil {
			_, err := a.Raise(persist.AchievementChaosNovice, s)
			errs = append(errs, err)
		}
	}
	if w.reporter.progress.Challenges != nil {
		if s := int(w.below40.Seconds()); s > w.wrote40 {
			w.wrote40 = s
			errs = append(errs, w.reporter.advanceChallenge(persist.ChallengeChaosSurvival, s, false))
		}
		if s := int(w.inChaos.Seconds()); s > w.wroteChaos {
			w.wroteChaos = s
			errs = append(errs, w.reporter.advanceChallenge(persist.ChallengeExtremeChaos, s, false))
		}
	}
	return errors.Join(errs...)
}

// Totals returns the accumulated low-stability and chaos-mode durations.
func (w *ChaosWatcher) Totals() (below30, below40, inChaos time.Duration) {
	return w.below30, w.below40, w.inChaos
}
