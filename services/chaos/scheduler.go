// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chaos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEscalationThreshold is the stability below which a calm session
// may spontaneously escalate into full chaos.
const DefaultEscalationThreshold = 15.0

// =============================================================================
// Scheduler Configuration
// =============================================================================

// SchedulerConfig holds the tuning of the ambient event scheduler.
//
// # Description
//
// Default values are provided via DefaultSchedulerConfig(). New replaces
// an entirely zero config with the defaults and otherwise fills only
// zero intervals, outage range and event table, which Retune rejects. A
// zero Decay, EscalationThreshold or EscalationChance is kept and
// switches that behavior off, the same as it does through Retune.
//
// # Fields
//
//   - CalmInterval: Tick period while chaos mode is off. Default: 3s.
//   - ChaosInterval: Tick period while chaos mode is on. Default: 1s.
//   - Decay: Stability lost per tick while chaos mode is on. Default: 0.5.
//   - EscalationThreshold: Stability below which escalation is possible. Default: 15.
//   - EscalationChance: Per-tick chance of escalation below the threshold. Default: 0.05.
//   - OutageMin: Shortest scheduler-fired outage. Default: 3s.
//   - OutageSpread: Random extra outage length. Default: 4s.
//   - Events: Event probability table. Default: DefaultEventTable().
type SchedulerConfig struct {
	CalmInterval        time.Duration
	ChaosInterval       time.Duration
	Decay               float64
	EscalationThreshold float64
	EscalationChance    float64
	OutageMin           time.Duration
	OutageSpread        time.Duration
	Events              EventTable
}

// DefaultSchedulerConfig returns the stock scheduler tuning.
//
// # Examples
//
//	cfg := chaos.DefaultSchedulerConfig()
//	cfg.CalmInterval = 5 * time.Second
//	if err := engine.Scheduler().Retune(cfg); err != nil {
//	    return err
//	}
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CalmInterval:        3 * time.Second,
		ChaosInterval:       1 * time.Second,
		Decay:               0.5,
		EscalationThreshold: DefaultEscalationThreshold,
		EscalationChance:    0.05,
		OutageMin:           3 * time.Second,
		OutageSpread:        4 * time.Second,
		Events:              DefaultEventTable(),
	}
}

func (c SchedulerConfig) isZero() bool {
	return c.CalmInterval == 0 && c.ChaosInterval == 0 && c.Decay == 0 &&
		c.EscalationThreshold == 0 && c.EscalationChance == 0 &&
		c.OutageMin == 0 && c.OutageSpread == 0 && c.Events == nil
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	def := DefaultSchedulerConfig()
	if c.isZero() {
		return def
	}
	if c.CalmInterval <= 0 {
		c.CalmInterval = def.CalmInterval
	}
	if c.ChaosInterval <= 0 {
		c.ChaosInterval = def.ChaosInterval
	}
	if c.Decay < 0 {
		c.Decay = def.Decay
	}
	if c.EscalationThreshold < 0 {
		c.EscalationThreshold = def.EscalationThreshold
	}
	if c.EscalationChance < 0 {
		c.EscalationChance = def.EscalationChance
	}
	if c.OutageMin <= 0 {
		c.OutageMin = def.OutageMin
	}
	if c.OutageSpread < 0 {
		c.OutageSpread = def.OutageSpread
	}
	if c.Events == nil {
		c.Events = def.Events
	}
	return c
}

// Validate checks the tuning for values the scheduler cannot run with.
func (c SchedulerConfig) Validate() error {
	if c.CalmInterval <= 0 || c.ChaosInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive (calm=%s, chaos=%s)",
			c.CalmInterval, c.ChaosInterval)
	}
	if c.Decay < 0 {
		return fmt.Errorf("decay must be non-negative, got %.2f", c.Decay)
	}
	if c.EscalationChance < 0 || c.EscalationChance > 1 {
		return fmt.Errorf("escalation chance must be in [0,1], got %.3f", c.EscalationChance)
	}
	if c.OutageMin <= 0 || c.OutageSpread < 0 {
		return fmt.Errorf("outage range invalid (min=%s, spread=%s)", c.OutageMin, c.OutageSpread)
	}
	return c.Events.Validate()
}

// Interval returns the tick period for the given chaos mode.
func (c SchedulerConfig) Interval(chaosMode bool) time.Duration {
	if chaosMode {
		return c.ChaosInterval
	}
	return c.CalmInterval
}

// =============================================================================
// Tick Result
// =============================================================================

// TickResult records everything one scheduler tick decided.
//
// Draw fields are only meaningful when the matching step ran: EventDraw
// when Fired, OutageDuration when Event is EventPowerOutage, and
// EscalationDraw when EscalationChecked.
type TickResult struct {
	At                time.Time
	StartStability    float64
	ChaosMode         bool
	Roll              float64
	Fired             bool
	EventDraw         float64
	Event             EventKind
	OutageDuration    time.Duration
	Decayed           bool
	EscalationChecked bool
	EscalationDraw    float64
	Escalated         bool
	EndStability      float64
}

// applyTick runs one scheduler tick as a single atomic mutation.
//
// # Description
//
// The chaos mode and stability are captured once at the start and every
// step decides from those values:
//
//  1. roll = 100·draw; if roll > stability an event is drawn and dispatched.
//  2. if chaos mode was on, stability decays.
//  3. if stability was below the threshold and chaos mode was off, an
//     escalation draw may activate extreme chaos.
//
// Draws are consumed in the order roll, event, outage duration, escalation.
// Exactly one snapshot is published.
//
// # Outputs
//
//   - TickResult: What happened.
//   - bool: False if the engine is closed and nothing ran.
func (e *Engine) applyTick(rng RandomSource, cfg SchedulerConfig) (TickResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return TickResult{}, false
	}

	stability := e.stability.Value()
	chaosMode := e.chaosMode
	res := TickResult{
		At:             e.clock.Now(),
		StartStability: stability,
		ChaosMode:      chaosMode,
		Event:          EventNone,
	}

	res.Roll = rng.Float64() * 100
	if res.Roll > stability {
		res.Fired = true
		res.EventDraw = rng.Float64()
		res.Event = cfg.Events.Pick(res.EventDraw)
		switch res.Event {
		case EventTornado:
			e.triggerTornadoLocked()
		case EventZeroGravity:
			e.zeroGravity = !e.zeroGravity
		case EventContinuousGlitch:
			e.continuousGlitch = !e.continuousGlitch
		case EventPowerOutage:
			res.OutageDuration = cfg.OutageMin + time.Duration(rng.Float64()*float64(cfg.OutageSpread))
			e.triggerOutageLocked(res.OutageDuration)
		}
		if res.Event != EventNone {
			e.metrics.recordTrigger(res.Event, sourceScheduler)
		}
	}

	if chaosMode {
		e.stability.Damage(cfg.Decay)
		res.Decayed = true
	}

	if stability < cfg.EscalationThreshold && !chaosMode {
		res.EscalationChecked = true
		res.EscalationDraw = rng.Float64()
		if res.EscalationDraw > 1-cfg.EscalationChance {
			e.activateExtremeChaosLocked()
			res.Escalated = true
		}
	}

	res.EndStability = e.stability.Value()
	e.publishLocked()
	return res, true
}

// =============================================================================
// Scheduler
// =============================================================================

const (
	sourceScheduler = "scheduler"
	sourceTrigger   = "trigger"
)

// Scheduler fires ambient chaos events on a cadence tied to chaos mode.
//
// # Description
//
// Uses the ticker + done channel pattern. The loop subscribes to its
// Engine and resets the ticker whenever chaos mode flips, so the period
// is 1s in chaos mode and 3s otherwise under the default tuning.
//
// # Thread Safety
//
// All public methods are thread-safe. Ticks run under the engine lock, which
// also serializes use of the random source.
type Scheduler struct {
	engine *Engine
	rng    RandomSource
	tracer trace.Tracer

	mu      sync.Mutex
	config  SchedulerConfig
	running bool
	done    chan struct{}
	exited  chan struct{}
	retune  chan struct{}
}

func newScheduler(e *Engine, rng RandomSource, tracer trace.Tracer, cfg SchedulerConfig) *Scheduler {
	if tracer == nil {
		tracer = otel.Tracer("arcadeverse/chaos")
	}
	return &Scheduler{
		engine: e,
		rng:    rng,
		tracer: tracer,
		config: cfg,
		retune: make(chan struct{}, 1),
	}
}

// Config returns the current tuning.
func (s *Scheduler) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins the background tick loop.
//
// # Inputs
//
//   - ctx: When cancelled, the loop exits.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	sub := s.engine.Subscribe()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		sub.Close()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	cfg := s.config
	s.mu.Unlock()

	s.engine.logger.Info("chaos scheduler starting",
		"calm_interval", cfg.CalmInterval.String(),
		"chaos_interval", cfg.ChaosInterval.String(),
	)

	go s.runLoop(ctx, sub, s.done, s.exited)
	return nil
}

// Stop signals the loop to exit and waits until it has. Safe to call
// multiple times.
//
// Stop must not be called while holding the engine lock.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	s.running = false
	exited := s.exited
	s.mu.Unlock()

	<-exited
	s.engine.logger.Info("chaos scheduler stopped")
	return nil
}

// Retune replaces the tuning and restarts the ticker with the new period.
func (s *Scheduler) Retune(cfg SchedulerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	select {
	case s.retune <- struct{}{}:
	default:
	}
	return nil
}

// Tick runs one tick immediately, outside the cadence.
//
// # Outputs
//
//   - TickResult: What the tick decided.
//   - bool: False if the engine is closed.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, bool) {
	return s.tick(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context, sub *Subscription, done, exited chan struct{}) {
	defer close(exited)
	defer sub.Close()

	chaosMode := false
	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			return
		}
		chaosMode = snap.ChaosMode
	default:
	}

	ticker := s.engine.clock.NewTicker(s.Config().Interval(chaosMode))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.engine.logger.Info("chaos scheduler stopped: context cancelled")
			return
		case <-done:
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if snap.ChaosMode != chaosMode {
				chaosMode = snap.ChaosMode
				ticker.Reset(s.Config().Interval(chaosMode))
			}
		case <-s.retune:
			ticker.Reset(s.Config().Interval(chaosMode))
		case <-ticker.C():
			if _, ok := s.tick(ctx); !ok {
				return
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) (TickResult, bool) {
	ctx, span := s.tracer.Start(ctx, "chaos.tick")
	defer span.End()

	cfg := s.Config()
	start := time.Now()
	res, ok := s.engine.applyTick(s.rng, cfg)
	if !ok {
		span.SetStatus(codes.Error, ErrNoSession.Error())
		return res, false
	}
	s.engine.metrics.recordTick(res, time.Since(start))

	span.SetAttributes(
		attribute.Float64("chaos.stability.start", res.StartStability),
		attribute.Float64("chaos.stability.end", res.EndStability),
		attribute.Bool("chaos.mode", res.ChaosMode),
		attribute.Float64("chaos.roll", res.Roll),
		attribute.String("chaos.event", res.Event.String()),
		attribute.Bool("chaos.escalated", res.Escalated),
	)

	log := s.engine.logger
	switch {
	case res.Escalated:
		log.WarnContext(ctx, "stability critical, escalating to extreme chaos",
			"stability", res.StartStability,
			"draw", res.EscalationDraw,
		)
	case res.Event != EventNone:
		log.InfoContext(ctx, "ambient chaos event",
			"event", res.Event.String(),
			"roll", res.Roll,
			"stability", res.StartStability,
			"outage", res.OutageDuration.String(),
		)
	default:
		log.DebugContext(ctx, "chaos tick",
			"roll", res.Roll,
			"stability", res.EndStability,
			"chaos_mode", res.ChaosMode,
		)
	}
	return res, true
}
