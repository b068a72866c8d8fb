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
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ErrNoSession is the panic value raised when an Engine is used after
// Close, or when MustFromContext finds no Engine.
var ErrNoSession = errors.New("chaos: engine used outside an active session")

// =============================================================================
// Configuration
// =============================================================================

// Config holds the session-level tuning of an Engine.
//
// # Fields
//
//   - InitialStability: Stability at session start. Default: 85.
//   - DefaultOutage: Power outage duration when none is given. Default: 5s.
//   - TornadoDuration: How long a tornado lasts. Default: 2s.
//   - LogoutDelay: Delay between chaotic logout and the logout flag. Default: 2s.
//   - Scheduler: Ambient event scheduler tuning.
type Config struct {
	InitialStability float64
	DefaultOutage    time.Duration
	TornadoDuration  time.Duration
	LogoutDelay      time.Duration
	Scheduler        SchedulerConfig
}

// DefaultConfig returns the stock session tuning.
func DefaultConfig() Config {
	return Config{
		InitialStability: DefaultStability,
		DefaultOutage:    5 * time.Second,
		TornadoDuration:  2 * time.Second,
		LogoutDelay:      2 * time.Second,
		Scheduler:        DefaultSchedulerConfig(),
	}
}

// Option customizes an Engine at construction.
type Option func(*engineOptions)

type engineOptions struct {
	clock   Clock
	rng     RandomSource
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// WithClock replaces the wall clock, typically with a ManualClock.
func WithClock(c Clock) Option {
	return func(o *engineOptions) { o.clock = c }
}

// WithRandom replaces the scheduler's random source.
func WithRandom(r RandomSource) Option {
	return func(o *engineOptions) { o.rng = r }
}

// WithSeed seeds the scheduler's random source for reproducible sessions.
func WithSeed(seed uint64) Option {
	return func(o *engineOptions) { o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithTracer sets the tracer used for scheduler tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = t }
}

// =============================================================================
// Engine
// =============================================================================

// timedSignal is the Inactive → Active → Inactive machine shared by the
// tornado and the power outage. gen invalidates timers that were replaced
// by a re-trigger but fired before Stop took effect.
type timedSignal struct {
	active bool
	until  time.Time
	timer  Timer
	gen    uint64
}

// Engine is the single owner of the session's chaos state.
//
// # Description
//
// The Engine holds the stability value, every derived signal and the
// ambient scheduler. It publishes a Snapshot to all subscriptions after
// each change. Construct one per session with New, call Start to begin
// ambient events, and Close to tear everything down.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations are serialized.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	clock   Clock
	logger  *slog.Logger
	metrics *Metrics

	stability        Stability
	chaosMode        bool
	universe         Universe
	tornado          timedSignal
	outage           timedSignal
	zeroGravity      bool
	continuousGlitch bool
	loggingOut       bool
	logoutTimer      Timer

	version uint64
	subs    map[*Subscription]struct{}
	closed  bool

	scheduler *Scheduler
}

// New constructs an Engine and its scheduler.
//
// # Inputs
//
//   - cfg: Session tuning. Zero durations fall back to DefaultConfig values.
//   - opts: Clock, random source, logger, metrics and tracer overrides.
//
// # Outputs
//
//   - *Engine: Ready for Subscribe and triggers. Call Start for ambient
//     events and Close when the session ends.
func New(cfg Config, opts ...Option) *Engine {
	o := engineOptions{
		clock:  RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		clock:     o.clock,
		logger:    o.logger.With("component", "chaos"),
		metrics:   o.metrics,
		stability: NewStability(cfg.InitialStability),
		universe:  UniverseDefault,
		subs:      make(map[*Subscription]struct{}),
	}
	e.scheduler = newScheduler(e, o.rng, o.tracer, cfg.Scheduler)
	e.metrics.observeSnapshot(e.snapshotLocked())
	return e
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultOutage <= 0 {
		c.DefaultOutage = def.DefaultOutage
	}
	if c.TornadoDuration <= 0 {
		c.TornadoDuration = def.TornadoDuration
	}
	if c.LogoutDelay <= 0 {
		c.LogoutDelay = def.LogoutDelay
	}
	c.Scheduler = c.Scheduler.withDefaults()
	return c
}

// Start begins ambient event scheduling.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.mustBeActiveLocked()
	e.mu.Unlock()
	return e.scheduler.Start(ctx)
}

// Scheduler returns the engine's ambient event scheduler.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// Close ends the session.
//
// # Description
//
// Marks the engine closed, stops every one-shot timer, closes every
// subscription and stops the scheduler, waiting for its loop to exit.
// Safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stopTimer(&e.tornado)
	stopTimer(&e.outage)
	if e.logoutTimer != nil {
		e.logoutTimer.Stop()
		e.logoutTimer = nil
	}
	for sub := range e.subs {
		sub.closeLocked()
	}
	clear(e.subs)
	e.metrics.setSubscribers(0)
	e.mu.Unlock()

	e.logger.Info("chaos session closed")
	return e.scheduler.Stop()
}

func stopTimer(sig *timedSignal) {
	if sig.timer != nil {
		sig.timer.Stop()
		sig.timer = nil
	}
	sig.gen++
}

// mustBeActiveLocked enforces fail-fast use of a closed engine.
func (e *Engine) mustBeActiveLocked() {
	if e.closed {
		panic(ErrNoSession)
	}
}

// =============================================================================
// Read Interface
// =============================================================================

// Snapshot returns the current state of every signal.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustBeActiveLocked()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Stability:        e.stability.Value(),
		ChaosMode:        e.chaosMode,
		GlitchIntensity:  GlitchIntensity(e.stability.Value(), e.chaosMode),
		PowerOutage:      e.outage.active,
		Tornado:          e.tornado.active,
		ZeroGravity:      e.zeroGravity,
		ContinuousGlitch: e.continuousGlitch,
		LoggingOut:       e.loggingOut,
		Universe:         e.universe,
		Version:          e.version,
	}
	if e.outage.active {
		s.PowerOutageUntil = e.outage.until
	}
	if e.tornado.active {
		s.TornadoUntil = e.tornado.until
	}
	return s
}

// Subscribe registers a new subscription.
//
// The current snapshot is already waiting on Updates when Subscribe
// returns. Call Close on the subscription when the consumer goes away.
func (e *Engine) Subscribe() *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustBeActiveLocked()

	sub := &Subscription{engine: e, ch: make(chan Snapshot, 1)}
	e.subs[sub] = struct{}{}
	sub.offerLocked(e.snapshotLocked())
	e.metrics.setSubscribers(len(e.subs))
	return sub
}

// Subscribers returns the number of live subscriptions.
func (e *Engine) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// =============================================================================
// Mutation Interface
// =============================================================================

// mutate runs fn under the lock and publishes the resulting snapshot.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustBeActiveLocked()
	fn()
	e.publishLocked()
}

func (e *Engine) publishLocked() {
	e.version++
	snap := e.snapshotLocked()
	for sub := range e.subs {
		sub.offerLocked(snap)
	}
	e.metrics.observeSnapshot(snap)
}

// RepairStability raises stability by amount, saturating at 100.
func (e *Engine) RepairStability(amount float64) {
	e.mutate(func() { e.stability.Repair(amount) })
}

// DamageStability lowers stability by amount, saturating at 0.
func (e *Engine) DamageStability(amount float64) {
	e.mutate(func() { e.stability.Damage(amount) })
}

// SetStability assigns stability directly, clamped to [0,100].
func (e *Engine) SetStability(v float64) {
	e.mutate(func() { e.stability.Set(v) })
}

// UpdateStability replaces stability with fn(previous), clamped.
//
// fn runs while the engine lock is held and must not call the Engine.
func (e *Engine) UpdateStability(fn func(prev float64) float64) {
	e.mutate(func() { e.stability.Update(fn) })
}

// SetChaosMode turns chaos mode on or off.
//
// Turning chaos mode off leaves zero-gravity and continuous glitch as
// they are.
func (e *Engine) SetChaosMode(on bool) {
	e.mutate(func() {
		if e.chaosMode != on {
			e.logger.Info("chaos mode changed", "enabled", on, "stability", e.stability.Value())
		}
		e.chaosMode = on
	})
}

// SetUniverse switches the active universe. Unknown values select
// UniverseDefault.
func (e *Engine) SetUniverse(u Universe) {
	if !u.Valid() {
		e.logger.Warn("unknown universe, using default", "universe", string(u))
		u = UniverseDefault
	}
	e.mutate(func() { e.universe = u })
}

// TriggerPowerOutage starts or restarts a power outage lasting d.
// A non-positive d uses the configured default outage.
func (e *Engine) TriggerPowerOutage(d time.Duration) {
	e.mutate(func() {
		e.triggerOutageLocked(d)
		e.metrics.recordTrigger(EventPowerOutage, sourceTrigger)
	})
}

// TriggerTornado starts or restarts the tornado.
func (e *Engine) TriggerTornado() {
	e.mutate(func() {
		e.triggerTornadoLocked()
		e.metrics.recordTrigger(EventTornado, sourceTrigger)
	})
}

// ToggleZeroGravity flips the zero-gravity signal.
func (e *Engine) ToggleZeroGravity() {
	e.mutate(func() {
		e.zeroGravity = !e.zeroGravity
		e.metrics.recordTrigger(EventZeroGravity, sourceTrigger)
	})
}

// ToggleContinuousGlitch flips the continuous-glitch signal.
func (e *Engine) ToggleContinuousGlitch() {
	e.mutate(func() {
		e.continuousGlitch = !e.continuousGlitch
		e.metrics.recordTrigger(EventContinuousGlitch, sourceTrigger)
	})
}

// TriggerLogoutSequence sets the one-way logout flag.
func (e *Engine) TriggerLogoutSequence() {
	e.mutate(e.logoutLocked)
}

// TriggerChaoticLogout escalates into full chaos and logs out after the
// configured delay.
//
// # Description
//
// Immediately sets chaos mode, triggers the tornado, activates
// zero-gravity and continuous glitch, and starts a default power outage.
// LogoutDelay later the logout flag is set. Repeated calls while a logout
// is pending do not move the deadline.
func (e *Engine) TriggerChaoticLogout() {
	e.mutate(func() {
		e.activateExtremeChaosLocked()
		if e.loggingOut || e.logoutTimer != nil {
			return
		}
		e.logger.Info("chaotic logout armed", "delay", e.cfg.LogoutDelay.String())
		e.logoutTimer = e.clock.AfterFunc(e.cfg.LogoutDelay, e.onLogoutTimer)
	})
}

func (e *Engine) onLogoutTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.logoutTimer = nil
	e.logoutLocked()
	e.publishLocked()
}

func (e *Engine) logoutLocked() {
	if !e.loggingOut {
		e.logger.Info("logout sequence started")
	}
	e.loggingOut = true
}

// activateExtremeChaosLocked drives every signal into its active state.
// It is shared by chaotic logout and scheduler escalation.
func (e *Engine) activateExtremeChaosLocked() {
	e.chaosMode = true
	e.triggerTornadoLocked()
	e.zeroGravity = true
	e.continuousGlitch = true
	e.triggerOutageLocked(0)
}

func (e *Engine) triggerTornadoLocked() {
	e.armLocked(&e.tornado, e.cfg.TornadoDuration)
}

func (e *Engine) triggerOutageLocked(d time.Duration) {
	if d <= 0 {
		d = e.cfg.DefaultOutage
	}
	e.armLocked(&e.outage, d)
}

// armLocked activates sig until now+d, replacing any pending expiry.
func (e *Engine) armLocked(sig *timedSignal, d time.Duration) {
	if sig.timer != nil {
		sig.timer.Stop()
	}
	sig.gen++
	gen := sig.gen
	sig.active = true
	sig.until = e.clock.Now().Add(d)
	sig.timer = e.clock.AfterFunc(d, func() { e.expire(sig, gen) })
}

func (e *Engine) expire(sig *timedSignal, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || sig.gen != gen || !sig.active {
		return
	}
	sig.active = false
	sig.until = time.Time{}
	sig.timer = nil
	e.publishLocked()
}

// =============================================================================
// Subscription
// =============================================================================

// Subscription delivers snapshots from one Engine to one consumer.
//
// # Description
//
// Updates has a buffer of one. A newer snapshot replaces an unread older
// one, so a slow consumer always sees the latest state and never blocks
// the engine. The channel is closed by Close or when the engine closes.
type Subscription struct {
	engine *Engine
	ch     chan Snapshot
	closed bool // guarded by engine.mu
}

// Updates returns the snapshot channel.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

// Close detaches the subscription. Safe to call multiple times, including
// after the engine has closed.
func (s *Subscription) Close() {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return
	}
	delete(e.subs, s)
	s.closeLocked()
	e.metrics.setSubscribers(len(e.subs))
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// offerLocked replaces any unread snapshot with snap. Only the engine sends
// on ch and it does so under its lock, so the send after the drain cannot
// block.
func (s *Subscription) offerLocked(snap Snapshot) {
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}
