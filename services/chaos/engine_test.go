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
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// scriptedRandom replays fixed draws and returns 0 once exhausted.
type scriptedRandom struct {
	mu    sync.Mutex
	draws []float64
	used  int
}

func (s *scriptedRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used >= len(s.draws) {
		s.used++
		return 0
	}
	d := s.draws[s.used]
	s.used++
	return d
}

func (s *scriptedRandom) script(draws ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws = draws
	s.used = 0
}

func (s *scriptedRandom) consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

type harness struct {
	engine  *Engine
	clock   *ManualClock
	rng     *scriptedRandom
	metrics *Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   NewManualClock(epoch),
		rng:     &scriptedRandom{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	h.engine = New(DefaultConfig(),
		WithClock(h.clock),
		WithRandom(h.rng),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(h.metrics),
	)
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

// =============================================================================
// Stability and Derived Signals
// =============================================================================

func TestEngine_InitialSnapshot(t *testing.T) {
	h := newHarness(t)
	s := h.engine.Snapshot()

	assert.Equal(t, 85.0, s.Stability)
	assert.InDelta(t, 0.15, s.GlitchIntensity, 1e-9)
	assert.Equal(t, UniverseDefault, s.Universe)
	assert.False(t, s.ChaosMode)
	assert.False(t, s.PowerOutage)
	assert.False(t, s.Tornado)
	assert.False(t, s.ZeroGravity)
	assert.False(t, s.ContinuousGlitch)
	assert.False(t, s.LoggingOut)
	assert.Empty(t, s.ActiveEvents())
}

func TestEngine_DamageClampsAtZero(t *testing.T) {
	h := newHarness(t)
	h.engine.DamageStability(100)
	assert.Equal(t, 0.0, h.engine.Snapshot().Stability)
}

func TestEngine_RepairFromZero(t *testing.T) {
	h := newHarness(t)
	h.engine.SetStability(0)
	h.engine.RepairStability(15)
	assert.Equal(t, 15.0, h.engine.Snapshot().Stability)
}

func TestEngine_GlitchIntensityBounds(t *testing.T) {
	h := newHarness(t)

	h.engine.SetStability(100)
	assert.Equal(t, 0.0, h.engine.Snapshot().GlitchIntensity)

	h.engine.SetStability(0)
	assert.Equal(t, 1.0, h.engine.Snapshot().GlitchIntensity)

	h.engine.SetStability(100)
	h.engine.SetChaosMode(true)
	assert.Equal(t, 1.0, h.engine.Snapshot().GlitchIntensity, "chaos mode forces full intensity")
}

func TestEngine_UpdateStabilityIsRelative(t *testing.T) {
	h := newHarness(t)
	h.engine.UpdateStability(func(prev float64) float64 { return prev - 5 })
	h.engine.UpdateStability(func(prev float64) float64 { return prev / 2 })
	assert.Equal(t, 40.0, h.engine.Snapshot().Stability)
}

// =============================================================================
// Toggles and Timed Signals
// =============================================================================

func TestEngine_ToggleTwiceRestores(t *testing.T) {
	h := newHarness(t)

	h.engine.ToggleZeroGravity()
	assert.True(t, h.engine.Snapshot().ZeroGravity)
	h.engine.ToggleZeroGravity()
	assert.False(t, h.engine.Snapshot().ZeroGravity)

	h.engine.ToggleContinuousGlitch()
	h.engine.ToggleContinuousGlitch()
	assert.False(t, h.engine.Snapshot().ContinuousGlitch)
}

func TestEngine_PowerOutageExpires(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerPowerOutage(5000 * time.Millisecond)

	s := h.engine.Snapshot()
	require.True(t, s.PowerOutage)
	assert.Equal(t, epoch.Add(5*time.Second), s.PowerOutageUntil)

	h.clock.Advance(4999 * time.Millisecond)
	assert.True(t, h.engine.Snapshot().PowerOutage)

	h.clock.Advance(time.Millisecond)
	s = h.engine.Snapshot()
	assert.False(t, s.PowerOutage)
	assert.True(t, s.PowerOutageUntil.IsZero())
}

func TestEngine_PowerOutageDefaultDuration(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerPowerOutage(0)
	assert.Equal(t, epoch.Add(5*time.Second), h.engine.Snapshot().PowerOutageUntil)
}

func TestEngine_RetriggerRestartsDeadline(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerPowerOutage(5 * time.Second)
	h.clock.Advance(3 * time.Second)
	h.engine.TriggerPowerOutage(5 * time.Second)

	h.clock.Advance(3 * time.Second)
	assert.True(t, h.engine.Snapshot().PowerOutage, "first expiry must not clear a re-triggered outage")

	h.clock.Advance(2 * time.Second)
	assert.False(t, h.engine.Snapshot().PowerOutage)

	// A shorter re-trigger wins over a longer pending one.
	h.engine.TriggerPowerOutage(7 * time.Second)
	h.engine.TriggerPowerOutage(time.Second)
	h.clock.Advance(time.Second)
	assert.False(t, h.engine.Snapshot().PowerOutage)
}

func TestEngine_TornadoLastsTwoSeconds(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerTornado()
	assert.Equal(t, []string{"tornado"}, h.engine.Snapshot().ActiveEvents())

	h.clock.Advance(1999 * time.Millisecond)
	assert.True(t, h.engine.Snapshot().Tornado)
	h.clock.Advance(time.Millisecond)
	assert.False(t, h.engine.Snapshot().Tornado)
}

func TestEngine_ChaosModeOffKeepsToggles(t *testing.T) {
	h := newHarness(t)
	h.engine.SetChaosMode(true)
	h.engine.ToggleZeroGravity()
	h.engine.ToggleContinuousGlitch()
	h.engine.SetChaosMode(false)

	s := h.engine.Snapshot()
	assert.False(t, s.ChaosMode)
	assert.True(t, s.ZeroGravity)
	assert.True(t, s.ContinuousGlitch)
}

func TestEngine_SetUniverse(t *testing.T) {
	h := newHarness(t)
	h.engine.SetUniverse(UniverseHerosDuty)
	assert.Equal(t, UniverseHerosDuty, h.engine.Snapshot().Universe)

	h.engine.SetUniverse(Universe("PAC_MAN"))
	assert.Equal(t, UniverseDefault, h.engine.Snapshot().Universe)
}

// =============================================================================
// Logout
// =============================================================================

func TestEngine_ChaoticLogout(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerChaoticLogout()

	s := h.engine.Snapshot()
	assert.True(t, s.ChaosMode)
	assert.True(t, s.Tornado)
	assert.True(t, s.ZeroGravity)
	assert.True(t, s.ContinuousGlitch)
	assert.True(t, s.PowerOutage)
	assert.False(t, s.LoggingOut)

	h.clock.Advance(1999 * time.Millisecond)
	assert.False(t, h.engine.Snapshot().LoggingOut)

	h.clock.Advance(time.Millisecond)
	assert.True(t, h.engine.Snapshot().LoggingOut)

	h.engine.TriggerChaoticLogout()
	h.engine.SetChaosMode(false)
	h.clock.Advance(10 * time.Second)
	assert.True(t, h.engine.Snapshot().LoggingOut, "logout is one-way")
}

func TestEngine_ChaoticLogoutActivatesRatherThanToggles(t *testing.T) {
	h := newHarness(t)
	h.engine.ToggleZeroGravity()
	h.engine.TriggerChaoticLogout()
	assert.True(t, h.engine.Snapshot().ZeroGravity)
}

func TestEngine_RepeatedChaoticLogoutKeepsDeadline(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerChaoticLogout()
	h.clock.Advance(time.Second)
	h.engine.TriggerChaoticLogout()

	h.clock.Advance(time.Second)
	assert.True(t, h.engine.Snapshot().LoggingOut)
}

func TestEngine_LogoutSequenceIsImmediate(t *testing.T) {
	h := newHarness(t)
	h.engine.TriggerLogoutSequence()
	assert.True(t, h.engine.Snapshot().LoggingOut)
}

// =============================================================================
// Subscriptions and Lifecycle
// =============================================================================

func TestEngine_SubscriptionLatestWins(t *testing.T) {
	h := newHarness(t)
	sub := h.engine.Subscribe()
	defer sub.Close()

	first := <-sub.Updates()
	assert.Equal(t, 85.0, first.Stability)

	h.engine.DamageStability(10)
	h.engine.DamageStability(10)
	h.engine.DamageStability(10)

	latest := <-sub.Updates()
	assert.Equal(t, 55.0, latest.Stability)
	assert.Greater(t, latest.Version, first.Version)

	select {
	case <-sub.Updates():
		t.Fatal("stale snapshots must be dropped")
	default:
	}
}

func TestEngine_SubscriptionClose(t *testing.T) {
	h := newHarness(t)
	sub := h.engine.Subscribe()
	assert.Equal(t, 1, h.engine.Subscribers())

	sub.Close()
	sub.Close()
	assert.Zero(t, h.engine.Subscribers())

	<-sub.Updates() // buffered initial snapshot
	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestEngine_CloseCancelsTimers(t *testing.T) {
	h := newHarness(t)
	sub := h.engine.Subscribe()
	h.engine.TriggerChaoticLogout()
	require.Equal(t, 3, h.clock.PendingTimers())

	require.NoError(t, h.engine.Close())
	require.NoError(t, h.engine.Close())
	assert.Zero(t, h.clock.PendingTimers())

	for range sub.Updates() {
	}
	sub.Close()
	h.clock.Advance(time.Minute)
}

func TestEngine_UseAfterClosePanics(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Close())

	assert.PanicsWithValue(t, ErrNoSession, func() { h.engine.Snapshot() })
	assert.PanicsWithValue(t, ErrNoSession, func() { h.engine.TriggerTornado() })
	assert.PanicsWithValue(t, ErrNoSession, func() { h.engine.Subscribe() })
}

func TestContext_MustFromContext(t *testing.T) {
	assert.PanicsWithValue(t, ErrNoSession, func() { MustFromContext(context.Background()) })

	h := newHarness(t)
	ctx := WithEngine(context.Background(), h.engine)
	assert.Same(t, h.engine, MustFromContext(ctx))
}

func TestEngine_MetricsTrackSnapshot(t *testing.T) {
	h := newHarness(t)
	h.engine.DamageStability(35)
	h.engine.TriggerTornado()

	assert.Equal(t, 50.0, testutil.ToFloat64(h.metrics.stability))
	assert.InDelta(t, 0.5, testutil.ToFloat64(h.metrics.glitchIntensity), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("tornado", sourceTrigger)))
}

// TestEngine_ConcurrentMutations checks the clamp invariant holds when
// many goroutines mutate at once.
func TestEngine_ConcurrentMutations(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if (i+j)%2 == 0 {
					h.engine.RepairStability(7)
				} else {
					h.engine.DamageStability(9)
				}
				h.engine.ToggleZeroGravity()
			}
		}(i)
	}
	wg.Wait()

	s := h.engine.Snapshot()
	assert.GreaterOrEqual(t, s.Stability, MinStability)
	assert.LessOrEqual(t, s.Stability, MaxStability)
	assert.False(t, s.ZeroGravity, "an even number of toggles restores the original value")
}
