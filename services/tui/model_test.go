// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T, logs *logging.RingExporter) (Model, *chaos.Engine, *chaos.ManualClock) {
	t.Helper()
	clock := chaos.NewManualClock(epoch)
	engine := chaos.New(chaos.DefaultConfig(),
		chaos.WithClock(clock),
		chaos.WithSeed(1),
		chaos.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	t.Cleanup(func() { _ = engine.Close() })
	return NewModel(engine, logs, Config{Seed: 7}), engine, clock
}

func keyPress(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyPress(k))
		m = next.(Model)
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

// =============================================================================
// Key Handling
// =============================================================================

func TestModel_RepairAndDamage(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)

	m, _ = press(t, m, "d")
	assert.Equal(t, 65.0, engine.Snapshot().Stability)

	m, _ = press(t, m, "d", "d", "d", "d")
	assert.Equal(t, 0.0, engine.Snapshot().Stability)

	_, _ = press(t, m, "r")
	assert.Equal(t, 20.0, engine.Snapshot().Stability)
}

func TestModel_ToggleChaos(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)

	m, _ = press(t, m, "c")
	assert.True(t, engine.Snapshot().ChaosMode)
	assert.Equal(t, 1.0, engine.Snapshot().GlitchIntensity)

	_, _ = press(t, m, "c")
	assert.False(t, engine.Snapshot().ChaosMode)
}

func TestModel_Triggers(t *testing.T) {
	m, engine, clock := newTestModel(t, nil)

	_, _ = press(t, m, "t", "z", "g", "p")
	s := engine.Snapshot()
	assert.True(t, s.Tornado)
	assert.True(t, s.ZeroGravity)
	assert.True(t, s.ContinuousGlitch)
	assert.True(t, s.PowerOutage)
	assert.True(t, s.PowerOutageUntil.Equal(epoch.Add(5*time.Second)))

	clock.Advance(5 * time.Second)
	s = engine.Snapshot()
	assert.False(t, s.Tornado)
	assert.False(t, s.PowerOutage)
	assert.True(t, s.ZeroGravity, "toggles stay until toggled again")
}

func TestModel_UniverseKeys(t *testing.T) {
	tests := []struct {
		key  string
		want chaos.Universe
	}{
		{"1", chaos.UniverseDefault},
		{"2", chaos.UniverseFixIt},
		{"3", chaos.UniverseSugarRush},
		{"4", chaos.UniverseHerosDuty},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, engine, _ := newTestModel(t, nil)
			if tt.want == chaos.UniverseDefault {
				engine.SetUniverse(chaos.UniverseFixIt)
			}
			_, _ = press(t, m, tt.key)
			assert.Equal(t, tt.want, engine.Snapshot().Universe)
		})
	}
}

func TestModel_ChaoticLogout(t *testing.T) {
	m, engine, clock := newTestModel(t, nil)

	_, _ = press(t, m, "L")
	s := engine.Snapshot()
	assert.True(t, s.ChaosMode)
	assert.True(t, s.Tornado)
	assert.False(t, s.LoggingOut)

	clock.Advance(2 * time.Second)
	assert.True(t, engine.Snapshot().LoggingOut)
}

func TestModel_HelpSwallowsKeys(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)

	m, _ = press(t, m, "?")
	assert.True(t, m.showHelp)

	m, _ = press(t, m, "d")
	assert.Equal(t, 85.0, engine.Snapshot().Stability)

	m, _ = press(t, m, "?")
	assert.False(t, m.showHelp)

	_, _ = press(t, m, "d")
	assert.Equal(t, 65.0, engine.Snapshot().Stability)
}

func TestModel_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			m, engine, _ := newTestModel(t, nil)
			m, cmd := press(t, m, k)
			assert.True(t, isQuit(cmd))
			assert.True(t, m.quitting)
			assert.Equal(t, 0, engine.Subscribers())
		})
	}
}

func TestModel_UnknownKeyIsIgnored(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)
	before := engine.Snapshot().Version

	_, cmd := press(t, m, "x")
	assert.Nil(t, cmd)
	assert.Equal(t, before, engine.Snapshot().Version)
}

func TestModel_KeyAfterEngineCloseQuits(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)
	require.NoError(t, engine.Close())

	var cmd tea.Cmd
	assert.NotPanics(t, func() { m, cmd = press(t, m, "r") })
	assert.True(t, isQuit(cmd))
	assert.True(t, m.quitting)
}

// =============================================================================
// Subscription
// =============================================================================

func TestModel_ReceivesSnapshots(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)

	msg := waitForSnapshot(m.sub)()
	require.IsType(t, SnapshotMsg{}, msg)
	assert.Equal(t, 85.0, chaos.Snapshot(msg.(SnapshotMsg)).Stability)

	engine.DamageStability(50)
	msg = waitForSnapshot(m.sub)()
	next, cmd := m.Update(msg)
	m = next.(Model)
	assert.Equal(t, 35.0, m.Snapshot().Stability)
	assert.NotNil(t, cmd)
}

func TestModel_ClosedSubscriptionQuits(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)
	<-m.sub.Updates()
	require.NoError(t, engine.Close())

	msg := waitForSnapshot(m.sub)()
	assert.Equal(t, ClosedMsg{}, msg)

	next, cmd := m.Update(msg)
	assert.True(t, next.(Model).quitting)
	assert.True(t, isQuit(cmd))
}

func TestModel_LoggingOutShowsTerminal(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)

	engine.TriggerLogoutSequence()
	next, cmd := m.Update(SnapshotMsg(engine.Snapshot()))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.loggedOut)
	assert.Contains(t, m.View(), "GAME OVER")
	assert.Contains(t, m.View(), "CONNECTION TERMINATED")

	// Keys other than quit are ignored on the terminal screen.
	m, _ = press(t, m, "d")
	assert.Equal(t, 85.0, engine.Snapshot().Stability)

	next, cmd = m.Update(quitMsg{})
	assert.True(t, next.(Model).quitting)
	assert.True(t, isQuit(cmd))
}

// =============================================================================
// Rendering
// =============================================================================

func TestModel_ViewReflectsSignals(t *testing.T) {
	m, engine, _ := newTestModel(t, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "no active events")
	assert.NotContains(t, view, "POWER OUTAGE")

	engine.TriggerPowerOutage(0)
	engine.TriggerTornado()
	next, _ = m.Update(SnapshotMsg(engine.Snapshot()))
	m = next.(Model)

	view = m.View()
	assert.Contains(t, view, "POWER OUTAGE")
	assert.NotContains(t, view, "no active events")
}

func TestModel_ViewShowsLogs(t *testing.T) {
	logs := logging.NewRingExporter(10)
	require.NoError(t, logs.Export(context.Background(), logging.LogEntry{
		Timestamp: epoch,
		Level:     logging.LevelInfo,
		Message:   "stability repaired",
	}))
	m, _, _ := newTestModel(t, logs)

	next, cmd := m.Update(frameMsg(epoch))
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, m.frame)
	assert.Contains(t, m.View(), "stability repaired")
}

func TestModel_NoLogPanelWithoutExporter(t *testing.T) {
	m, _, _ := newTestModel(t, nil)
	next, _ := m.Update(frameMsg(epoch))
	assert.NotContains(t, next.(Model).View(), "─ log ─")
}
