// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui renders a chaos session as a live terminal dashboard.
//
// # Description
//
// The dashboard subscribes to a chaos.Engine and redraws on every
// snapshot. Keys map directly onto engine mutations and triggers, and the
// frame itself reacts to the active signals: text glitches as stability
// falls, the screen dims during a power outage, lines swirl while a
// tornado runs, buttons drift in zero gravity and static rolls during a
// continuous glitch. Once the session logs out the dashboard shows a
// terminal screen and quits.
//
// # Thread Safety
//
// The model is used from the bubbletea event loop only. Engine calls are
// safe from any goroutine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
)

// =============================================================================
// Messages
// =============================================================================

// SnapshotMsg carries a snapshot published by the engine.
type SnapshotMsg chaos.Snapshot

// ClosedMsg reports that the engine closed the subscription.
type ClosedMsg struct{}

type frameMsg time.Time

type quitMsg struct{}

// =============================================================================
// Config
// =============================================================================

// Config configures the dashboard.
type Config struct {
	// RepairAmount is applied by the repair key (default: 20).
	RepairAmount float64

	// DamageAmount is applied by the damage key (default: 20).
	DamageAmount float64

	// FrameInterval paces the animations (default: 120ms).
	FrameInterval time.Duration

	// LogoutQuitDelay is how long the terminal screen shows before the
	// program exits (default: 1.5s).
	LogoutQuitDelay time.Duration

	// LogLines is the height of the log panel (default: 5). The panel is
	// hidden when no log exporter is given.
	LogLines int

	// Seed seeds the glitch renderer. 0 picks a random seed.
	Seed uint64
}

// DefaultConfig returns the stock dashboard settings.
func DefaultConfig() Config {
	return Config{
		RepairAmount:    20,
		DamageAmount:    20,
		FrameInterval:   120 * time.Millisecond,
		LogoutQuitDelay: 1500 * time.Millisecond,
		LogLines:        5,
	}
}

// =============================================================================
// Model
// =============================================================================

// Model is the bubbletea model for the chaos dashboard.
type Model struct {
	config Config
	engine *chaos.Engine
	sub    *chaos.Subscription
	logs   *logging.RingExporter

	snap  chaos.Snapshot
	frame int
	rng   *rand.Rand

	keys    keyMap
	help    help.Model
	bar     progress.Model
	logView viewport.Model

	width     int
	height    int
	showHelp  bool
	loggedOut bool
	quitting  bool
}

// NewModel subscribes to engine and returns a ready model. logs may be nil,
// which hides the log panel.
func NewModel(engine *chaos.Engine, logs *logging.RingExporter, config Config) Model {
	def := DefaultConfig()
	if config.RepairAmount <= 0 {
		config.RepairAmount = def.RepairAmount
	}
	if config.DamageAmount <= 0 {
		config.DamageAmount = def.DamageAmount
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = def.FrameInterval
	}
	if config.LogoutQuitDelay <= 0 {
		config.LogoutQuitDelay = def.LogoutQuitDelay
	}
	if config.LogLines <= 0 {
		config.LogLines = def.LogLines
	}
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if logs == nil {
		config.LogLines = 0
	}

	m := Model{
		config:  config,
		engine:  engine,
		sub:     engine.Subscribe(),
		logs:    logs,
		snap:    engine.Snapshot(),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		keys:    defaultKeyMap(),
		help:    help.New(),
		logView: viewport.New(60, max(config.LogLines, 1)),
		width:   80,
	}
	m.bar = m.newBar()
	return m
}

// Snapshot returns the last snapshot the model rendered.
func (m Model) Snapshot() chaos.Snapshot { return m.snap }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.sub), m.nextFrame())
}

func waitForSnapshot(sub *chaos.Subscription) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub.Updates()
		if !ok {
			return ClosedMsg{}
		}
		return SnapshotMsg(snap)
	}
}

func (m Model) nextFrame() tea.Cmd {
	return tea.Tick(m.config.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.logView.Width = max(msg.Width-4, 20)
		m.bar = m.newBar()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		prev := m.snap
		m.snap = chaos.Snapshot(msg)
		if m.snap.Stability != prev.Stability {
			m.bar = m.newBar()
		}
		cmds := []tea.Cmd{waitForSnapshot(m.sub)}
		if m.snap.LoggingOut && !m.loggedOut {
			m.loggedOut = true
			cmds = append(cmds, tea.Tick(m.config.LogoutQuitDelay, func(time.Time) tea.Msg { return quitMsg{} }))
		}
		return m, tea.Batch(cmds...)

	case ClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case frameMsg:
		m.frame++
		m.refreshLogs()
		return m, m.nextFrame()

	case quitMsg:
		m.quitting = true
		m.sub.Close()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		m.sub.Close()
		return m, tea.Quit
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}
	// Nothing to steer once the session is logging out.
	if m.loggedOut {
		return m, nil
	}

	var action func()
	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Repair):
		action = func() { m.engine.RepairStability(m.config.RepairAmount) }
	case key.Matches(msg, m.keys.Damage):
		action = func() { m.engine.DamageStability(m.config.DamageAmount) }
	case key.Matches(msg, m.keys.Chaos):
		action = func() { m.engine.SetChaosMode(!m.engine.Snapshot().ChaosMode) }
	case key.Matches(msg, m.keys.Tornado):
		action = m.engine.TriggerTornado
	case key.Matches(msg, m.keys.ZeroGravity):
		action = m.engine.ToggleZeroGravity
	case key.Matches(msg, m.keys.Glitch):
		action = m.engine.ToggleContinuousGlitch
	case key.Matches(msg, m.keys.Outage):
		action = func() { m.engine.TriggerPowerOutage(0) }
	case key.Matches(msg, m.keys.Universe):
		u := chaos.Universes[msg.String()[0]-'1']
		action = func() { m.engine.SetUniverse(u) }
	case key.Matches(msg, m.keys.Logout):
		action = m.engine.TriggerChaoticLogout
	default:
		return m, nil
	}

	if !act(action) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// act runs fn and reports false if the engine was already closed.
func act(fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			if err, isErr := v.(error); isErr && errors.Is(err, chaos.ErrNoSession) {
				ok = false
				return
			}
			panic(v)
		}
	}()
	fn()
	return true
}

func (m Model) newBar() progress.Model {
	bar := progress.New(
		progress.WithSolidFill(string(ux.StabilityColor(m.snap.Stability))),
		progress.WithoutPercentage(),
	)
	bar.Width = min(max(m.width-24, 10), 60)
	return bar
}

func (m *Model) refreshLogs() {
	if m.config.LogLines <= 0 {
		return
	}
	entries := m.logs.Last(m.config.LogLines)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %-5s %s",
			e.Timestamp.Format("15:04:05"), e.Level, e.Message))
	}
	m.logView.SetContent(strings.Join(lines, "\n"))
	m.logView.GotoBottom()
}

// =============================================================================
// Run
// =============================================================================

// Run drives the dashboard on the current terminal until the user quits,
// the session logs out, the engine closes or ctx ends.
func Run(ctx context.Context, engine *chaos.Engine, logs *logging.RingExporter, config Config) error {
	p := tea.NewProgram(NewModel(engine, logs, config), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
