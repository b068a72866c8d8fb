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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
)

const (
	swirlAmplitude = 3
	driftAmplitude = 4
	noiseLines     = 2
)

var (
	dimStyle    = lipgloss.NewStyle().Faint(true).Foreground(ux.ColorScanline)
	outageStyle = lipgloss.NewStyle().Bold(true).Foreground(ux.ColorWarning)
	buttonStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	noiseStyle  = lipgloss.NewStyle().Foreground(ux.ColorMuted)
	termStyle   = lipgloss.NewStyle().Foreground(ux.ColorNeonGreen).Background(ux.ColorCabinet).Padding(1, 3)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.loggedOut {
		return renderTerminal(m.snap)
	}
	if m.quitting {
		return "Disconnected from the arcade.\n"
	}

	theme := ux.ThemeFor(string(m.snap.Universe))
	var sections []string
	sections = append(sections, m.renderHeader(theme))
	if m.snap.ContinuousGlitch {
		sections = append(sections, m.renderNoise())
	}
	sections = append(sections, m.renderStability(), m.renderEvents(), m.renderButtons(theme))
	if m.snap.ContinuousGlitch {
		sections = append(sections, m.renderNoise())
	}
	if m.config.LogLines > 0 {
		sections = append(sections, ux.Styles.Muted.Render("─ log ─"), m.logView.View())
	}

	body := strings.Join(sections, "\n")
	if m.snap.Tornado {
		body = swirl(body, m.frame)
	}
	if m.snap.PowerOutage {
		body = outageStyle.Render("⚡ POWER OUTAGE ⚡") + "\n" + dim(body)
	}

	m.help.ShowAll = m.showHelp
	return body + "\n\n" + m.help.View(m.keys) + "\n"
}

func (m Model) renderHeader(theme ux.Theme) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).
		Render(Glitch("ARCADEVERSE", m.snap.GlitchIntensity, m.rng))
	universe := lipgloss.NewStyle().Foreground(theme.Accent).
		Render(Glitch(m.snap.Universe.Title(), m.snap.GlitchIntensity, m.rng))
	mode := ux.Styles.Muted.Render("calm")
	if m.snap.ChaosMode {
		mode = ux.Styles.Error.Bold(true).Render("CHAOS MODE")
	}
	return fmt.Sprintf("%s  %s  [%s]", title, universe, mode)
}

func (m Model) renderStability() string {
	label := "STABILITY"
	if m.snap.Critical() {
		label = ux.Styles.Error.Render(Glitch("CRITICAL", m.snap.GlitchIntensity, m.rng))
	}
	return fmt.Sprintf("%-9s %s %5.1f%%  glitch %3.0f%%",
		label, m.bar.ViewAs(m.snap.Stability/chaos.MaxStability), m.snap.Stability, m.snap.GlitchIntensity*100)
}

func (m Model) renderEvents() string {
	events := m.snap.ActiveEvents()
	if len(events) == 0 {
		return ux.Styles.Muted.Render("no active events")
	}
	badges := make([]string, len(events))
	for i, e := range events {
		badges[i] = ux.Styles.Highlight.Render(strings.ToUpper(e))
	}
	return ux.IconBolt.Render() + " " + strings.Join(badges, " ")
}

// renderButtons lays out the action buttons. In zero gravity each button
// floats on its own vertical and horizontal offset.
func (m Model) renderButtons(theme ux.Theme) string {
	labels := []string{"[r] REPAIR", "[d] DAMAGE", "[c] CHAOS", "[t] TORNADO", "[L] LOGOUT"}
	style := buttonStyle.BorderForeground(theme.Border)
	buttons := make([]string, len(labels))
	for i, l := range labels {
		b := style.Render(l)
		if m.snap.ZeroGravity {
			top := DriftOffset(m.frame, i+len(labels), 1)
			b = strings.Repeat("\n", top) + Indent(b, DriftOffset(m.frame, i, driftAmplitude))
		}
		buttons[i] = b
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
}

func (m Model) renderNoise() string {
	width := max(m.width-2, 20)
	lines := make([]string, noiseLines)
	for i := range lines {
		lines[i] = noiseStyle.Render(NoiseLine(width, m.rng))
	}
	return strings.Join(lines, "\n")
}

func swirl(body string, frame int) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = Indent(l, SwirlOffset(frame, i, swirlAmplitude))
	}
	return strings.Join(lines, "\n")
}

func dim(body string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = dimStyle.Render(l)
	}
	return strings.Join(lines, "\n")
}

func renderTerminal(s chaos.Snapshot) string {
	lines := []string{
		"> LOGGING OUT OF " + strings.ToUpper(s.Universe.Title()) + "...",
		fmt.Sprintf("> FINAL STABILITY: %.1f%%", s.Stability),
		"> CONNECTION TERMINATED",
		"",
		"GAME OVER",
	}
	return termStyle.Render(strings.Join(lines, "\n")) + "\n"
}
