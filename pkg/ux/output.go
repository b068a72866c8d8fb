// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal styling for the ArcadeVerse CLI and TUI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Arcade palette: neon on a dark cabinet.
var (
	ColorNeonCyan    = lipgloss.Color("#00F0FF")
	ColorNeonMagenta = lipgloss.Color("#FF2BD6")
	ColorNeonYellow  = lipgloss.Color("#FFE600")
	ColorNeonGreen   = lipgloss.Color("#39FF14")
	ColorNeonOrange  = lipgloss.Color("#FF8A00")
	ColorCabinet     = lipgloss.Color("#14101F")
	ColorScanline    = lipgloss.Color("#3B3355")

	ColorSuccess = ColorNeonGreen
	ColorWarning = ColorNeonYellow
	ColorError   = lipgloss.Color("#FF3131")
	ColorMuted   = lipgloss.Color("#6E6887")
)

// Theme holds the accent colors of one universe.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Border  lipgloss.Color
}

// themes is keyed by universe name so this package need not import the
// engine.
var themes = map[string]Theme{
	"DEFAULT":    {Name: "Arcade Multiverse", Primary: ColorNeonCyan, Accent: ColorNeonMagenta, Border: ColorScanline},
	"FIX_IT":     {Name: "Fix-It Felix Jr.", Primary: ColorNeonYellow, Accent: lipgloss.Color("#4A90E2"), Border: lipgloss.Color("#8B5A2B")},
	"SUGAR_RUSH": {Name: "Sugar Rush", Primary: lipgloss.Color("#FF69B4"), Accent: lipgloss.Color("#7FFFD4"), Border: lipgloss.Color("#FFB6C1")},
	"HEROS_DUTY": {Name: "Hero's Duty", Primary: ColorNeonGreen, Accent: ColorNeonOrange, Border: lipgloss.Color("#2F4F2F")},
}

// ThemeFor returns the theme for a universe name, or the default theme.
func ThemeFor(universe string) Theme {
	if t, ok := themes[universe]; ok {
		return t
	}
	return themes["DEFAULT"]
}

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorNeonCyan),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorNeonMagenta),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorNeonYellow).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ColorNeonCyan).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconTrophy  Icon = "🏆"
	IconStar    Icon = "★"
	IconBolt    Icon = "⚡"
)

// Render returns the icon with its semantic color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning, IconBolt:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	case IconStar, IconTrophy:
		return Styles.Highlight.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes mode-aware CLI output to W.
type Printer struct {
	W    io.Writer
	Mode Mode
}

// Stdout returns a Printer for os.Stdout in the current mode.
func Stdout() *Printer {
	return &Printer{W: os.Stdout, Mode: GetMode()}
}

// Title prints a styled heading. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.Mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.W, Styles.Title.Render(text))
}

// Success prints a line with a check mark.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a line with a warning sign.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints a line with a cross.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(tag string, icon Icon, style lipgloss.Style, text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.W, "%s: %s\n", tag, text)
	case ModeMinimal:
		fmt.Fprintf(p.W, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(p.W, "%s %s\n", icon.Render(), style.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintln(p.W, text)
		return
	}
	fmt.Fprintf(p.W, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints a titled box. Machine mode prints "title: content".
func (p *Printer) Box(title, content string) {
	if p.Mode != ModeFull {
		fmt.Fprintf(p.W, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.W, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// Table prints rows with aligned columns. The header is bold in full mode
// and tab-separated in machine mode.
func (p *Printer) Table(header []string, rows [][]string) {
	if p.Mode == ModeMachine {
		fmt.Fprintln(p.W, strings.Join(header, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.W, strings.Join(r, "\t"))
		}
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(r[i]))
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	head := line(header)
	if p.Mode == ModeFull {
		head = Styles.Bold.Render(head)
	}
	fmt.Fprintln(p.W, head)
	for _, r := range rows {
		fmt.Fprintln(p.W, line(r))
	}
}

// =============================================================================
// Meters
// =============================================================================

// StabilityColor maps a stability value to green, yellow, orange or red.
func StabilityColor(stability float64) lipgloss.Color {
	switch {
	case stability >= 70:
		return ColorSuccess
	case stability >= 40:
		return ColorWarning
	case stability >= 15:
		return ColorNeonOrange
	default:
		return ColorError
	}
}

// Meter renders a fixed-width bar for value in [0,max]. Machine mode
// returns "value/max".
func Meter(value, maxValue float64, width int, mode Mode) string {
	if mode == ModeMachine {
		return fmt.Sprintf("%.1f/%.0f", value, maxValue)
	}
	if width <= 0 || maxValue <= 0 {
		return ""
	}
	pct := min(1, max(0, value/maxValue))
	filled := int(pct*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if mode == ModeMinimal {
		return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
	}
	colored := lipgloss.NewStyle().Foreground(StabilityColor(value/maxValue*100)).Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", colored, pct*100)
}
