// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode controls how much decoration CLI output carries.
type Mode string

const (
	// ModeFull renders colors, boxes and icons.
	ModeFull Mode = "full"

	// ModeMinimal keeps icons but drops colors and boxes.
	ModeMinimal Mode = "minimal"

	// ModeMachine prints plain, line-oriented text for scripts.
	ModeMachine Mode = "machine"
)

var (
	currentMode = ModeFull
	modeMu      sync.RWMutex
)

// GetMode returns the active output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode replaces the active output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode accepts full/minimal/machine and their short forms. Unknown
// values select ModeFull.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return ModeMinimal
	case "machine", "plain", "quiet", "q":
		return ModeMachine
	default:
		return ModeFull
	}
}

// InitMode picks the mode from ARCADEVERSE_OUTPUT, falling back to
// ModeMachine when stdout is not a terminal.
func InitMode() {
	if env := os.Getenv("ARCADEVERSE_OUTPUT"); env != "" {
		SetMode(ParseMode(env))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetMode(ModeMachine)
		return
	}
	SetMode(ModeFull)
}

// IsTerminal reports whether f is attached to a terminal, including
// Cygwin and MSYS pseudo terminals.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts and the TUI may be shown.
func IsInteractive() bool {
	return GetMode() != ModeMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}
