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
	"fmt"
	"math"
	"strings"
	"time"
)

// =============================================================================
// Universe
// =============================================================================

// Universe names the themed arcade world currently on screen.
type Universe string

const (
	UniverseDefault   Universe = "DEFAULT"
	UniverseFixIt     Universe = "FIX_IT"
	UniverseSugarRush Universe = "SUGAR_RUSH"
	UniverseHerosDuty Universe = "HEROS_DUTY"
)

// Universes lists every valid universe in menu order.
var Universes = []Universe{UniverseDefault, UniverseFixIt, UniverseSugarRush, UniverseHerosDuty}

// Valid reports whether u is one of the known universes.
func (u Universe) Valid() bool {
	for _, known := range Universes {
		if u == known {
			return true
		}
	}
	return false
}

// Title returns the display name of the universe.
func (u Universe) Title() string {
	switch u {
	case UniverseFixIt:
		return "Fix-It Felix Jr."
	case UniverseSugarRush:
		return "Sugar Rush"
	case UniverseHerosDuty:
		return "Hero's Duty"
	default:
		return "Arcade Multiverse"
	}
}

// ParseUniverse converts a case-insensitive name into a Universe.
//
// Both "SUGAR_RUSH" and "sugar-rush" are accepted.
func ParseUniverse(s string) (Universe, error) {
	u := Universe(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if !u.Valid() {
		return UniverseDefault, fmt.Errorf("unknown universe %q", s)
	}
	return u, nil
}

// =============================================================================
// Derived Signals
// =============================================================================

// GlitchIntensity derives the [0,1] glitch scalar from its two inputs.
//
// Chaos mode forces full intensity; otherwise intensity grows linearly as
// stability falls. The function is pure and is evaluated on every snapshot.
func GlitchIntensity(stability float64, chaosMode bool) float64 {
	if chaosMode {
		return 1
	}
	return math.Max(0, (MaxStability-stability)/MaxStability)
}

// Snapshot is an immutable view of every signal at one instant.
//
// Subscribers receive Snapshots by value and may keep them; the Engine
// never mutates a published Snapshot.
type Snapshot struct {
	Stability        float64   `json:"stability"`
	ChaosMode        bool      `json:"is_chaos_mode"`
	GlitchIntensity  float64   `json:"glitch_intensity"`
	PowerOutage      bool      `json:"is_power_outage"`
	PowerOutageUntil time.Time `json:"power_outage_until,omitzero"`
	Tornado          bool      `json:"tornado_active"`
	TornadoUntil     time.Time `json:"tornado_until,omitzero"`
	ZeroGravity      bool      `json:"zero_gravity_active"`
	ContinuousGlitch bool      `json:"continuous_glitch_active"`
	LoggingOut       bool      `json:"is_logging_out"`
	Universe         Universe  `json:"current_universe"`
	Version          uint64    `json:"version"`
}

// Critical reports whether stability is low enough for escalation to be
// possible under the default tuning.
func (s Snapshot) Critical() bool {
	return s.Stability < DefaultEscalationThreshold
}

// ActiveEvents returns the names of the currently active event signals.
func (s Snapshot) ActiveEvents() []string {
	var names []string
	if s.Tornado {
		names = append(names, EventTornado.String())
	}
	if s.ZeroGravity {
		names = append(names, EventZeroGravity.String())
	}
	if s.ContinuousGlitch {
		names = append(names, EventContinuousGlitch.String())
	}
	if s.PowerOutage {
		names = append(names, EventPowerOutage.String())
	}
	return names
}
