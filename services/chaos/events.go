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
	"errors"
	"fmt"
)

// =============================================================================
// Event Kinds
// =============================================================================

// EventKind identifies an ambient chaos event the scheduler can fire.
type EventKind int

const (
	// EventNone means the tick dispatched nothing.
	EventNone EventKind = iota

	// EventTornado starts the self-expiring tornado signal.
	EventTornado

	// EventZeroGravity flips the zero-gravity toggle.
	EventZeroGravity

	// EventContinuousGlitch flips the continuous-glitch toggle.
	EventContinuousGlitch

	// EventPowerOutage starts a power outage with a randomized duration.
	EventPowerOutage
)

// String returns the kebab-case name of the event.
func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventTornado:
		return "tornado"
	case EventZeroGravity:
		return "zero-gravity"
	case EventContinuousGlitch:
		return "continuous-glitch"
	case EventPowerOutage:
		return "power-outage"
	default:
		return "unknown"
	}
}

// ParseEventKind converts a kebab-case name back into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	for k := EventNone; k <= EventPowerOutage; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return EventNone, fmt.Errorf("unknown event kind %q", s)
}

// =============================================================================
// Probability Table
// =============================================================================

// EventRule fires Kind when the event draw is strictly above Above.
type EventRule struct {
	Kind  EventKind `yaml:"kind"`
	Above float64   `yaml:"above"`
}

// EventTable is an ordered list of cumulative thresholds.
//
// # Description
//
// Pick walks the rules in order and returns the first whose threshold the
// draw exceeds. Rules must be sorted by strictly descending threshold so
// that each rule owns the half-open band (Above, previous Above].
type EventTable []EventRule

// DefaultEventTable returns the stock distribution:
//
//	(0.9, 1.0) tornado
//	(0.8, 0.9] zero-gravity
//	(0.7, 0.8] continuous glitch
//	(0.5, 0.7] power outage
//	[0.0, 0.5] nothing
func DefaultEventTable() EventTable {
	return EventTable{
		{Kind: EventTornado, Above: 0.9},
		{Kind: EventZeroGravity, Above: 0.8},
		{Kind: EventContinuousGlitch, Above: 0.7},
		{Kind: EventPowerOutage, Above: 0.5},
	}
}

// Pick returns the event owning draw, or EventNone.
func (t EventTable) Pick(draw float64) EventKind {
	for _, rule := range t {
		if draw > rule.Above {
			return rule.Kind
		}
	}
	return EventNone
}

// Probability returns the chance that a uniform [0,1) draw selects kind.
func (t EventTable) Probability(kind EventKind) float64 {
	upper := 1.0
	for _, rule := range t {
		if rule.Kind == kind {
			return upper - rule.Above
		}
		upper = rule.Above
	}
	return 0
}

// ErrInvalidEventTable is returned by Validate for malformed tables.
var ErrInvalidEventTable = errors.New("invalid event table")

// Validate checks thresholds are in [0,1), strictly descending, and name
// real events.
func (t EventTable) Validate() error {
	prev := 1.0
	for i, rule := range t {
		if rule.Kind <= EventNone || rule.Kind > EventPowerOutage {
			return fmt.Errorf("%w: rule %d has kind %d", ErrInvalidEventTable, i, rule.Kind)
		}
		if rule.Above < 0 || rule.Above >= prev {
			return fmt.Errorf("%w: rule %d threshold %.3f must be in [0, %.3f)",
				ErrInvalidEventTable, i, rule.Above, prev)
		}
		prev = rule.Above
	}
	return nil
}

// =============================================================================
// Random Source
// =============================================================================

// RandomSource yields uniform draws in [0,1).
//
// *rand.Rand from math/rand/v2 satisfies it. Tests inject scripted
// sources to pin every branch of a tick.
type RandomSource interface {
	Float64() float64
}
