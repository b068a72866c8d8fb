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

import "math"

const (
	// MinStability is the lower bound of the stability value.
	MinStability = 0.0

	// MaxStability is the upper bound of the stability value.
	MaxStability = 100.0

	// DefaultStability is the value a new session starts with.
	DefaultStability = 85.0
)

// Stability is the bounded health value of a session.
//
// # Description
//
// Stability is a plain value type; the Engine owns the only instance that
// matters and serializes access to it. Every method leaves the value inside
// [MinStability, MaxStability].
type Stability struct {
	value float64
}

// NewStability returns a Stability clamped from the given start value.
func NewStability(start float64) Stability {
	s := Stability{value: DefaultStability}
	s.Set(start)
	return s
}

// Value returns the current stability.
func (s Stability) Value() float64 {
	return s.value
}

// Repair raises stability by amount, saturating at MaxStability.
//
// Non-positive and NaN amounts are ignored.
func (s *Stability) Repair(amount float64) {
	if !(amount > 0) {
		return
	}
	s.value = math.Min(MaxStability, s.value+amount)
}

// Damage lowers stability by amount, saturating at MinStability.
//
// Non-positive and NaN amounts are ignored.
func (s *Stability) Damage(amount float64) {
	if !(amount > 0) {
		return
	}
	s.value = math.Max(MinStability, s.value-amount)
}

// Set assigns an absolute value, clamped into range. NaN is ignored.
func (s *Stability) Set(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.value = clampStability(v)
}

// Update applies fn to the previous value and stores the clamped result.
//
// This is the relative form of Set: callers computing the next value from
// the previous one do so inside the engine lock, never from a stale read.
func (s *Stability) Update(fn func(prev float64) float64) {
	if fn == nil {
		return
	}
	s.Set(fn(s.value))
}

func clampStability(v float64) float64 {
	return math.Max(MinStability, math.Min(MaxStability, v))
}
