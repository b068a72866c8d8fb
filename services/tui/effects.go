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
	"math"
	"math/rand/v2"
	"strings"
)

// Glyph sets used by the glitch renderers.
var (
	glitchGlyphs = []rune("!@#$%^&*<>?/\\|~░▒▓█▀▄")
	noiseGlyphs  = []rune(" ·:░▒▓")
)

// maxGlitchRatio is the share of characters replaced at full intensity.
// Above it the text stops being readable.
const maxGlitchRatio = 0.35

// Glitch scrambles s in proportion to intensity in [0,1].
//
// Whitespace is never replaced, so line layout and rune count stay the
// same. Intensity 0 returns s unchanged.
func Glitch(s string, intensity float64, rng *rand.Rand) string {
	if intensity <= 0 || s == "" {
		return s
	}
	ratio := min(intensity, 1) * maxGlitchRatio
	runes := []rune(s)
	for i, r := range runes {
		if r == ' ' || r == '\n' || r == '\t' {
			continue
		}
		if rng.Float64() < ratio {
			runes[i] = glitchGlyphs[rng.IntN(len(glitchGlyphs))]
		}
	}
	return string(runes)
}

// NoiseLine returns width characters of static.
func NoiseLine(width int, rng *rand.Rand) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(width * 3)
	for range width {
		b.WriteRune(noiseGlyphs[rng.IntN(len(noiseGlyphs))])
	}
	return b.String()
}

// wave samples a sine of the given amplitude shifted into [0, 2*amp].
func wave(phase float64, amp int) int {
	if amp <= 0 {
		return 0
	}
	return amp + int(math.Round(float64(amp)*math.Sin(phase)))
}

// SwirlOffset is the indent of line at frame while a tornado runs.
// Consecutive lines are phase-shifted so the frame twists.
func SwirlOffset(frame, line, amp int) int {
	return wave(float64(frame+line)*math.Pi/4, amp)
}

// DriftOffset is the horizontal offset of button index at frame in zero
// gravity. Buttons drift slowly and out of step with each other.
func DriftOffset(frame, index, amp int) int {
	return wave(float64(frame)*0.3+float64(index)*1.7, amp)
}

// Indent prefixes every line of s with n spaces.
func Indent(s string, n int) string {
	if n <= 0 {
		return s
	}
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}
