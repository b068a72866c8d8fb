// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Subscribers int    `json:"subscribers"`
}

// StateResponse wraps a snapshot with its active event names.
type StateResponse struct {
	chaos.Snapshot
	ActiveEvents []string `json:"active_events"`
	Critical     bool     `json:"critical"`
}

// AmountRequest is the body of the repair and damage endpoints.
type AmountRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0,lte=100"`
}

// ChaosRequest is the body of PUT /v1/chaos.
type ChaosRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UniverseRequest is the body of PUT /v1/universe.
type UniverseRequest struct {
	Universe string `json:"universe" binding:"required"`
}

// TriggerRequest is the optional body of POST /v1/triggers/:name.
type TriggerRequest struct {
	DurationMS int64 `json:"duration_ms" binding:"gte=0,lte=60000"`
}

// SessionRequest is the body of POST /v1/sessions.
type SessionRequest struct {
	Game   string `json:"game" binding:"required"`
	Player string `json:"player" binding:"max=32"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	ID     string      `json:"id"`
	Game   arcade.Game `json:"game"`
	Player string      `json:"player"`
	Score  int         `json:"score"`
}

// EventRequest is the body of POST /v1/sessions/:id/events.
type EventRequest struct {
	Type   arcade.EventType `json:"type" binding:"required"`
	Points int              `json:"points" binding:"gte=0"`
}

// FinishRequest is the optional body of POST /v1/sessions/:id/finish.
type FinishRequest struct {
	// Completed marks the game as won before it is recorded.
	Completed bool `json:"completed"`
}

// RepairRequest is the body of POST /v1/repairs.
type RepairRequest struct {
	Level    int     `json:"level" binding:"required,gte=1,lte=10"`
	Accuracy float64 `json:"accuracy" binding:"gte=0,lte=100"`
	TookMS   int64   `json:"took_ms" binding:"gte=0"`
}

// RepairResponse reports the stability restored by a repair.
type RepairResponse struct {
	Bonus float64       `json:"bonus"`
	State StateResponse `json:"state"`
}

// CharacterRequest is the body of POST /v1/characters.
type CharacterRequest struct {
	Name string `json:"name" binding:"required,max=32"`
}

// CharacterResponse reports how many distinct characters were picked.
type CharacterResponse struct {
	Name     string `json:"name"`
	Selected int    `json:"selected"`
}

// LeaderboardResponse is returned by GET /v1/leaderboard.
type LeaderboardResponse struct {
	Entries []persist.LeaderboardEntry `json:"entries"`
}

// AchievementsResponse is returned by GET /v1/achievements.
type AchievementsResponse struct {
	Achievements []persist.Achievement `json:"achievements"`
	Unlocked     int                   `json:"unlocked"`
	Total        int                   `json:"total"`
}

// ChallengesResponse is returned by GET /v1/challenges.
type ChallengesResponse struct {
	Challenges   []persist.Challenge `json:"challenges"`
	Completed    int                 `json:"completed"`
	RewardPoints int                 `json:"reward_points"`
}
