// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package arcade connects mini-game play and chaos activity to stability
// and to the progress stores in persist.
//
// Games themselves (movement, collision, card layout) live in the front
// ends. They report what happened through a Session; the Reporter applies
// the stability side effect of each event and turns finished sessions into
// leaderboard entries, achievement progress and challenge progress.
package arcade

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

// Game identifies a mini-game.
type Game string

const (
	GameSnake   Game = "snake"
	GameBreaker Game = "breaker"
	GameMemory  Game = "memory"
)

// Games lists every mini-game in menu order.
var Games = []Game{GameSnake, GameBreaker, GameMemory}

// MemoryPairs is the number of matches that completes a Chaos Memory board.
const MemoryPairs = 8

// Title returns the leaderboard name of the game.
func (g Game) Title() string {
	switch g {
	case GameSnake:
		return persist.GameSnake
	case GameBreaker:
		return persist.GameBreaker
	case GameMemory:
		return persist.GameMemory
	default:
		return string(g)
	}
}

// ParseGame accepts a game id or its leaderboard title.
func ParseGame(s string) (Game, error) {
	s = strings.TrimSpace(s)
	for _, g := range Games {
		if strings.EqualFold(s, string(g)) || strings.EqualFold(s, g.Title()) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGame, s)
}

// EventType is something that happened during play.
type EventType string

const (
	EventFood           EventType = "food"            // snake ate
	EventCrash          EventType = "crash"           // snake hit a wall or itself
	EventPaddleHit      EventType = "paddle_hit"      // breaker ball returned
	EventBlockDestroyed EventType = "block_destroyed" // breaker block cleared
	EventBallLost       EventType = "ball_lost"       // breaker ball fell
	EventMatch          EventType = "match"           // memory pair found
	EventMismatch       EventType = "mismatch"        // memory pair missed
	EventPowerUp        EventType = "power_up"        // any game
)

// Event is one play event. Points overrides the default score for the
// event type when positive.
type Event struct {
	Type   EventType `json:"type"`
	Points int       `json:"points,omitempty"`
}

// effect is the stability and score consequence of an event.
type effect struct {
	game   Game // empty applies to every game
	repair float64
	damage float64
	points int
}

var effects = map[EventType]effect{
	EventFood:           {game: GameSnake, repair: 2, points: 10},
	EventCrash:          {game: GameSnake, damage: 5},
	EventPaddleHit:      {game: GameBreaker, repair: 1},
	EventBlockDestroyed: {game: GameBreaker, repair: 2, points: 10},
	EventBallLost:       {game: GameBreaker, damage: 10},
	EventMatch:          {game: GameMemory, repair: 5, points: 10},
	EventMismatch:       {game: GameMemory, damage: 2},
	EventPowerUp:        {points: 5},
}

// Effect reports the stability change an event applies in game.
func Effect(game Game, t EventType) (repair, damage float64, ok bool) {
	e, ok := effects[t]
	if !ok || (e.game != "" && e.game != game) {
		return 0, 0, false
	}
	return e.repair, e.damage, true
}
