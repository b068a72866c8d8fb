// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"cmp"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxLeaderboardEntries is how many entries survive a re-rank.
	MaxLeaderboardEntries = 50

	seedEntryCount = 20
)

// Game names as shown on the leaderboard.
const (
	GameSnake   = "Snake Chaos"
	GameBreaker = "Glitch Breaker"
	GameMemory  = "Chaos Memory"
)

var (
	seedPlayers = []string{
		"CYBER_NINJA", "GLITCH_HUNTER", "ARCADE_MASTER", "CHAOS_SURVIVOR",
		"PIXEL_WARRIOR", "NEON_RACER", "DIGITAL_PHANTOM", "RETRO_LEGEND",
	}
	seedGames = []string{GameSnake, GameBreaker, GameMemory}
)

// LeaderboardEntry is one ranked score.
type LeaderboardEntry struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"playerName"`
	Score      int       `json:"score"`
	Game       string    `json:"game"`
	Date       time.Time `json:"date"`
	Rank       int       `json:"rank"`
}

// SeedLeaderboard generates the entries shown before anyone has played:
// scores in [100,600) from the last seven days, ranked.
func SeedLeaderboard(rng *rand.Rand, now time.Time) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, seedEntryCount)
	for i := 0; i < seedEntryCount; i++ {
		age := time.Duration(rng.Int64N(int64(7 * 24 * time.Hour)))
		entries = append(entries, LeaderboardEntry{
			ID:         fmt.Sprintf("entry-%d", i),
			PlayerName: seedPlayers[rng.IntN(len(seedPlayers))],
			Score:      100 + rng.IntN(500),
			Game:       seedGames[rng.IntN(len(seedGames))],
			Date:       now.Add(-age),
		})
	}
	return rank(entries)
}

// rank sorts by score descending, keeps the top entries and numbers them
// from 1. Equal scores keep their relative order.
func rank(entries []LeaderboardEntry) []LeaderboardEntry {
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(entries) > MaxLeaderboardEntries {
		entries = entries[:MaxLeaderboardEntries]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// =============================================================================
// Leaderboard Store
// =============================================================================

// Leaderboard keeps the ranked high-score table.
type Leaderboard struct {
	mu      sync.Mutex
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	entries []LeaderboardEntry
}

// NewLeaderboard loads stored entries, seeding and persisting a generated
// table when nothing usable is stored. rng may be nil.
func NewLeaderboard(store Store, logger *slog.Logger, rng *rand.Rand) *Leaderboard {
	l := &Leaderboard{
		store:  store,
		logger: loggerOrDefault(logger).With("store", "leaderboard"),
		now:    time.Now,
	}
	var stored []LeaderboardEntry
	if loadJSON(store, KeyLeaderboard, &stored, l.logger) && len(stored) > 0 {
		l.entries = rank(stored)
		return l
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	l.entries = SeedLeaderboard(rng, l.now())
	if err := saveJSON(store, KeyLeaderboard, l.entries); err != nil {
		l.logger.Warn("failed to persist seeded leaderboard", "error", err)
	}
	return l
}

// Entries returns every ranked entry.
func (l *Leaderboard) Entries() []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Top returns at most n entries from the top. n <= 0 returns all.
func (l *Leaderboard) Top(n int) []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return slices.Clone(l.entries[:n])
}

// Add records a score and re-ranks.
//
// # Outputs
//
//   - LeaderboardEntry: The new entry with its rank; Rank is 0 when the
//     score did not make the table.
//   - error: Non-nil if name is blank or the store write fails.
func (l *Leaderboard) Add(name string, score int, game string) (LeaderboardEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LeaderboardEntry{}, fmt.Errorf("player name is required")
	}
	entry := LeaderboardEntry{
		ID:         uuid.NewString(),
		PlayerName: name,
		Score:      max(score, 0),
		Game:       game,
		Date:       l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next := rank(append(slices.Clone(l.entries), entry))
	if err := saveJSON(l.store, KeyLeaderboard, next); err != nil {
		return LeaderboardEntry{}, err
	}
	l.entries = next
	for _, e := range next {
		if e.ID == entry.ID {
			l.logger.Info("leaderboard entry added", "player", name, "score", e.Score, "game", game, "rank", e.Rank)
			return e, nil
		}
	}
	return entry, nil
}

// BestScore returns the highest score for game, or 0.
func (l *Leaderboard) BestScore(game string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Game == game {
			return e.Score
		}
	}
	return 0
}
