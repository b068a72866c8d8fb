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
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Category groups achievements and challenges.
type Category string

const (
	CategoryGames    Category = "games"
	CategoryChaos    Category = "chaos"
	CategoryRepairs  Category = "repairs"
	CategorySpecial  Category = "special"
	CategoryPowerUps Category = "powerups"
)

// Achievement IDs.
const (
	AchievementFirstGame          = "first_game"
	AchievementSnakeMaster        = "snake_master"
	AchievementBreakerPro         = "breaker_pro"
	AchievementMemoryChampion     = "memory_champion"
	AchievementChaosNovice        = "chaos_novice"
	AchievementGlitchSurvivor     = "glitch_survivor"
	AchievementRepairApprentice   = "repair_apprentice"
	AchievementForgeMaster        = "forge_master"
	AchievementCharacterCollector = "character_collector"
	AchievementLogoutChaos        = "logout_chaos"
)

// Achievement is one unlockable goal and its progress.
type Achievement struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Requirement int      `json:"requirement"`
	Current     int      `json:"current"`
	Unlocked    bool     `json:"unlocked"`
	Category    Category `json:"category"`
	Reward      string   `json:"reward,omitempty"`
}

// DefaultAchievements returns the catalog with no progress.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: AchievementFirstGame, Name: "GAME STARTER", Description: "Play your first arcade game", Icon: "🎮", Requirement: 1, Category: CategoryGames, Reward: "+5 Stability"},
		{ID: AchievementSnakeMaster, Name: "SNAKE CHAOS MASTER", Description: "Score 100 points in Snake Chaos", Icon: "🐍", Requirement: 100, Category: CategoryGames, Reward: "+10 Stability"},
		{ID: AchievementBreakerPro, Name: "GLITCH BREAKER PRO", Description: "Score 200 points in Glitch Breaker", Icon: "🧱", Requirement: 200, Category: CategoryGames, Reward: "+10 Stability"},
		{ID: AchievementMemoryChampion, Name: "CHAOS MEMORY CHAMPION", Description: "Complete Chaos Memory in under 30 seconds", Icon: "🧠", Requirement: 30, Category: CategoryGames, Reward: "+15 Stability"},
		{ID: AchievementChaosNovice, Name: "CHAOS NOVICE", Description: "Survive 5 minutes with stability below 30%", Icon: "⚡", Requirement: 300, Category: CategoryChaos, Reward: "Unlock Extreme Chaos Mode"},
		{ID: AchievementGlitchSurvivor, Name: "GLITCH SURVIVOR", Description: "Experience 50 glitch events", Icon: "🌀", Requirement: 50, Category: CategoryChaos, Reward: "+8 Stability"},
		{ID: AchievementRepairApprentice, Name: "REPAIR APPRENTICE", Description: "Complete 10 repairs", Icon: "🔧", Requirement: 10, Category: CategoryRepairs, Reward: "+12 Stability"},
		{ID: AchievementForgeMaster, Name: "FORGE MASTER", Description: "Complete a repair with 100% accuracy", Icon: "⚒️", Requirement: 100, Category: CategoryRepairs, Reward: "+20 Stability"},
		{ID: AchievementCharacterCollector, Name: "CHARACTER COLLECTOR", Description: "Select all available characters", Icon: "👥", Requirement: 8, Category: CategorySpecial, Reward: "Unlock Secret Character"},
		{ID: AchievementLogoutChaos, Name: "CHAOTIC EXIT", Description: "Experience the chaotic logout sequence", Icon: "🚪", Requirement: 1, Category: CategorySpecial, Reward: "+5 Stability"},
	}
}

var stabilityRewardPattern = regexp.MustCompile(`^\+(\d+(?:\.\d+)?)\s+Stability$`)

// StabilityReward extracts N from a reward of the form "+N Stability".
func StabilityReward(reward string) (float64, bool) {
	m := stabilityRewardPattern.FindStringSubmatch(strings.TrimSpace(reward))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// =============================================================================
// Achievements Store
// =============================================================================

// Achievements tracks progress toward the catalog and persists every
// change under KeyAchievements.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Unlock hooks run after the lock
// is released, on the goroutine that caused the unlock.
type Achievements struct {
	mu       sync.Mutex
	store    Store
	logger   *slog.Logger
	list     []Achievement
	onUnlock []func(Achievement)
}

// NewAchievements loads stored progress onto the catalog. Stored entries
// for IDs no longer in the catalog are dropped.
func NewAchievements(store Store, logger *slog.Logger) *Achievements {
	a := &Achievements{
		store:  store,
		logger: loggerOrDefault(logger).With("store", "achievements"),
		list:   DefaultAchievements(),
	}
	var stored []Achievement
	if loadJSON(store, KeyAchievements, &stored, a.logger) {
		byID := make(map[string]Achievement, len(stored))
		for _, s := range stored {
			byID[s.ID] = s
		}
		for i := range a.list {
			if s, ok := byID[a.list[i].ID]; ok {
				a.list[i].Current = min(max(s.Current, 0), a.list[i].Requirement)
				a.list[i].Unlocked = s.Unlocked
			}
		}
	}
	return a
}

// OnUnlock registers fn to run whenever an achievement becomes unlocked.
func (a *Achievements) OnUnlock(fn func(Achievement)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUnlock = append(a.onUnlock, fn)
}

// List returns a copy of every achievement in catalog order.
func (a *Achievements) List() []Achievement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Achievement(nil), a.list...)
}

// Get returns one achievement.
func (a *Achievements) Get(id string) (Achievement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexLocked(id)
	if i < 0 {
		return Achievement{}, fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	return a.list[i], nil
}

// Unlock marks id unlocked with full progress.
//
// # Outputs
//
//   - bool: True if this call unlocked it.
//   - error: ErrUnknownAchievement, or a storage error.
func (a *Achievements) Unlock(id string) (bool, error) {
	return a.mutate(id, func(ach *Achievement) {
		ach.Current = ach.Requirement
		ach.Unlocked = true
	})
}

// UpdateProgress sets the progress of id to min(progress, requirement),
// unlocking it when the requirement is reached. Unlocked achievements are
// left alone.
func (a *Achievements) UpdateProgress(id string, progress int) (bool, error) {
	return a.mutate(id, func(ach *Achievement) {
		ach.Current = min(max(progress, 0), ach.Requirement)
		if ach.Current >= ach.Requirement {
			ach.Unlocked = true
		}
	})
}

// Increment adds delta to the progress of id.
func (a *Achievements) Increment(id string, delta int) (bool, error) {
	return a.mutate(id, func(ach *Achievement) {
		ach.Current = min(max(ach.Current+delta, 0), ach.Requirement)
		if ach.Current >= ach.Requirement {
			ach.Unlocked = true
		}
	})
}

// Raise moves the progress of id up to v. Lower values are ignored.
func (a *Achievements) Raise(id string, v int) (bool, error) {
	return a.mutate(id, func(ach *Achievement) {
		if v <= ach.Current {
			return
		}
		ach.Current = min(v, ach.Requirement)
		if ach.Current >= ach.Requirement {
			ach.Unlocked = true
		}
	})
}

func (a *Achievements) mutate(id string, fn func(*Achievement)) (bool, error) {
	a.mu.Lock()
	i := a.indexLocked(id)
	if i < 0 {
		a.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	if a.list[i].Unlocked {
		a.mu.Unlock()
		return false, nil
	}
	fn(&a.list[i])
	unlocked := a.list[i]
	hooks := append([]func(Achievement){}, a.onUnlock...)
	err := saveJSON(a.store, KeyAchievements, a.list)
	a.mu.Unlock()

	if err != nil {
		return false, err
	}
	if !unlocked.Unlocked {
		return false, nil
	}
	a.logger.Info("achievement unlocked", "id", unlocked.ID, "name", unlocked.Name, "reward", unlocked.Reward)
	for _, h := range hooks {
		h(unlocked)
	}
	return true, nil
}

func (a *Achievements) indexLocked(id string) int {
	for i := range a.list {
		if a.list[i].ID == id {
			return i
		}
	}
	return -1
}

// UnlockedCount returns how many achievements are unlocked.
func (a *Achievements) UnlockedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ach := range a.list {
		if ach.Unlocked {
			n++
		}
	}
	return n
}

// TotalCount returns the catalog size.
func (a *Achievements) TotalCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.list)
}
