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
	"sync"
	"time"
)

// Difficulty rates a daily challenge.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

// Challenge IDs.
const (
	ChallengeSnakeScore       = "snake_score"
	ChallengeBreakerBlocks    = "breaker_blocks"
	ChallengeMemorySpeed      = "memory_speed"
	ChallengeChaosSurvival    = "chaos_survival"
	ChallengeRepairSpeed      = "repair_speed"
	ChallengePowerUpCollector = "powerup_collector"
	ChallengeExtremeChaos     = "extreme_chaos"
	ChallengePerfectGame      = "perfect_game"
)

// Challenge is one daily goal.
type Challenge struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Requirement int        `json:"requirement"`
	Current     int        `json:"current"`
	Completed   bool       `json:"completed"`
	Reward      string     `json:"reward"`
	Difficulty  Difficulty `json:"difficulty"`
	Category    Category   `json:"category"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// nextMidnight returns the start of the day after now, in now's location.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// GenerateChallenges returns the daily set for the day containing now.
func GenerateChallenges(now time.Time) []Challenge {
	exp := nextMidnight(now)
	return []Challenge{
		{ID: ChallengeSnakeScore, Title: "SNAKE MASTER", Description: "Score 50 points in Snake Chaos", Requirement: 50, Reward: "+15 Stability", Difficulty: DifficultyEasy, Category: CategoryGames, ExpiresAt: exp},
		{ID: ChallengeBreakerBlocks, Title: "BLOCK DESTROYER", Description: "Destroy 30 blocks in Glitch Breaker", Requirement: 30, Reward: "+20 Stability", Difficulty: DifficultyMedium, Category: CategoryGames, ExpiresAt: exp},
		{ID: ChallengeMemorySpeed, Title: "LIGHTNING MEMORY", Description: "Complete Chaos Memory in under 45 seconds", Requirement: 45, Reward: "+25 Stability", Difficulty: DifficultyHard, Category: CategoryGames, ExpiresAt: exp},
		{ID: ChallengeChaosSurvival, Title: "CHAOS ENDURANCE", Description: "Survive 3 minutes with stability below 40%", Requirement: 180, Reward: "+30 Stability", Difficulty: DifficultyHard, Category: CategoryChaos, ExpiresAt: exp},
		{ID: ChallengeRepairSpeed, Title: "QUICK FIX", Description: "Complete 3 repairs in under 2 minutes each", Requirement: 3, Reward: "+18 Stability", Difficulty: DifficultyMedium, Category: CategoryRepairs, ExpiresAt: exp},
		{ID: ChallengePowerUpCollector, Title: "POWER COLLECTOR", Description: "Collect 10 power-ups in any game", Requirement: 10, Reward: "+22 Stability", Difficulty: DifficultyEasy, Category: CategoryPowerUps, ExpiresAt: exp},
		{ID: ChallengeExtremeChaos, Title: "EXTREME SURVIVOR", Description: "Survive 5 minutes in Extreme Chaos mode", Requirement: 300, Reward: "+50 Stability", Difficulty: DifficultyExtreme, Category: CategoryChaos, ExpiresAt: exp},
		{ID: ChallengePerfectGame, Title: "PERFECT RUN", Description: "Complete any game without taking damage", Requirement: 1, Reward: "+35 Stability", Difficulty: DifficultyExtreme, Category: CategoryGames, ExpiresAt: exp},
	}
}

type storedChallenges struct {
	Challenges []Challenge `json:"challenges"`
	Date       time.Time   `json:"date"`
}

// =============================================================================
// Challenges Store
// =============================================================================

// Challenges holds today's challenge set.
//
// A stored set from the current day is kept; anything older is replaced by
// a fresh set. The check also runs on every access, so a session spanning
// midnight rolls over.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Completion hooks run once per
// completed challenge, after the lock is released.
type Challenges struct {
	mu         sync.Mutex
	store      Store
	logger     *slog.Logger
	now        func() time.Time
	onComplete []func(Challenge)

	list []Challenge
	date time.Time
}

// NewChallenges loads today's set or generates one.
func NewChallenges(store Store, logger *slog.Logger) *Challenges {
	return newChallenges(store, logger, time.Now)
}

func newChallenges(store Store, logger *slog.Logger, now func() time.Time) *Challenges {
	c := &Challenges{
		store:  store,
		logger: loggerOrDefault(logger).With("store", "challenges"),
		now:    now,
	}
	var stored storedChallenges
	if loadJSON(store, KeyDailyChallenges, &stored, c.logger) && sameDay(now(), stored.Date) && len(stored.Challenges) > 0 {
		c.list = stored.Challenges
		c.date = stored.Date
		return c
	}
	c.regenerateLocked()
	return c
}

func (c *Challenges) regenerateLocked() {
	now := c.now()
	c.list = GenerateChallenges(now)
	c.date = now
	if err := c.persistLocked(); err != nil {
		c.logger.Warn("failed to persist new challenges", "error", err)
	}
}

func (c *Challenges) rolloverLocked() {
	if !sameDay(c.now(), c.date) {
		c.logger.Info("daily challenges expired, generating a new set")
		c.regenerateLocked()
	}
}

func (c *Challenges) persistLocked() error {
	return saveJSON(c.store, KeyDailyChallenges, storedChallenges{Challenges: c.list, Date: c.date})
}

// OnComplete registers fn to run whenever a challenge becomes completed.
func (c *Challenges) OnComplete(fn func(Challenge)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = append(c.onComplete, fn)
}

// List returns today's challenges.
func (c *Challenges) List() []Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverLocked()
	return append([]Challenge(nil), c.list...)
}

// Refresh discards progress and generates a new set.
func (c *Challenges) Refresh() []Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regenerateLocked()
	return append([]Challenge(nil), c.list...)
}

// UpdateProgress sets the progress of id to min(progress, requirement).
// It never completes the challenge; call Complete or Advance for that.
func (c *Challenges) UpdateProgress(id string, progress int) error {
	return c.mutate(id, func(ch *Challenge) {
		ch.Current = min(max(progress, 0), ch.Requirement)
	})
}

// Complete marks id completed with full progress.
func (c *Challenges) Complete(id string) error {
	return c.mutate(id, func(ch *Challenge) {
		ch.Completed = true
		ch.Current = ch.Requirement
	})
}

// Advance moves the progress of an open challenge and completes it once
// the requirement is met. With add the value is added to the current
// progress; otherwise it replaces it, but only upward.
func (c *Challenges) Advance(id string, v int, add bool) error {
	return c.mutate(id, func(ch *Challenge) {
		next := v
		if add {
			next = ch.Current + v
		}
		if next <= ch.Current {
			return
		}
		if next >= ch.Requirement {
			ch.Completed = true
			ch.Current = ch.Requirement
			return
		}
		ch.Current = next
	})
}

// mutate applies fn to an open challenge. Completed challenges are left
// alone, so the completion hooks fire exactly once per challenge.
func (c *Challenges) mutate(id string, fn func(*Challenge)) error {
	c.mu.Lock()
	c.rolloverLocked()
	i := -1
	for j := range c.list {
		if c.list[j].ID == id {
			i = j
			break
		}
	}
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
	}
	if c.list[i].Completed {
		c.mu.Unlock()
		return nil
	}
	fn(&c.list[i])
	done := c.list[i]
	hooks := append([]func(Challenge){}, c.onComplete...)
	err := c.persistLocked()
	c.mu.Unlock()

	if err != nil || !done.Completed {
		return err
	}
	c.logger.Info("challenge completed", "id", done.ID, "reward", done.Reward)
	for _, h := range hooks {
		h(done)
	}
	return nil
}

// Get returns one challenge.
func (c *Challenges) Get(id string) (Challenge, error) {
	for _, ch := range c.List() {
		if ch.ID == id {
			return ch, nil
		}
	}
	return Challenge{}, fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
}

// CompletedCount returns how many of today's challenges are complete.
func (c *Challenges) CompletedCount() int {
	n := 0
	for _, ch := range c.List() {
		if ch.Completed {
			n++
		}
	}
	return n
}

var rewardPointsPattern = regexp.MustCompile(`\d+`)

// TotalRewardPoints sums the first number in each completed reward.
func (c *Challenges) TotalRewardPoints() int {
	total := 0
	for _, ch := range c.List() {
		if !ch.Completed {
			continue
		}
		if n, err := strconv.Atoi(rewardPointsPattern.FindString(ch.Reward)); err == nil {
			total += n
		}
	}
	return total
}
