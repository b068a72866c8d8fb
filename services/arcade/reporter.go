// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package arcade

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

var (
	ErrUnknownGame     = errors.New("unknown game")
	ErrUnknownEvent    = errors.New("event does not apply to this game")
	ErrSessionFinished = errors.New("session already finished")
)

const (
	snakeMasterScore   = 100
	breakerProScore    = 200
	memoryChampionSecs = 30
	memorySpeedSecs    = 45
	quickRepairLimit   = 2 * time.Minute
	perfectAccuracy    = 100.0
)

// StabilityMutator is the part of the chaos engine the arcade drives.
type StabilityMutator interface {
	RepairStability(amount float64)
	DamageStability(amount float64)
}

// Progress groups the stores a Reporter updates. Saves may be nil.
type Progress struct {
	Achievements *persist.Achievements
	Challenges   *persist.Challenges
	Leaderboard  *persist.Leaderboard
	Saves        *persist.SaveSlots
}

// Reporter applies play events to stability and progress.
//
// # Description
//
// Every "+N Stability" reward of an achievement or challenge that becomes
// unlocked through the Reporter's stores is paid out through the mutator.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Reporter struct {
	mutator  StabilityMutator
	progress Progress
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	characters map[string]struct{}
}

// NewReporter binds mutator to the progress stores.
func NewReporter(mutator StabilityMutator, progress Progress, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		mutator:    mutator,
		progress:   progress,
		logger:     logger.With("component", "arcade"),
		now:        time.Now,
		characters: make(map[string]struct{}),
	}
	if progress.Achievements != nil {
		progress.Achievements.OnUnlock(func(a persist.Achievement) {
			r.payReward(a.ID, a.Reward)
		})
	}
	if progress.Challenges != nil {
		progress.Challenges.OnComplete(func(c persist.Challenge) {
			r.payReward(c.ID, c.Reward)
		})
	}
	return r
}

// payReward repairs stability by the amount in a "+N Stability" reward.
// Rewards that land after the session closed are dropped.
func (r *Reporter) payReward(source, reward string) {
	amount, ok := persist.StabilityReward(reward)
	if !ok {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			if err, isErr := v.(error); isErr && errors.Is(err, chaos.ErrNoSession) {
				r.logger.Debug("reward dropped, session closed", "source", source)
				return
			}
			panic(v)
		}
	}()
	r.mutator.RepairStability(amount)
	r.logger.Info("reward paid", "source", source, "stability", amount)
}

// =============================================================================
// Sessions
// =============================================================================

// Session is one play-through of a game.
type Session struct {
	ID      string
	Game    Game
	Player  string
	Started time.Time

	reporter *Reporter

	mu        sync.Mutex
	score     int
	blocks    int
	matches   int
	powerUps  int
	damaged   bool
	completed bool
	finished  bool
}

// Result summarizes a finished session.
type Result struct {
	SessionID string                   `json:"session_id"`
	Game      Game                     `json:"game"`
	Player    string                   `json:"player"`
	Score     int                      `json:"score"`
	Duration  time.Duration            `json:"duration"`
	Completed bool                     `json:"completed"`
	Perfect   bool                     `json:"perfect"`
	Entry     persist.LeaderboardEntry `json:"entry"`
}

// Start opens a session for player.
func (r *Reporter) Start(game Game, player string) (*Session, error) {
	if _, err := ParseGame(string(game)); err != nil {
		return nil, err
	}
	player = strings.TrimSpace(player)
	if player == "" {
		player = "PLAYER"
	}
	s := &Session{
		ID:       uuid.NewString(),
		Game:     game,
		Player:   player,
		Started:  r.now(),
		reporter: r,
	}
	r.logger.Debug("session started", "session", s.ID, "game", game, "player", player)
	return s, nil
}

// Record applies one play event.
func (s *Session) Record(ev Event) error {
	repair, damage, ok := Effect(s.Game, ev.Type)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnknownEvent, ev.Type, s.Game)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	points := effects[ev.Type].points
	if ev.Points > 0 {
		points = ev.Points
	}
	s.score += points
	switch ev.Type {
	case EventBlockDestroyed:
		s.blocks++
	case EventMatch:
		s.matches++
		if s.matches >= MemoryPairs {
			s.completed = true
		}
	case EventPowerUp:
		s.powerUps++
	}
	if damage > 0 {
		s.damaged = true
	}
	s.mu.Unlock()

	if repair > 0 {
		s.reporter.mutator.RepairStability(repair)
	}
	if damage > 0 {
		s.reporter.mutator.DamageStability(damage)
	}
	return nil
}

// Score returns the running score.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Complete marks the game as won. Memory completes on its own after
// MemoryPairs matches.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
}

// Finish closes the session and records it everywhere.
//
// # Outputs
//
//   - Result: What the session achieved.
//   - error: ErrSessionFinished on a second call, or the first store error.
//     Later stores are still updated when an earlier one fails.
func (s *Session) Finish() (Result, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return Result{}, ErrSessionFinished
	}
	s.finished = true
	r := s.reporter
	res := Result{
		SessionID: s.ID,
		Game:      s.Game,
		Player:    s.Player,
		Score:     s.score,
		Duration:  r.now().Sub(s.Started),
		Completed: s.completed,
		Perfect:   !s.damaged && (s.completed || s.score > 0),
	}
	blocks, powerUps := s.blocks, s.powerUps
	s.mu.Unlock()

	var errs []error
	if lb := r.progress.Leaderboard; lb != nil {
		entry, err := lb.Add(res.Player, res.Score, res.Game.Title())
		errs = append(errs, err)
		res.Entry = entry
	}
	errs = append(errs, r.recordAchievements(res))
	errs = append(errs, r.recordChallenges(res, blocks, powerUps))
	errs = append(errs, r.recordSave(res, powerUps))

	r.logger.Info("session finished",
		"session", res.SessionID,
		"game", res.Game,
		"player", res.Player,
		"score", res.Score,
		"duration", res.Duration.Round(time.Millisecond),
		"rank", res.Entry.Rank,
	)
	return res, errors.Join(errs...)
}

func (r *Reporter) recordAchievements(res Result) error {
	a := r.progress.Achievements
	if a == nil {
		return nil
	}
	var errs []error
	_, err := a.Unlock(persist.AchievementFirstGame)
	errs = append(errs, err)

	secs := int(res.Duration.Seconds())
	switch res.Game {
	case GameSnake:
		errs = append(errs, raiseAchievement(a, persist.AchievementSnakeMaster, res.Score))
		if res.Score >= snakeMasterScore {
			_, err = a.Unlock(persist.AchievementSnakeMaster)
			errs = append(errs, err)
		}
	case GameBreaker:
		errs = append(errs, raiseAchievement(a, persist.AchievementBreakerPro, res.Score))
		if res.Score >= breakerProScore {
			_, err = a.Unlock(persist.AchievementBreakerPro)
			errs = append(errs, err)
		}
	case GameMemory:
		if res.Completed && secs <= memoryChampionSecs {
			_, err = a.Unlock(persist.AchievementMemoryChampion)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// raiseAchievement moves progress up to v, never down.
func raiseAchievement(a *persist.Achievements, id string, v int) error {
	_, err := a.Raise(id, v)
	return err
}

func (r *Reporter) recordChallenges(res Result, blocks, powerUps int) error {
	c := r.progress.Challenges
	if c == nil {
		return nil
	}
	var errs []error
	secs := int(res.Duration.Seconds())
	switch res.Game {
	case GameSnake:
		errs = append(errs, r.advanceChallenge(persist.ChallengeSnakeScore, res.Score, false))
	case GameBreaker:
		errs = append(errs, r.advanceChallenge(persist.ChallengeBreakerBlocks, blocks, true))
	case GameMemory:
		if res.Completed && secs <= memorySpeedSecs {
			errs = append(errs, r.completeChallenge(persist.ChallengeMemorySpeed))
		}
	}
	if powerUps > 0 {
		errs = append(errs, r.advanceChallenge(persist.ChallengePowerUpCollector, powerUps, true))
	}
	if res.Perfect {
		errs = append(errs, r.completeChallenge(persist.ChallengePerfectGame))
	}
	return errors.Join(errs...)
}

// advanceChallenge sets or adds progress. The reward is paid by the
// completion hook.
func (r *Reporter) advanceChallenge(id string, v int, add bool) error {
	return r.progress.Challenges.Advance(id, v, add)
}

// completeChallenge completes id; the reward is paid once by the hook.
func (r *Reporter) completeChallenge(id string) error {
	return r.progress.Challenges.Complete(id)
}

func (r *Reporter) recordSave(res Result, powerUps int) error {
	saves := r.progress.Saves
	if saves == nil {
		return nil
	}
	err := saves.Update(func(g *persist.GameSave) {
		g.GamesPlayed++
		g.TotalPlayTime += int(res.Duration.Seconds())
		g.PowerUpsCollected += powerUps
		if title := res.Game.Title(); res.Score > g.HighScores[title] {
			g.HighScores[title] = res.Score
		}
	})
	if errors.Is(err, persist.ErrNoCurrentSave) {
		return nil
	}
	return err
}

// =============================================================================
// Repairs and Characters
// =============================================================================

// RepairBonus is the stability restored by finishing a repair at level.
func RepairBonus(level int) float64 {
	return 25 + 10*float64(max(level, 1))
}

// CompleteRepair records a finished repair puzzle.
//
// # Inputs
//
//   - level: Repair level, 1 or more.
//   - accuracy: Percentage of fragments placed correctly.
//   - took: Time spent on the puzzle.
func (r *Reporter) CompleteRepair(level int, accuracy float64, took time.Duration) error {
	r.mutator.RepairStability(RepairBonus(level))

	var errs []error
	if a := r.progress.Achievements; a != nil {
		_, err := a.Increment(persist.AchievementRepairApprentice, 1)
		errs = append(errs, err)
		if accuracy >= perfectAccuracy {
			_, err = a.Unlock(persist.AchievementForgeMaster)
			errs = append(errs, err)
		}
	}
	if r.progress.Challenges != nil && took < quickRepairLimit {
		errs = append(errs, r.advanceChallenge(persist.ChallengeRepairSpeed, 1, true))
	}
	if saves := r.progress.Saves; saves != nil {
		err := saves.Update(func(g *persist.GameSave) { g.RepairsCompleted++ })
		if !errors.Is(err, persist.ErrNoCurrentSave) {
			errs = append(errs, err)
		}
	}
	r.logger.Info("repair completed", "level", level, "accuracy", accuracy, "took", took.Round(time.Second))
	return errors.Join(errs...)
}

// SelectCharacter records that name was picked on the character screen
// and returns how many distinct characters have been picked.
func (r *Reporter) SelectCharacter(name string) (int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("character name is required")
	}
	r.mu.Lock()
	r.characters[name] = struct{}{}
	n := len(r.characters)
	r.mu.Unlock()

	if a := r.progress.Achievements; a != nil {
		return n, raiseAchievement(a, persist.AchievementCharacterCollector, n)
	}
	return n, nil
}
