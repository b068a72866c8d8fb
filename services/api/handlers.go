// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a chaos session over HTTP: read and mutate the
// shared state, stream snapshots over a websocket, play mini-game sessions
// and read progress.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

// Version is reported by /health.
var Version = "dev"

// Trigger names accepted by POST /v1/triggers/:name.
const (
	TriggerTornado          = "tornado"
	TriggerPowerOutage      = "power-outage"
	TriggerZeroGravity      = "zero-gravity"
	TriggerContinuousGlitch = "continuous-glitch"
	TriggerLogout           = "logout"
	TriggerChaoticLogout    = "chaotic-logout"
)

// MaxOpenSessions caps the game sessions a server keeps in memory.
const MaxOpenSessions = 256

// Handlers serves the API for one engine.
type Handlers struct {
	engine   *chaos.Engine
	progress arcade.Progress
	reporter *arcade.Reporter
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*arcade.Session
	limiter  *rate.Limiter
}

// NewHandlers builds handlers. reporter may be nil, which disables the
// session endpoints.
func NewHandlers(engine *chaos.Engine, progress arcade.Progress, reporter *arcade.Reporter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:   engine,
		progress: progress,
		reporter: reporter,
		logger:   logger.With("component", "api"),
		sessions: make(map[string]*arcade.Session),
	}
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func stateOf(s chaos.Snapshot) StateResponse {
	events := s.ActiveEvents()
	if events == nil {
		events = []string{}
	}
	return StateResponse{Snapshot: s, ActiveEvents: events, Critical: s.Critical()}
}

// =============================================================================
// State
// =============================================================================

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     Version,
		Subscribers: h.engine.Subscribers(),
	})
}

// HandleState handles GET /v1/state.
func (h *Handlers) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// HandleRepair handles POST /v1/stability/repair.
func (h *Handlers) HandleRepair(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.engine.RepairStability(req.Amount)
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// HandleDamage handles POST /v1/stability/damage.
func (h *Handlers) HandleDamage(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.engine.DamageStability(req.Amount)
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// HandleChaos handles PUT /v1/chaos.
func (h *Handlers) HandleChaos(c *gin.Context) {
	var req ChaosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.engine.SetChaosMode(*req.Enabled)
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// HandleUniverse handles PUT /v1/universe.
func (h *Handlers) HandleUniverse(c *gin.Context) {
	var req UniverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	u, err := chaos.ParseUniverse(req.Universe)
	if err != nil {
		abort(c, http.StatusBadRequest, "unknown_universe", err)
		return
	}
	h.engine.SetUniverse(u)
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// HandleTrigger handles POST /v1/triggers/:name. power-outage accepts an
// optional duration_ms body.
func (h *Handlers) HandleTrigger(c *gin.Context) {
	name := c.Param("name")
	switch name {
	case TriggerTornado:
		h.engine.TriggerTornado()
	case TriggerPowerOutage:
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abort(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		h.engine.TriggerPowerOutage(time.Duration(req.DurationMS) * time.Millisecond)
	case TriggerZeroGravity:
		h.engine.ToggleZeroGravity()
	case TriggerContinuousGlitch:
		h.engine.ToggleContinuousGlitch()
	case TriggerLogout:
		h.engine.TriggerLogoutSequence()
	case TriggerChaoticLogout:
		h.engine.TriggerChaoticLogout()
	default:
		abort(c, http.StatusNotFound, "unknown_trigger", errors.New("unknown trigger "+strconv.Quote(name)))
		return
	}
	h.logger.Info("trigger fired", "trigger", name, "remote", c.ClientIP())
	c.JSON(http.StatusOK, stateOf(h.engine.Snapshot()))
}

// =============================================================================
// Progress
// =============================================================================

// HandleLeaderboard handles GET /v1/leaderboard?limit=n.
func (h *Handlers) HandleLeaderboard(c *gin.Context) {
	if h.progress.Leaderboard == nil {
		c.JSON(http.StatusOK, LeaderboardResponse{Entries: []persist.LeaderboardEntry{}})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, LeaderboardResponse{Entries: h.progress.Leaderboard.Top(limit)})
}

// HandleAchievements handles GET /v1/achievements.
func (h *Handlers) HandleAchievements(c *gin.Context) {
	a := h.progress.Achievements
	if a == nil {
		c.JSON(http.StatusOK, AchievementsResponse{Achievements: []persist.Achievement{}})
		return
	}
	c.JSON(http.StatusOK, AchievementsResponse{
		Achievements: a.List(),
		Unlocked:     a.UnlockedCount(),
		Total:        a.TotalCount(),
	})
}

// HandleChallenges handles GET /v1/challenges.
func (h *Handlers) HandleChallenges(c *gin.Context) {
	ch := h.progress.Challenges
	if ch == nil {
		c.JSON(http.StatusOK, ChallengesResponse{Challenges: []persist.Challenge{}})
		return
	}
	c.JSON(http.StatusOK, ChallengesResponse{
		Challenges:   ch.List(),
		Completed:    ch.CompletedCount(),
		RewardPoints: ch.TotalRewardPoints(),
	})
}

// =============================================================================
// Game Sessions
// =============================================================================

// HandleStartSession handles POST /v1/sessions.
func (h *Handlers) HandleStartSession(c *gin.Context) {
	if h.reporter == nil {
		abort(c, http.StatusNotImplemented, "sessions_disabled", errors.New("game sessions are disabled"))
		return
	}
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	game, err := arcade.ParseGame(req.Game)
	if err != nil {
		abort(c, http.StatusBadRequest, "unknown_game", err)
		return
	}

	s, err := h.reporter.Start(game, req.Player)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.mu.Lock()
	full := len(h.sessions) >= MaxOpenSessions
	if !full {
		h.sessions[s.ID] = s
	}
	h.mu.Unlock()
	if full {
		abort(c, http.StatusTooManyRequests, "too_many_sessions",
			fmt.Errorf("%d sessions already open, finish one first", MaxOpenSessions))
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{ID: s.ID, Game: s.Game, Player: s.Player})
}

func (h *Handlers) session(c *gin.Context) (*arcade.Session, bool) {
	h.mu.Lock()
	s, ok := h.sessions[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		abort(c, http.StatusNotFound, "unknown_session", errors.New("session not found"))
	}
	return s, ok
}

// HandleSessionEvent handles POST /v1/sessions/:id/events.
func (h *Handlers) HandleSessionEvent(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := s.Record(arcade.Event{Type: req.Type, Points: req.Points}); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, arcade.ErrSessionFinished) {
			status = http.StatusConflict
		}
		abort(c, status, "event_rejected", err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{ID: s.ID, Game: s.Game, Player: s.Player, Score: s.Score()})
}

// HandleFinishSession handles POST /v1/sessions/:id/finish. The optional
// body marks the game completed.
func (h *Handlers) HandleFinishSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req FinishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Completed {
		s.Complete()
	}
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	res, err := s.Finish()
	if errors.Is(err, arcade.ErrSessionFinished) {
		abort(c, http.StatusConflict, "session_finished", err)
		return
	}
	if err != nil {
		// Progress writes failed but the session result stands.
		h.logger.Error("failed to record session progress", "session", s.ID, "error", err)
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, res)
}

// =============================================================================
// Repairs and Characters
// =============================================================================

// HandleRepairComplete handles POST /v1/repairs.
func (h *Handlers) HandleRepairComplete(c *gin.Context) {
	if h.reporter == nil {
		abort(c, http.StatusNotImplemented, "sessions_disabled", errors.New("game sessions are disabled"))
		return
	}
	var req RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	took := time.Duration(req.TookMS) * time.Millisecond
	if err := h.reporter.CompleteRepair(req.Level, req.Accuracy, took); err != nil {
		h.logger.Error("failed to record repair progress", "error", err)
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, RepairResponse{
		Bonus: arcade.RepairBonus(req.Level),
		State: stateOf(h.engine.Snapshot()),
	})
}

// HandleSelectCharacter handles POST /v1/characters.
func (h *Handlers) HandleSelectCharacter(c *gin.Context) {
	if h.reporter == nil {
		abort(c, http.StatusNotImplemented, "sessions_disabled", errors.New("game sessions are disabled"))
		return
	}
	var req CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	n, err := h.reporter.SelectCharacter(req.Name)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	c.JSON(http.StatusOK, CharacterResponse{Name: strings.ToUpper(strings.TrimSpace(req.Name)), Selected: n})
}
