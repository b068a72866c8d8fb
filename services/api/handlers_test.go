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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testAPI struct {
	engine   *chaos.Engine
	clock    *chaos.ManualClock
	handlers *Handlers
	router   *gin.Engine
	progress arcade.Progress
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	clock := chaos.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	engine := chaos.New(chaos.DefaultConfig(),
		chaos.WithClock(clock),
		chaos.WithSeed(1),
		chaos.WithLogger(quiet),
		chaos.WithMetrics(chaos.NewMetrics(reg)),
	)
	t.Cleanup(func() { _ = engine.Close() })

	store := persist.NewMemoryStore()
	progress := arcade.Progress{
		Achievements: persist.NewAchievements(store, quiet),
		Challenges:   persist.NewChallenges(store, quiet),
		Leaderboard:  persist.NewLeaderboard(store, quiet, rand.New(rand.NewPCG(1, 2))),
	}
	reporter := arcade.NewReporter(engine, progress, quiet)
	h := NewHandlers(engine, progress, reporter, quiet)
	return &testAPI{engine: engine, clock: clock, handlers: h, router: NewRouter(h, reg), progress: progress}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// State
// =============================================================================

func TestHandleHealth(t *testing.T) {
	a := setupTestAPI(t)
	w := a.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestHandleState(t *testing.T) {
	a := setupTestAPI(t)
	w := a.do(t, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, 85.0, raw["stability"])
	assert.Equal(t, false, raw["is_chaos_mode"])
	assert.InDelta(t, 0.15, raw["glitch_intensity"], 1e-9)
	assert.Equal(t, "DEFAULT", raw["current_universe"])
	assert.Equal(t, []any{}, raw["active_events"])
}

func TestHandleRepairAndDamage(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/stability/repair", `{"amount":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, decode[StateResponse](t, w).Stability)

	w = a.do(t, http.MethodPost, "/v1/stability/damage", `{"amount":95}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	assert.Equal(t, 5.0, resp.Stability)
	assert.True(t, resp.Critical)
}

func TestHandleRepair_Validation(t *testing.T) {
	a := setupTestAPI(t)
	for _, body := range []string{`{}`, `{"amount":0}`, `{"amount":-5}`, `{"amount":500}`, `nope`} {
		w := a.do(t, http.MethodPost, "/v1/stability/repair", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid_request", decode[ErrorResponse](t, w).Code, body)
	}
	assert.Equal(t, 85.0, a.engine.Snapshot().Stability)
}

func TestHandleChaos(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPut, "/v1/chaos", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	assert.True(t, resp.ChaosMode)
	assert.Equal(t, 1.0, resp.GlitchIntensity)

	w = a.do(t, http.MethodPut, "/v1/chaos", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUniverse(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPut, "/v1/universe", `{"universe":"sugar-rush"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chaos.UniverseSugarRush, decode[StateResponse](t, w).Universe)

	w = a.do(t, http.MethodPut, "/v1/universe", `{"universe":"TRON"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_universe", decode[ErrorResponse](t, w).Code)
}

func TestHandleTrigger(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/triggers/tornado", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	assert.True(t, resp.Tornado)
	assert.Contains(t, resp.ActiveEvents, "tornado")

	a.clock.Advance(2 * time.Second)
	assert.False(t, a.engine.Snapshot().Tornado)

	w = a.do(t, http.MethodPost, "/v1/triggers/zero-gravity", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StateResponse](t, w).ZeroGravity)

	w = a.do(t, http.MethodPost, "/v1/triggers/continuous-glitch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StateResponse](t, w).ContinuousGlitch)

	w = a.do(t, http.MethodPost, "/v1/triggers/bogus", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_trigger", decode[ErrorResponse](t, w).Code)
}

func TestHandleTrigger_PowerOutageDuration(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/triggers/power-outage", `{"duration_ms":1500}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	require.True(t, resp.PowerOutage)
	assert.True(t, a.clock.Now().Add(1500*time.Millisecond).Equal(resp.PowerOutageUntil))

	a.clock.Advance(1500 * time.Millisecond)
	assert.False(t, a.engine.Snapshot().PowerOutage)

	// no body uses the default duration
	w = a.do(t, http.MethodPost, "/v1/triggers/power-outage", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, a.clock.Now().Add(5*time.Second).Equal(decode[StateResponse](t, w).PowerOutageUntil))

	w = a.do(t, http.MethodPost, "/v1/triggers/power-outage", `{"duration_ms":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTrigger_Logout(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/triggers/chaotic-logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	assert.True(t, resp.ChaosMode)
	assert.True(t, resp.ZeroGravity)
	assert.False(t, resp.LoggingOut)

	a.clock.Advance(2 * time.Second)
	assert.True(t, a.engine.Snapshot().LoggingOut)

	w = a.do(t, http.MethodPost, "/v1/triggers/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StateResponse](t, w).LoggingOut)
}

func TestHandleMetrics(t *testing.T) {
	a := setupTestAPI(t)
	a.engine.TriggerTornado()

	w := a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "arcadeverse_chaos_stability")
	assert.Contains(t, body, `arcadeverse_chaos_events_total{event="tornado",source="trigger"} 1`)
}

// =============================================================================
// Progress and Sessions
// =============================================================================

func TestHandleLeaderboard(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodGet, "/v1/leaderboard?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[LeaderboardResponse](t, w)
	require.Len(t, resp.Entries, 5)
	assert.Equal(t, 1, resp.Entries[0].Rank)

	w = a.do(t, http.MethodGet, "/v1/leaderboard", "")
	assert.Len(t, decode[LeaderboardResponse](t, w).Entries, 20)

	w = a.do(t, http.MethodGet, "/v1/leaderboard?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAchievementsAndChallenges(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodGet, "/v1/achievements", "")
	require.Equal(t, http.StatusOK, w.Code)
	ach := decode[AchievementsResponse](t, w)
	assert.Equal(t, 10, ach.Total)
	assert.Len(t, ach.Achievements, 10)

	w = a.do(t, http.MethodGet, "/v1/challenges", "")
	require.Equal(t, http.StatusOK, w.Code)
	ch := decode[ChallengesResponse](t, w)
	assert.Len(t, ch.Challenges, 8)
	assert.Equal(t, 0, ch.RewardPoints)
}

func TestSessionLifecycle(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"snake","player":"RALPH"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[SessionResponse](t, w)
	require.NotEmpty(t, sess.ID)

	base := "/v1/sessions/" + sess.ID
	for i := 0; i < 3; i++ {
		w = a.do(t, http.MethodPost, base+"/events", `{"type":"food"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 30, decode[SessionResponse](t, w).Score)
	assert.Equal(t, 91.0, a.engine.Snapshot().Stability)

	w = a.do(t, http.MethodPost, base+"/events", `{"type":"match"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, base+"/finish", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[arcade.Result](t, w)
	assert.Equal(t, 30, res.Score)
	assert.Positive(t, res.Entry.Rank)

	first, err := a.progress.Achievements.Get(persist.AchievementFirstGame)
	require.NoError(t, err)
	assert.True(t, first.Unlocked)

	w = a.do(t, http.MethodPost, base+"/finish", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSession_Validation(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"pong"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_game", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/v1/sessions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/sessions/nope/events", `{"type":"food"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsDisabledWithoutReporter(t *testing.T) {
	engine := chaos.New(chaos.DefaultConfig(), chaos.WithClock(chaos.NewManualClock(time.Now())), chaos.WithLogger(quiet))
	t.Cleanup(func() { _ = engine.Close() })
	router := NewRouter(NewHandlers(engine, arcade.Progress{}, nil, quiet), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"game":"snake"}`)))
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Stream
// =============================================================================

func TestHandleStream(t *testing.T) {
	a := setupTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.engine.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first StateResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 85.0, first.Stability)

	a.engine.DamageStability(40)

	var next StateResponse
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, 45.0, next.Stability)
	assert.Greater(t, next.Version, first.Version)

	require.NoError(t, a.engine.Close())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestMutationLimit(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"breaker"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/v1/sessions/" + decode[SessionResponse](t, w).ID

	a.handlers.SetMutationLimit(0.001, 2)

	for i := 0; i < 2; i++ {
		w := a.do(t, http.MethodPost, "/v1/stability/damage", `{"amount":5}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	stability := a.engine.Snapshot().Stability

	w = a.do(t, http.MethodPost, "/v1/triggers/tornado", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, w).Code)
	assert.False(t, a.engine.Snapshot().Tornado)

	limited := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/v1/sessions", `{"game":"snake"}`},
		{http.MethodPost, base + "/events", `{"type":"ball_lost"}`},
		{http.MethodPost, base + "/finish", ""},
		{http.MethodPost, "/v1/repairs", `{"level":1}`},
		{http.MethodPost, "/v1/characters", `{"name":"felix"}`},
	}
	for _, tt := range limited {
		for i := 0; i < 3; i++ {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusTooManyRequests, w.Code, tt.path)
		}
	}
	assert.Equal(t, stability, a.engine.Snapshot().Stability)

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/v1/state", "").Code)

	a.handlers.SetMutationLimit(0, 0)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/v1/triggers/tornado", "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, base+"/events", `{"type":"ball_lost"}`).Code)
}

func TestStartSession_OpenSessionCap(t *testing.T) {
	a := setupTestAPI(t)
	for i := 0; i < MaxOpenSessions; i++ {
		w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"snake"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"snake"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too_many_sessions", decode[ErrorResponse](t, w).Code)
}

func TestFinishSession_Completed(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"breaker","player":"FELIX"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/v1/sessions/" + decode[SessionResponse](t, w).ID
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, base+"/events", `{"type":"block_destroyed"}`).Code)

	w = a.do(t, http.MethodPost, base+"/finish", `{"completed":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[arcade.Result](t, w)
	assert.True(t, res.Completed)
	assert.True(t, res.Perfect)

	perfect, err := a.progress.Challenges.Get(persist.ChallengePerfectGame)
	require.NoError(t, err)
	assert.True(t, perfect.Completed)
}

func TestFinishSession_BadBody(t *testing.T) {
	a := setupTestAPI(t)
	w := a.do(t, http.MethodPost, "/v1/sessions", `{"game":"snake"}`)
	base := "/v1/sessions/" + decode[SessionResponse](t, w).ID

	w = a.do(t, http.MethodPost, base+"/finish", `{"completed":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRepairComplete(t *testing.T) {
	a := setupTestAPI(t)
	a.engine.SetStability(20)

	w := a.do(t, http.MethodPost, "/v1/repairs", `{"level":2,"accuracy":90,"took_ms":30000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RepairResponse](t, w)
	assert.Equal(t, 45.0, resp.Bonus)
	assert.Equal(t, 65.0, resp.State.Stability)

	apprentice, err := a.progress.Achievements.Get(persist.AchievementRepairApprentice)
	require.NoError(t, err)
	assert.Equal(t, 1, apprentice.Current)
	speed, err := a.progress.Challenges.Get(persist.ChallengeRepairSpeed)
	require.NoError(t, err)
	assert.Equal(t, 1, speed.Current)

	w = a.do(t, http.MethodPost, "/v1/repairs", `{"level":1,"accuracy":100,"took_ms":1000}`)
	require.Equal(t, http.StatusOK, w.Code)
	forge, err := a.progress.Achievements.Get(persist.AchievementForgeMaster)
	require.NoError(t, err)
	assert.True(t, forge.Unlocked)

	for _, body := range []string{`{}`, `{"level":0}`, `{"level":1,"accuracy":101}`, `{"level":1,"took_ms":-1}`} {
		w = a.do(t, http.MethodPost, "/v1/repairs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestHandleSelectCharacter(t *testing.T) {
	a := setupTestAPI(t)

	var resp CharacterResponse
	for _, name := range []string{"ralph", "Felix", "RALPH"} {
		w := a.do(t, http.MethodPost, "/v1/characters", `{"name":"`+name+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
		resp = decode[CharacterResponse](t, w)
	}
	assert.Equal(t, "RALPH", resp.Name)
	assert.Equal(t, 2, resp.Selected)

	collector, err := a.progress.Achievements.Get(persist.AchievementCharacterCollector)
	require.NoError(t, err)
	assert.Equal(t, 2, collector.Current)

	w := a.do(t, http.MethodPost, "/v1/characters", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
