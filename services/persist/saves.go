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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// MaxSaveSlots is the number of save slots, numbered from 1.
	MaxSaveSlots = 3

	// SaveVersion is written into every new save.
	SaveVersion = "1.0.0"
)

// DefaultCharacters are unlocked in every new save.
var DefaultCharacters = []string{"WRECK-IT RALPH", "VENELLOPE", "FIX-IT FELIX"}

// GameSave is the persisted progress of one player.
type GameSave struct {
	ID                 string         `json:"id" validate:"required"`
	PlayerName         string         `json:"playerName" validate:"required,max=32"`
	Timestamp          time.Time      `json:"timestamp"`
	Stability          float64        `json:"stability" validate:"gte=0,lte=100"`
	UnlockedCharacters []string       `json:"unlockedCharacters"`
	Achievements       []string       `json:"achievements"`
	HighScores         map[string]int `json:"highScores"`
	TotalPlayTime      int            `json:"totalPlayTime" validate:"gte=0"`
	ChaosLevel         float64        `json:"chaosLevel"`
	PowerUpsCollected  int            `json:"powerUpsCollected" validate:"gte=0"`
	RepairsCompleted   int            `json:"repairsCompleted" validate:"gte=0"`
	GamesPlayed        int            `json:"gamesPlayed" validate:"gte=0"`
	Version            string         `json:"version" validate:"required"`
}

// clone deep-copies the slices and map so callers cannot alias store state.
func (g GameSave) clone() GameSave {
	g.UnlockedCharacters = append([]string(nil), g.UnlockedCharacters...)
	g.Achievements = append([]string(nil), g.Achievements...)
	g.HighScores = maps.Clone(g.HighScores)
	return g
}

// NewGameSave returns a fresh save for playerName.
func NewGameSave(playerName string, now time.Time) GameSave {
	return GameSave{
		ID:                 "save-" + uuid.NewString(),
		PlayerName:         playerName,
		Timestamp:          now,
		Stability:          85,
		UnlockedCharacters: append([]string(nil), DefaultCharacters...),
		Achievements:       []string{},
		HighScores:         map[string]int{},
		Version:            SaveVersion,
	}
}

// SaveSlot is one numbered slot and its save, if any.
type SaveSlot struct {
	Slot  int       `json:"slot"`
	Save  *GameSave `json:"save,omitempty"`
	Empty bool      `json:"isEmpty"`
}

// =============================================================================
// SaveSlots Store
// =============================================================================

// SaveSlots manages the fixed save slots and the currently loaded save.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type SaveSlots struct {
	mu       sync.Mutex
	store    Store
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	slots   [MaxSaveSlots + 1]*GameSave // index 0 unused
	current int
}

// NewSaveSlots loads every slot and the current slot marker. Unparsable
// slots load as empty.
func NewSaveSlots(store Store, logger *slog.Logger) *SaveSlots {
	s := &SaveSlots{
		store:    store,
		logger:   loggerOrDefault(logger).With("store", "saves"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for n := 1; n <= MaxSaveSlots; n++ {
		var g GameSave
		if loadJSON(store, SaveSlotKey(n), &g, s.logger) {
			s.slots[n] = &g
		}
	}
	if raw, ok, err := store.Get(KeyCurrentSaveSlot); err == nil && ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && validSlot(n) && s.slots[n] != nil {
			s.current = n
		}
	}
	return s
}

func validSlot(n int) bool {
	return n >= 1 && n <= MaxSaveSlots
}

func checkSlot(n int) error {
	if !validSlot(n) {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidSlot, n, MaxSaveSlots)
	}
	return nil
}

// Slots returns every slot in order.
func (s *SaveSlots) Slots() []SaveSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SaveSlot, 0, MaxSaveSlots)
	for n := 1; n <= MaxSaveSlots; n++ {
		slot := SaveSlot{Slot: n, Empty: s.slots[n] == nil}
		if g := s.slots[n]; g != nil {
			c := g.clone()
			slot.Save = &c
		}
		out = append(out, slot)
	}
	return out
}

// Current returns the loaded save.
func (s *SaveSlots) Current() (GameSave, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == 0 {
		return GameSave{}, false
	}
	return s.slots[s.current].clone(), true
}

// CurrentSlot returns the loaded slot number, or 0.
func (s *SaveSlots) CurrentSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Create writes a new save for playerName into slot and loads it,
// replacing whatever the slot held.
func (s *SaveSlots) Create(slot int, playerName string) (GameSave, error) {
	if err := checkSlot(slot); err != nil {
		return GameSave{}, err
	}
	g := NewGameSave(strings.TrimSpace(playerName), s.now())
	if err := s.validate.Struct(g); err != nil {
		return GameSave{}, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(slot, &g); err != nil {
		return GameSave{}, err
	}
	if err := s.setCurrentLocked(slot); err != nil {
		return GameSave{}, err
	}
	s.logger.Info("save created", "slot", slot, "player", g.PlayerName)
	return g.clone(), nil
}

// Load makes slot the current save.
func (s *SaveSlots) Load(slot int) (GameSave, error) {
	if err := checkSlot(slot); err != nil {
		return GameSave{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[slot] == nil {
		return GameSave{}, fmt.Errorf("%w: %d", ErrEmptySlot, slot)
	}
	if err := s.setCurrentLocked(slot); err != nil {
		return GameSave{}, err
	}
	return s.slots[slot].clone(), nil
}

// Save rewrites the current save with a fresh timestamp.
func (s *SaveSlots) Save() error {
	return s.Update(func(*GameSave) {})
}

// Update applies fn to the current save, stamps it and persists it.
func (s *SaveSlots) Update(fn func(*GameSave)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == 0 {
		return ErrNoCurrentSave
	}
	g := s.slots[s.current].clone()
	fn(&g)
	g.Timestamp = s.now()
	return s.writeLocked(s.current, &g)
}

// Delete empties slot, unloading it if it was current.
func (s *SaveSlots) Delete(slot int) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(SaveSlotKey(slot)); err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	s.slots[slot] = nil
	if s.current == slot {
		s.current = 0
		if err := s.store.Delete(KeyCurrentSaveSlot); err != nil {
			return fmt.Errorf("clear current slot: %w", err)
		}
	}
	return nil
}

// Export encodes the save in slot as base64 JSON.
func (s *SaveSlots) Export(slot int) (string, error) {
	if err := checkSlot(slot); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.slots[slot]
	if g == nil {
		return "", fmt.Errorf("%w: %d", ErrEmptySlot, slot)
	}
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode save: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Import decodes base64 JSON produced by Export and writes it into slot.
// The save must carry an id, a player name and a version.
func (s *SaveSlots) Import(data string, slot int) (GameSave, error) {
	if err := checkSlot(slot); err != nil {
		return GameSave{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return GameSave{}, fmt.Errorf("%w: decode: %v", ErrInvalidSave, err)
	}
	var g GameSave
	if err := json.Unmarshal(raw, &g); err != nil {
		return GameSave{}, fmt.Errorf("%w: parse: %v", ErrInvalidSave, err)
	}
	if err := s.validate.Struct(g); err != nil {
		return GameSave{}, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if g.HighScores == nil {
		g.HighScores = map[string]int{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(slot, &g); err != nil {
		return GameSave{}, err
	}
	s.logger.Info("save imported", "slot", slot, "player", g.PlayerName, "version", g.Version)
	return g.clone(), nil
}

func (s *SaveSlots) writeLocked(slot int, g *GameSave) error {
	if err := saveJSON(s.store, SaveSlotKey(slot), g); err != nil {
		return err
	}
	s.slots[slot] = g
	return nil
}

func (s *SaveSlots) setCurrentLocked(slot int) error {
	if err := s.store.Set(KeyCurrentSaveSlot, strconv.Itoa(slot)); err != nil {
		return fmt.Errorf("write current slot: %w", err)
	}
	s.current = slot
	return nil
}
