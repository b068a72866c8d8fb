// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist stores arcade progress (achievements, save slots, daily
// challenges and the leaderboard) as JSON strings in a key-value Store.
//
// The chaos engine never touches this package. Progress stores read their
// key once at construction; a missing or unparsable value is logged at warn
// and replaced by the default state.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Storage keys.
const (
	KeyAchievements     = "arcade-achievements"
	KeyCurrentSaveSlot  = "arcade-current-save-slot"
	KeyDailyChallenges  = "arcade-daily-challenges"
	KeyLeaderboard      = "arcade-leaderboard"
	saveSlotKeyTemplate = "arcade-save-slot-%d"
)

// SaveSlotKey returns the key holding save slot n.
func SaveSlotKey(n int) string {
	return fmt.Sprintf(saveSlotKeyTemplate, n)
}

// Sentinel errors.
var (
	ErrClosed             = errors.New("store is closed")
	ErrInvalidSlot        = errors.New("invalid save slot")
	ErrEmptySlot          = errors.New("save slot is empty")
	ErrNoCurrentSave      = errors.New("no save is loaded")
	ErrInvalidSave        = errors.New("invalid save data")
	ErrUnknownAchievement = errors.New("unknown achievement")
	ErrUnknownChallenge   = errors.New("unknown challenge")
)

// Store is a synchronous string key-value store.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStore keeps values in a map. It is the default for ephemeral
// sessions and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// =============================================================================
// Driver Selection
// =============================================================================

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// StorageConfig selects and configures a backend.
type StorageConfig struct {
	Driver string
	Path   string
	Logger *slog.Logger
}

// Open returns the Store named by cfg.Driver. An empty driver selects
// memory.
func Open(cfg StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverBadger:
		bc := DefaultBadgerConfig()
		bc.Path = cfg.Path
		bc.Logger = cfg.Logger
		return OpenBadger(bc)
	case DriverSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// =============================================================================
// JSON Helpers
// =============================================================================

// loadJSON decodes key into v. It reports false when the key is missing,
// unreadable or malformed; the latter two are logged at warn.
func loadJSON(store Store, key string, v any, logger *slog.Logger) bool {
	raw, ok, err := store.Get(key)
	if err != nil {
		logger.Warn("failed to read stored progress", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logger.Warn("failed to parse stored progress, using defaults", "key", key, "error", err)
		return false
	}
	return true
}

func saveJSON(store Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
