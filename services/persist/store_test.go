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
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh store per driver.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	bs, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)

	ss, err := OpenSQLite(filepath.Join(t.TempDir(), "arcade.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		DriverMemory: NewMemoryStore(),
		DriverBadger: bs,
		DriverSQLite: ss,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(KeyLeaderboard, `[1]`))
			require.NoError(t, store.Set(KeyLeaderboard, `[2]`))

			v, ok, err := store.Get(KeyLeaderboard)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[2]`, v)

			require.NoError(t, store.Delete(KeyLeaderboard))
			require.NoError(t, store.Delete(KeyLeaderboard), "deleting a missing key is not an error")

			_, ok, err = store.Get(KeyLeaderboard)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_ClosedReturnsErrClosed(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Close())

			_, _, err := store.Get("k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, store.Set("k", "v"), ErrClosed)
		})
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig()
	cfg.Path = dir

	s, err := OpenBadger(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Set(SaveSlotKey(2), `{"id":"x"}`))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	s2, err := OpenBadger(cfg)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(SaveSlotKey(2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"x"}`, v)
	assert.Equal(t, dir, s2.Path())
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arcade.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAchievements, `[]`))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(KeyAchievements)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)
}

func TestOpenSQLite_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a", "b"))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestOpen_Drivers(t *testing.T) {
	s, err := Open(StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(StorageConfig{Driver: "SQLite", Path: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(StorageConfig{Driver: DriverBadger, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(StorageConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestSaveSlotKey(t *testing.T) {
	assert.Equal(t, "arcade-save-slot-1", SaveSlotKey(1))
	assert.Equal(t, "arcade-save-slot-3", SaveSlotKey(3))
}

func TestLoadJSON_MalformedLogsAndFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	store := NewMemoryStore()
	require.NoError(t, store.Set(KeyAchievements, "{not json"))

	var v []Achievement
	assert.False(t, loadJSON(store, KeyAchievements, &v, logger))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), KeyAchievements)
}
