// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ArcadeVerse/services/chaos"
)

func noEnv() []string { return nil }

// TestLoad_FirstRunCreatesDefault verifies the file is written on first run.
func TestLoad_FirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arcadeverse.yaml")
	var notice bytes.Buffer

	cfg, err := Loader{Path: path, Notice: &notice, Environ: noEnv}.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !strings.Contains(notice.String(), "First run") {
		t.Errorf("notice = %q, want first-run message", notice.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if cfg.Session.InitialStability != 85 {
		t.Errorf("InitialStability = %v, want 85", cfg.Session.InitialStability)
	}
	if cfg.Scheduler.CalmInterval != 3*time.Second {
		t.Errorf("CalmInterval = %v, want 3s", cfg.Scheduler.CalmInterval)
	}

	// Second load reads the file without a notice.
	notice.Reset()
	if _, err := (Loader{Path: path, Notice: &notice, Environ: noEnv}).Load(); err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if notice.Len() != 0 {
		t.Errorf("unexpected notice on second load: %q", notice.String())
	}
}

// TestCreateDefault_RoundTrips verifies durations are written readably.
func TestCreateDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcadeverse.yaml")
	if err := createDefault(path); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "calm_interval: 3s") {
		t.Errorf("durations should be strings, got:\n%s", data)
	}

	var cfg ArcadeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Storage.Driver != "badger" {
		t.Errorf("Storage.Driver = %q, want badger", cfg.Storage.Driver)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arcadeverse.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoad_PartialFileKeepsDefaults verifies missing keys fall back.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  calm_interval: 5s\nstorage:\n  driver: memory\n")

	cfg, err := Loader{Path: path, Environ: noEnv}.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Scheduler.CalmInterval != 5*time.Second {
		t.Errorf("CalmInterval = %v, want 5s", cfg.Scheduler.CalmInterval)
	}
	if cfg.Scheduler.ChaosInterval != time.Second {
		t.Errorf("ChaosInterval = %v, want default 1s", cfg.Scheduler.ChaosInterval)
	}
	if cfg.Server.Addr != "127.0.0.1:8088" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

// TestLoad_EnvOverridesFile verifies ARCADEVERSE_* wins over YAML.
func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  calm_interval: 5s\nlogging:\n  level: info\n")
	environ := func() []string {
		return []string{
			"ARCADEVERSE_SCHEDULER_CALM_INTERVAL=7s",
			"ARCADEVERSE_SCHEDULER_SEED=42",
			"ARCADEVERSE_LOG_LEVEL=debug",
			"ARCADEVERSE_STORAGE_DRIVER=sqlite",
			"ARCADEVERSE_STORAGE_PATH=/tmp/arcade.db",
			"ARCADEVERSE_SESSION_UNIVERSE=SUGAR_RUSH",
			"UNRELATED=1",
		}
	}

	cfg, err := Loader{Path: path, Environ: environ}.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Scheduler.CalmInterval != 7*time.Second {
		t.Errorf("CalmInterval = %v, want 7s", cfg.Scheduler.CalmInterval)
	}
	if cfg.Scheduler.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Scheduler.Seed)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/arcade.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if got := cfg.Universe(); got != "SUGAR_RUSH" {
		t.Errorf("Universe() = %q, want SUGAR_RUSH", got)
	}
}

// TestLoad_Invalid verifies validation and parse failures are reported.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  []string
	}{
		{"stability out of range", "session:\n  initial_stability: 120\n", nil},
		{"zero interval", "scheduler:\n  chaos_interval: 0s\n", nil},
		{"chance above one", "scheduler:\n  escalation_chance: 1.5\n", nil},
		{"unknown driver", "storage:\n  driver: postgres\n", nil},
		{"badger without path", "storage:\n  driver: badger\n  path: \"\"\n", nil},
		{"unknown level", "logging:\n  level: loud\n", nil},
		{"unknown exporter", "telemetry:\n  trace_exporter: jaeger\n", nil},
		{"otlp without endpoint", "telemetry:\n  trace_exporter: otlp\n  otlp_endpoint: \"\"\n", nil},
		{"negative mutation rate", "server:\n  mutation_rate: -1\n", nil},
		{"unknown universe", "session:\n  universe: TAPPER\n", nil},
		{"malformed yaml", "scheduler: [\n", nil},
		{"bad env duration", "", []string{"ARCADEVERSE_SCHEDULER_CALM_INTERVAL=soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			_, err := Loader{Path: path, Environ: func() []string { return tt.env }}.Load()
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
		})
	}
}

// TestLoad_MemoryDriverNeedsNoPath verifies the required_unless rule.
func TestLoad_MemoryDriverNeedsNoPath(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n  path: \"\"\n")
	if _, err := (Loader{Path: path, Environ: noEnv}).Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
}

// TestExpandHome verifies ~ expansion.
func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandHome(~/data) = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
	if got := expandHome("~user/x"); got != "~user/x" {
		t.Errorf("expandHome(~user/x) = %q", got)
	}
}

// TestEngineConfig_ZeroDecaySurvivesStartAndReload verifies a file that
// turns decay and escalation off does so both at start and on reload.
func TestEngineConfig_ZeroDecaySurvivesStartAndReload(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  decay: 0\n  escalation_chance: 0\n")
	cfg, err := Loader{Path: path, Environ: noEnv}.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	e := chaos.New(cfg.EngineConfig(), chaos.WithClock(chaos.NewManualClock(time.Unix(0, 0))))
	defer e.Close()
	started := e.Scheduler().Config()
	if err := e.Scheduler().Retune(cfg.Scheduler.Chaos()); err != nil {
		t.Fatalf("Retune() error = %v", err)
	}
	reloaded := e.Scheduler().Config()

	if started.Decay != 0 || reloaded.Decay != 0 {
		t.Errorf("Decay start=%v reload=%v, want 0 for both", started.Decay, reloaded.Decay)
	}
	if started.EscalationChance != reloaded.EscalationChance {
		t.Errorf("EscalationChance start=%v reload=%v", started.EscalationChance, reloaded.EscalationChance)
	}
}

// TestEngineConfig verifies the conversion into engine tuning.
func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.InitialStability = 60
	cfg.Session.DefaultOutage = 2 * time.Second
	cfg.Scheduler.Decay = 1.5

	ec := cfg.EngineConfig()
	if ec.InitialStability != 60 || ec.DefaultOutage != 2*time.Second {
		t.Errorf("session fields not applied: %+v", ec)
	}
	if ec.Scheduler.Decay != 1.5 {
		t.Errorf("Decay = %v, want 1.5", ec.Scheduler.Decay)
	}
	if err := ec.Scheduler.Validate(); err != nil {
		t.Errorf("converted scheduler config invalid: %v", err)
	}
	if cfg.LogLevel().String() != "INFO" {
		t.Errorf("LogLevel() = %v, want INFO", cfg.LogLevel())
	}
}

// TestWatch_ReloadsOnChange verifies edits reach onChange and invalid edits
// are skipped.
func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  calm_interval: 5s\n")
	loader := Loader{Path: path, Environ: noEnv}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan ArcadeConfig, 4)
	done := make(chan error, 1)
	go func() {
		done <- loader.Watch(ctx, logger, func(c ArcadeConfig) { changes <- c })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("scheduler:\n  calm_interval: 0s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * reloadDebounce)
	if err := os.WriteFile(path, []byte("scheduler:\n  calm_interval: 9s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Scheduler.CalmInterval != 9*time.Second {
			t.Errorf("CalmInterval = %v, want 9s", c.Scheduler.CalmInterval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
