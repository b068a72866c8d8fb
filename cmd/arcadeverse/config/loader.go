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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// ARCADEVERSE_SCHEDULER_CALM_INTERVAL=5s.
const EnvPrefix = "ARCADEVERSE_"

// DefaultPath returns ~/.arcadeverse/arcadeverse.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".arcadeverse", "arcadeverse.yaml"), nil
}

// Loader reads configuration from one file plus the environment.
type Loader struct {
	// Path is the YAML file. Empty means DefaultPath.
	Path string

	// Notice receives the first-run message. Nil discards it.
	Notice io.Writer

	// Environ supplies the environment. Nil means os.Environ.
	Environ func() []string
}

// Load reads, overrides and validates the configuration, creating the file
// with defaults if it does not exist.
func (l Loader) Load() (ArcadeConfig, error) {
	path, err := l.path()
	if err != nil {
		return ArcadeConfig{}, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if l.Notice != nil {
			fmt.Fprintf(l.Notice, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return ArcadeConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ArcadeConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := l.parse(data)
	if err != nil {
		return ArcadeConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ResolvedPath returns the file Load reads.
func (l Loader) ResolvedPath() (string, error) { return l.path() }

func (l Loader) path() (string, error) {
	if l.Path != "" {
		return expandHome(l.Path), nil
	}
	return DefaultPath()
}

// parse layers data and the environment over the defaults.
func (l Loader) parse(data []byte) (ArcadeConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ArcadeConfig{}, fmt.Errorf("failed to parse the config: %w", err)
	}

	opts := env.Options{Prefix: EnvPrefix}
	if l.Environ != nil {
		opts.Environment = env.ToMap(l.Environ())
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return ArcadeConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)
	if err := cfg.Validate(); err != nil {
		return ArcadeConfig{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
