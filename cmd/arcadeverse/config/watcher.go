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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events one editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads the file whenever it changes and passes every valid result
// to onChange. Invalid edits are logged and skipped; the last good config
// stays in effect. Watch blocks until ctx ends.
//
// The directory is watched rather than the file so editors that save by
// rename keep being followed.
func (l Loader) Watch(ctx context.Context, logger *slog.Logger, onChange func(ArcadeConfig)) error {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := l.path()
	if err != nil {
		return err
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	logger.Debug("watching config", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)

		case <-pending:
			pending = nil
			cfg, err := l.reload(path)
			if err != nil {
				logger.Warn("ignoring config change", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)
		}
	}
}

// reload reads path without recreating it, since a rename-save can leave
// it briefly missing.
func (l Loader) reload(path string) (ArcadeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ArcadeConfig{}, err
	}
	return l.parse(data)
}
