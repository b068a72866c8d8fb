// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for ArcadeVerse components.
//
// Logs go to stderr by default, optionally to a daily JSON file, and
// optionally to a LogExporter. The TUI uses a RingExporter to show the
// most recent chaos events on screen while stderr output is silenced.
//
//	┌──────────────────────────────────────────────────────┐
//	│                        Logger                        │
//	│  ┌──────────┐   ┌────────────┐   ┌────────────────┐  │
//	│  │  stderr  │   │  log file  │   │  LogExporter   │  │
//	│  │ (Output) │   │  (LogDir)  │   │ (ring, writer) │  │
//	│  └──────────┘   └────────────┘   └────────────────┘  │
//	└──────────────────────────────────────────────────────┘
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelDebug, Service: "arcadeverse"})
//	defer logger.Close()
//	engine := chaos.New(cfg, chaos.WithLogger(logger.Slog()))
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name from config or flags.
// "warning" is accepted as an alias for warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Logger. The zero value logs Info and above to stderr
// as text.
//
// # Fields
//
//   - Level: Minimum level written anywhere.
//   - LogDir: If set, also write JSON lines to {Service}_{date}.log here.
//     "~" is expanded.
//   - Service: Added as a "service" attribute and used in the file name.
//   - JSON: Use JSON instead of text for the console handler.
//   - Quiet: Disable the console handler. The TUI sets this so log lines
//     do not tear the alternate screen.
//   - Output: Console destination. Default: os.Stderr.
//   - Exporter: Optional sink receiving every record.
type Config struct {
	Level    Level
	LogDir   string
	Service  string
	JSON     bool
	Quiet    bool
	Output   io.Writer
	Exporter LogExporter
}

// =============================================================================
// Exporters
// =============================================================================

// LogExporter receives a copy of every record that passes the level filter.
//
// Export is called synchronously from the logging goroutine and must not
// block.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Close() error
}

// LogEntry is the exporter view of one record.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// RingExporter keeps the last N entries in memory.
type RingExporter struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingExporter creates a ring holding up to capacity entries. A
// non-positive capacity holds 64.
func NewRingExporter(capacity int) *RingExporter {
	if capacity <= 0 {
		capacity = 64
	}
	return &RingExporter{entries: make([]LogEntry, capacity)}
}

// Export stores entry, overwriting the oldest when full.
func (r *RingExporter) Export(_ context.Context, entry LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Close is a no-op.
func (r *RingExporter) Close() error { return nil }

// Entries returns the stored entries oldest first.
func (r *RingExporter) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Last returns up to n of the newest entries, oldest first.
func (r *RingExporter) Last(n int) []LogEntry {
	all := r.Entries()
	if n >= len(all) || n < 0 {
		return all
	}
	return all[len(all)-n:]
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps a slog.Logger with file and exporter lifecycle.
type Logger struct {
	slog  *slog.Logger
	file  *os.File
	level *slog.LevelVar

	exporter LogExporter
	mu       sync.Mutex
	closed   bool
}

// New builds a Logger from config.
//
// File logging failures are not fatal: the logger falls back to the
// remaining handlers and reports the problem as its first warning.
func New(config Config) *Logger {
	l := &Logger{exporter: config.Exporter, level: new(slog.LevelVar)}
	l.level.Set(config.Level.slogLevel())
	opts := &slog.HandlerOptions{Level: l.level}

	var handlers []slog.Handler
	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	var fileErr error
	if config.LogDir != "" {
		l.file, fileErr = openLogFile(config.LogDir, config.Service)
		if fileErr == nil {
			handlers = append(handlers, slog.NewJSONHandler(l.file, opts))
		}
	}

	if config.Exporter != nil {
		handlers = append(handlers, &exportHandler{
			exporter: config.Exporter,
			service:  config.Service,
			level:    l.level,
		})
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	l.slog = slog.New(handler)

	if fileErr != nil {
		l.slog.Warn("file logging disabled", "dir", config.LogDir, "error", fileErr)
	}
	return l
}

// Default returns an Info-level stderr logger for the arcadeverse service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "arcadeverse"})
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "arcadeverse"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// SetLevel changes the minimum level of every handler. Loggers derived
// with With share the change.
func (l *Logger) SetLevel(level Level) { l.level.Set(level.slogLevel()) }

// Level returns the current minimum level.
func (l *Logger) Level() Level { return levelFromSlog(l.level.Level()) }

// With returns a child logger sharing the file and exporter.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file, level: l.level, exporter: l.exporter}
}

// Slog returns the underlying *slog.Logger for components that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file and the exporter. Only the root
// Logger returned by New should be closed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.exporter != nil {
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Handlers
// =============================================================================

// multiHandler fans a record out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// exportHandler adapts a LogExporter to slog. Groups are flattened into
// dotted keys.
type exportHandler struct {
	exporter LogExporter
	service  string
	level    slog.Leveler
	attrs    []slog.Attr
	group    string
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *exportHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.key(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	return h.exporter.Export(ctx, LogEntry{
		Timestamp: r.Time,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Service:   h.service,
		Attrs:     attrs,
	})
}

func (h *exportHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

func (h *exportHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = h.key(name)
	return &next
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
