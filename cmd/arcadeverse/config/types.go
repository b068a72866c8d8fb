// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the arcadeverse configuration.
//
// Values come from three layers, later layers winning: built-in defaults,
// the YAML file (~/.arcadeverse/arcadeverse.yaml unless --config is
// given, created on first run) and ARCADEVERSE_* environment variables.
// The merged result is validated before use.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/services/chaos"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
	"github.com/AleutianAI/ArcadeVerse/services/telemetry"
)

// ArcadeConfig is the full configuration file.
type ArcadeConfig struct {
	// Session: tuning of a new chaos session
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`

	// Scheduler: ambient event cadence and escalation, hot-reloadable
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`

	// Storage: where progress is kept
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`

	// Logging: level is hot-reloadable
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`

	// Server: HTTP API for `serve`
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`

	// Telemetry: tracing exporter
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type SessionConfig struct {
	InitialStability float64       `yaml:"initial_stability" env:"INITIAL_STABILITY" validate:"gte=0,lte=100"`
	DefaultOutage    time.Duration `yaml:"default_outage" env:"DEFAULT_OUTAGE" validate:"gt=0"`
	Universe         string        `yaml:"universe" env:"UNIVERSE" validate:"oneof=DEFAULT FIX_IT SUGAR_RUSH HEROS_DUTY"`
	Player           string        `yaml:"player" env:"PLAYER" validate:"max=32"`
}

type SchedulerConfig struct {
	CalmInterval        time.Duration `yaml:"calm_interval" env:"CALM_INTERVAL" validate:"gt=0"`
	ChaosInterval       time.Duration `yaml:"chaos_interval" env:"CHAOS_INTERVAL" validate:"gt=0"`
	Decay               float64       `yaml:"decay" env:"DECAY" validate:"gte=0,lte=100"`
	EscalationThreshold float64       `yaml:"escalation_threshold" env:"ESCALATION_THRESHOLD" validate:"gte=0,lte=100"`
	EscalationChance    float64       `yaml:"escalation_chance" env:"ESCALATION_CHANCE" validate:"gte=0,lte=1"`
	Seed                uint64        `yaml:"seed" env:"SEED"` // 0 = random
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=memory badger sqlite"`
	Path   string `yaml:"path" env:"PATH" validate:"required_unless=Driver memory"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty" env:"DIR"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR" validate:"required"`

	// MutationRate caps state changes per second across all clients. 0
	// disables the cap.
	MutationRate  float64 `yaml:"mutation_rate" env:"MUTATION_RATE" validate:"gte=0"`
	MutationBurst int     `yaml:"mutation_burst" env:"MUTATION_BURST" validate:"gte=0"`
}

type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter" env:"TRACE_EXPORTER" validate:"oneof=none stdout otlp"`

	// OTLPEndpoint is the collector host:port used by the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure bool   `yaml:"otlp_insecure" env:"OTLP_INSECURE"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ArcadeConfig {
	session := chaos.DefaultConfig()
	sched := chaos.DefaultSchedulerConfig()
	return ArcadeConfig{
		Session: SessionConfig{
			InitialStability: session.InitialStability,
			DefaultOutage:    session.DefaultOutage,
			Universe:         string(chaos.UniverseDefault),
			Player:           "PLAYER",
		},
		Scheduler: SchedulerConfig{
			CalmInterval:        sched.CalmInterval,
			ChaosInterval:       sched.ChaosInterval,
			Decay:               sched.Decay,
			EscalationThreshold: sched.EscalationThreshold,
			EscalationChance:    sched.EscalationChance,
		},
		Storage: StorageConfig{
			Driver: persist.DriverBadger,
			Path:   "~/.arcadeverse/data",
		},
		Logging:   LoggingConfig{Level: "info"},
		Server:    ServerConfig{Addr: "127.0.0.1:8088", MutationRate: 20, MutationBurst: 40},
		Telemetry: TelemetryConfig{
			TraceExporter: telemetry.ExporterNone,
			OTLPEndpoint:  telemetry.DefaultOTLPEndpoint,
			OTLPInsecure:  true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c ArcadeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineConfig converts the session and scheduler sections into engine
// tuning. Fields the file does not cover keep their defaults.
func (c ArcadeConfig) EngineConfig() chaos.Config {
	cfg := chaos.DefaultConfig()
	cfg.InitialStability = c.Session.InitialStability
	cfg.DefaultOutage = c.Session.DefaultOutage
	cfg.Scheduler = c.Scheduler.Chaos()
	return cfg
}

// Chaos converts the section into scheduler tuning.
func (s SchedulerConfig) Chaos() chaos.SchedulerConfig {
	cfg := chaos.DefaultSchedulerConfig()
	cfg.CalmInterval = s.CalmInterval
	cfg.ChaosInterval = s.ChaosInterval
	cfg.Decay = s.Decay
	cfg.EscalationThreshold = s.EscalationThreshold
	cfg.EscalationChance = s.EscalationChance
	return cfg
}

// Universe returns the configured starting universe.
func (c ArcadeConfig) Universe() chaos.Universe {
	u, err := chaos.ParseUniverse(c.Session.Universe)
	if err != nil {
		return chaos.UniverseDefault
	}
	return u
}

// LogLevel returns the parsed logging level, Info if unparsable.
func (c ArcadeConfig) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return level
}
