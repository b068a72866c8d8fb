// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up OpenTelemetry tracing for ArcadeVerse.
//
// The chaos scheduler opens a span per tick and the HTTP API opens one per
// request. Both use the global tracer provider, so Init must run before the
// engine and server are constructed for their spans to be exported.
// Metrics are Prometheus-native and live next to the code they measure.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Trace exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// DefaultOTLPEndpoint is the collector address used when none is set.
const DefaultOTLPEndpoint = "localhost:4317"

var (
	ErrNilContext      = errors.New("telemetry: nil context")
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this process in spans.
	ServiceName string

	// ServiceVersion is the build version string.
	ServiceVersion string

	// Environment names the deployment (development, production).
	Environment string

	// TraceExporter selects "otlp", "stdout" or "none".
	TraceExporter string

	// OTLPEndpoint is the collector host:port for the otlp exporter.
	OTLPEndpoint string

	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool

	// Output receives stdout spans. Default: os.Stdout.
	Output io.Writer

	// PrettyPrint indents exported spans.
	PrettyPrint bool
}

// DefaultConfig returns development defaults with tracing disabled.
// OTEL_TRACES_EXPORTER and OTEL_EXPORTER_OTLP_ENDPOINT override the
// exporter and collector address.
func DefaultConfig() Config {
	exp := os.Getenv("OTEL_TRACES_EXPORTER")
	if exp == "" {
		exp = ExporterNone
	}
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = DefaultOTLPEndpoint
	}
	return Config{
		ServiceName:    "arcadeverse",
		ServiceVersion: "dev",
		Environment:    "development",
		TraceExporter:  exp,
		OTLPEndpoint:   endpoint,
		OTLPInsecure:   true,
	}
}

// Init installs the global tracer provider and propagator.
//
// # Outputs
//
//   - shutdown: Flushes and stops the provider. Always non-nil on success,
//     even when tracing is disabled. Must be called.
//   - error: ErrNilContext, ErrUnknownExporter, or an exporter failure.
//
// # Thread Safety
//
// Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	noop := func(context.Context) error { return nil }
	var tp *sdktrace.TracerProvider
	switch strings.ToLower(strings.TrimSpace(cfg.TraceExporter)) {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		tp, err = NewStdoutProvider(cfg)
	case ExporterOTLP:
		tp, err = NewOTLPProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewOTLPProvider builds a provider that ships spans to an OTLP/gRPC
// collector at cfg.OTLPEndpoint without installing it globally. The
// connection is established lazily, so an unreachable collector does not
// fail startup.
func NewOTLPProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = DefaultOTLPEndpoint
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	return newProvider(exporter, cfg), nil
}

// NewStdoutProvider builds a provider that writes spans to cfg.Output
// without installing it globally.
func NewStdoutProvider(cfg Config) (*sdktrace.TracerProvider, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	return newProvider(exporter, cfg), nil
}

func newProvider(exporter sdktrace.SpanExporter, cfg Config) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}

// TraceID returns the trace ID of the active span, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
