// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chaos

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Chaos Engine
// =============================================================================

// Metrics holds the engine's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so engines built without
// WithMetrics pay no cost.
type Metrics struct {
	ticks           prometheus.Counter
	tickLatency     prometheus.Histogram
	events          *prometheus.CounterVec
	escalations     prometheus.Counter
	stability       prometheus.Gauge
	glitchIntensity prometheus.Gauge
	chaosMode       prometheus.Gauge
	subscribers     prometheus.Gauge
}

// NewMetrics registers the chaos collectors on reg.
//
// # Inputs
//
//   - reg: Registerer to use. Tests pass prometheus.NewRegistry() so
//     repeated construction does not collide with the default registry.
//
// # Outputs
//
//   - *Metrics: Ready for WithMetrics.
//
// # Limitations
//
//   - Panics if the collectors are already registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "ticks_total",
			Help:      "Total scheduler ticks applied",
		}),
		tickLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "tick_duration_seconds",
			Help:      "Time spent applying one scheduler tick",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		// Labels: event (tornado, zero-gravity, ...), source (scheduler, trigger)
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "events_total",
			Help:      "Chaos events fired by source",
		}, []string{"event", "source"}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "escalations_total",
			Help:      "Spontaneous escalations into extreme chaos",
		}),
		stability: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "stability",
			Help:      "Current system stability (0-100)",
		}),
		glitchIntensity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "glitch_intensity",
			Help:      "Current glitch intensity (0-1)",
		}),
		chaosMode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "chaos_mode",
			Help:      "1 while chaos mode is on",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcadeverse",
			Subsystem: "chaos",
			Name:      "subscribers",
			Help:      "Live snapshot subscriptions",
		}),
	}
}

func (m *Metrics) observeSnapshot(s Snapshot) {
	if m == nil {
		return
	}
	m.stability.Set(s.Stability)
	m.glitchIntensity.Set(s.GlitchIntensity)
	if s.ChaosMode {
		m.chaosMode.Set(1)
	} else {
		m.chaosMode.Set(0)
	}
}

func (m *Metrics) recordTick(res TickResult, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickLatency.Observe(took.Seconds())
	if res.Escalated {
		m.escalations.Inc()
	}
}

func (m *Metrics) recordTrigger(kind EventKind, source string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String(), source).Inc()
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
