// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the monitor.
//
// # Description
//
// Metrics cover the scheduled tick loop (duration, outcome, budget
// consumption), the store (flushes and conflicts), the audit engine
// (controllers processed per scope), and presence transitions. Exposed
// via the /metrics endpoint; scrape with Prometheus and dashboard with
// Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all monitor metrics.
const metricsNamespace = "vatwatch"

// Metrics holds all Prometheus instruments for the monitor service.
// Initialize once at startup via NewMetrics.
type Metrics struct {
	// TicksTotal counts scheduled ticks by outcome.
	// Labels: status (ok, store_conflict, error)
	TicksTotal *prometheus.CounterVec

	// TickDurationSeconds measures wall-clock per tick.
	TickDurationSeconds prometheus.Histogram

	// SubrequestsPerTick measures outbound calls consumed per tick.
	SubrequestsPerTick prometheus.Histogram

	// StoreFlushesTotal counts document flushes by outcome.
	// Labels: status (ok, conflict, error)
	StoreFlushesTotal *prometheus.CounterVec

	// ControllersAuditedTotal counts per-controller verdicts by scope.
	// Labels: scope (visiting, local)
	ControllersAuditedTotal *prometheus.CounterVec

	// PresenceTransitionsTotal counts staged presence transitions.
	PresenceTransitionsTotal prometheus.Counter

	// QuarterlyEnqueuesTotal counts automatic quarterly job enqueues.
	QuarterlyEnqueuesTotal prometheus.Counter
}

// NewMetrics registers all instruments on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel tests cannot collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ticks_total",
				Help:      "Scheduled ticks by outcome.",
			},
			[]string{"status"},
		),
		TickDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tick_duration_seconds",
				Help:      "Wall-clock duration of one scheduled tick.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 12, 15},
			},
		),
		SubrequestsPerTick: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "subrequests_per_tick",
				Help:      "Outbound HTTP calls consumed by one tick.",
				Buckets:   []float64{0, 5, 10, 30, 60, 90, 120},
			},
		),
		StoreFlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_flushes_total",
				Help:      "Store document flushes by outcome.",
			},
			[]string{"status"},
		),
		ControllersAuditedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "controllers_audited_total",
				Help:      "Per-controller audit verdicts computed, by scope.",
			},
			[]string{"scope"},
		),
		PresenceTransitionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "presence_transitions_total",
				Help:      "Online/offline transitions staged by the presence tracker.",
			},
		),
		QuarterlyEnqueuesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "quarterly_enqueues_total",
				Help:      "Automatic quarterly audit jobs enqueued.",
			},
		),
	}
}
