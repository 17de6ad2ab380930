// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor provides the roster-monitoring service: the HTTP API,
// the scheduled tick loop, and the wiring between the store, the
// network clients, and the audit engine.
//
// # Description
//
// The service has two entry points. Request invocations serve the REST
// surface consumed by the static dashboard. Scheduled invocations (the
// 5-minute tick) run the audit engine, the presence tracker, the
// quarterly trigger, and the store cleanup, all against the single
// persisted document under a shared per-tick resource budget.
//
// # Usage
//
//	cfg := monitor.Config{Port: 8080, GitHub: store.GitHubConfig{Repo: "org/data"}}
//	svc, err := monitor.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// A one-shot scheduled invocation (cron `*/5 * * * *`) calls Tick
// directly instead of Run.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/vatwatch/pkg/logging"
	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/fetch"
	"github.com/AleutianAI/vatwatch/services/monitor/observability"
	"github.com/AleutianAI/vatwatch/services/monitor/presence"
	"github.com/AleutianAI/vatwatch/services/monitor/routes"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// Service is the monitor's lifecycle contract.
//
// Run starts the HTTP server plus the internal ticker and blocks. Tick
// performs one scheduled invocation; it never returns an error for
// conditions the next tick will absorb (budget exhaustion, store
// conflicts), only for programming or transport failures worth an
// alert.
type Service interface {
	// Run starts the HTTP server and the tick loop and blocks until the
	// server stops.
	Run() error

	// Tick performs one scheduled invocation.
	Tick(ctx context.Context) error

	// Router returns the configured engine for testing.
	Router() *gin.Engine
}

// Config holds monitor configuration.
type Config struct {
	// Port is the HTTP server port. Default: 8080.
	Port int

	// AllowedOrigin is the dashboard origin echoed in the CORS envelope.
	// Default: "*".
	AllowedOrigin string

	// GitHub configures the content store transport.
	GitHub store.GitHubConfig

	// VatsimDataURL overrides the live-feed endpoint. Default: production.
	VatsimDataURL string

	// VatsimAPIURL overrides the members API root. Default: production.
	VatsimAPIURL string

	// TickInterval is the internal scheduler period under Run.
	// Default: 5 minutes.
	TickInterval time.Duration

	// Policies overrides the per-scope audit requirements. Default:
	// audit.DefaultPolicies().
	Policies map[audit.Scope]audit.Policy

	// GinMode sets the Gin framework mode. Default: release.
	GinMode string

	// Registry receives the service metrics. Default:
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// service implements Service.
type service struct {
	config  Config
	logger  *logging.Logger
	router  *gin.Engine
	content store.ContentClient
	feed    *vatsim.Client
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a monitor Service. A nil logger uses logging.Default().
func New(cfg Config, logger *logging.Logger) (Service, error) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Minute
	}
	if cfg.Policies == nil {
		cfg.Policies = audit.DefaultPolicies()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.GitHub.Repo == "" {
		return nil, fmt.Errorf("monitor: GITHUB_REPO is required")
	}

	mode := cfg.GinMode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	content := store.NewGitHubClient(cfg.GitHub, nil, logger.Slog())
	feed := vatsim.NewClient(cfg.VatsimDataURL, cfg.VatsimAPIURL, nil, logger.Slog())

	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, content, feed, cfg.AllowedOrigin)

	return &service{
		config:  cfg,
		logger:  logger,
		router:  router,
		content: content,
		feed:    feed,
		metrics: observability.NewMetrics(cfg.Registry),
		now:     time.Now,
	}, nil
}

// Router implements Service.
func (s *service) Router() *gin.Engine { return s.router }

// Run implements Service: ticker goroutine plus blocking HTTP server.
func (s *service) Run() error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			if err := s.Tick(context.Background()); err != nil {
				s.logger.Error("scheduled tick failed", "error", err)
			}
		}
	}()

	s.logger.Info("monitor listening",
		"port", s.config.Port, "tick_interval", s.config.TickInterval.String())
	return s.router.Run(fmt.Sprintf(":%d", s.config.Port))
}

// Tick implements Service. One scheduled invocation:
//
//  1. Load the store; abort with no state change on failure.
//  2. Opportunistic cache cleanup (at most every 6h).
//  3. Quarterly trigger.
//  4. Audit engine: advance the active job within the budget.
//  5. Presence tracker, if budget remains.
//  6. Flush staged edits once.
//
// A store conflict on the flush discards the tick's work; the next tick
// recomputes it. The engine never lets an error escape the tick.
func (s *service) Tick(ctx context.Context) error {
	start := s.now()
	budget := fetch.NewBudget(start)
	timer := prometheus.NewTimer(s.metrics.TickDurationSeconds)
	defer timer.ObserveDuration()
	defer func() {
		s.metrics.SubrequestsPerTick.Observe(float64(budget.Used()))
	}()

	st := store.New(s.content, s.logger.Slog())
	if err := st.Load(ctx); err != nil {
		s.metrics.TicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("tick aborted, store load failed: %w", err)
	}

	if deleted := st.MaybeCleanup(); deleted > 0 {
		s.logger.Info("store cleanup", "deleted", deleted)
	}

	if enqueued, err := audit.MaybeEnqueueQuarterly(st, start, s.logger.Slog()); err != nil {
		s.logger.Error("quarterly trigger failed", "error", err)
	} else if enqueued {
		s.metrics.QuarterlyEnqueuesTotal.Inc()
	}

	// The scope label is read before the engine runs: a completing job
	// clears itself.
	var scopeLabel string
	if job, ok, _ := audit.LoadJob(st); ok {
		scopeLabel = string(job.Scope)
	}

	fetcher := fetch.NewFetcher(nil, budget)
	engine := audit.NewEngine(st, s.feed.WithHTTP(fetcher), budget, s.config.Policies, s.logger.Slog())
	processed, err := engine.Tick(ctx)
	if err != nil {
		s.logger.Error("audit engine failed", "error", err)
	}
	if processed > 0 && scopeLabel != "" {
		s.metrics.ControllersAuditedTotal.WithLabelValues(scopeLabel).Add(float64(processed))
	}

	s.runPresence(ctx, st, budget, fetcher)

	err = st.Flush(ctx, "scheduled tick")
	switch {
	case errors.Is(err, store.ErrConflict):
		s.logger.Warn("tick flush conflict, work discarded this round")
		s.metrics.StoreFlushesTotal.WithLabelValues("conflict").Inc()
		s.metrics.TicksTotal.WithLabelValues("store_conflict").Inc()
		return nil
	case err != nil:
		s.metrics.StoreFlushesTotal.WithLabelValues("error").Inc()
		s.metrics.TicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("tick flush failed: %w", err)
	}
	s.metrics.StoreFlushesTotal.WithLabelValues("ok").Inc()
	s.metrics.TicksTotal.WithLabelValues("ok").Inc()

	s.logger.Info("tick complete",
		"duration_ms", s.now().Sub(start).Milliseconds(),
		"subreqs", budget.Used(),
		"audited", processed)
	return nil
}

// runPresence polls the live feed and diffs it into the persisted
// online map, skipped when the budget cannot afford the feed call.
func (s *service) runPresence(ctx context.Context, st *store.Store, budget *fetch.Budget, fetcher *fetch.Fetcher) {
	if !budget.CanAfford(1) {
		s.logger.Info("presence skipped on budget", "subreqs_used", budget.Used())
		return
	}

	watched, err := st.WatchlistSet()
	if err != nil {
		s.logger.Error("watchlist read failed", "error", err)
		return
	}
	online, err := s.feed.WithHTTP(fetcher).OnlineControllers(ctx)
	if err != nil {
		s.logger.Warn("live feed unavailable this tick", "error", err)
		return
	}

	tracker := presence.NewTracker(st, s.logger.Slog())
	transitions, err := tracker.Update(online, watched)
	if err != nil {
		s.logger.Error("presence update failed", "error", err)
		return
	}
	if transitions > 0 {
		s.metrics.PresenceTransitionsTotal.Add(float64(transitions))
	}
}
