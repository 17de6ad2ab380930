// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/vatwatch/cmd/vatwatch/config"
	"github.com/AleutianAI/vatwatch/services/monitor"
	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

var (
	auditScope string

	rootCmd = &cobra.Command{
		Use:   "vatwatch",
		Short: "Controller roster monitor",
		Long:  "vatwatch watches a roster of network controllers, audits their controlling hours, and serves the dashboard API.",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server with the internal tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}

	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduled invocation (for external cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			// A lost tick is recomputed next round; only transport or
			// programming failures exit non-zero.
			return svc.Tick(cmd.Context())
		},
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Audit job administration",
	}

	auditRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Enqueue a manual audit sweep over the current watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManualAudit(cmd.Context(), auditScope)
		},
	}
)

func init() {
	auditRunCmd.Flags().StringVar(&auditScope, "scope", "visiting", "audit scope: visiting or local")

	auditCmd.AddCommand(auditRunCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(auditCmd)
}

// runManualAudit enqueues a job the same way POST /api/audit/run does.
func runManualAudit(ctx context.Context, scopeArg string) error {
	scope, err := audit.ParseScope(scopeArg)
	if err != nil {
		return err
	}

	st := store.New(store.NewGitHubClient(githubConfigFromEnv(), nil, logger.Slog()), logger.Slog())
	if err := st.Load(ctx); err != nil {
		return fmt.Errorf("loading store: %w", err)
	}

	if _, active, _ := audit.LoadJob(st); active {
		return fmt.Errorf("an audit is already running")
	}

	cids, err := st.Watchlist()
	if err != nil {
		return err
	}
	job := audit.NewJob(scope, cids, time.Now())
	if err := audit.SaveJob(st, job); err != nil {
		return err
	}
	audit.ClearPartials(st, scope)
	if err := st.Flush(ctx, "audit: manual "+scopeArg+" run"); err != nil {
		return fmt.Errorf("enqueueing audit: %w", err)
	}

	logger.Info("manual audit enqueued", "scope", scope, "controllers", job.Total, "job_id", job.ID)
	fmt.Printf("Enqueued %s audit over %d controllers (job %s)\n", scope, job.Total, job.ID)
	return nil
}

// buildService assembles the monitor from environment + config file.
func buildService() (monitor.Service, error) {
	cfg := monitor.Config{
		Port:          config.Env("MONITOR_PORT", 8080),
		AllowedOrigin: config.Env("ALLOWED_ORIGIN", "*"),
		GitHub:        githubConfigFromEnv(),
		VatsimDataURL: config.Env("VATSIM_DATA_URL", ""),
		VatsimAPIURL:  config.Env("VATSIM_API_URL", ""),
		Policies:      policiesFromConfig(cliConfig),
	}
	return monitor.New(cfg, logger)
}
