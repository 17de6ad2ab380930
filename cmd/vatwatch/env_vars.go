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
	"log/slog"

	"github.com/AleutianAI/vatwatch/cmd/vatwatch/config"
	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

// githubConfigFromEnv reads the content-store coordinates.
func githubConfigFromEnv() store.GitHubConfig {
	return store.GitHubConfig{
		Repo:   config.Env("GITHUB_REPO", ""),
		Branch: config.Env("GITHUB_BRANCH", "main"),
		Dir:    config.Env("GITHUB_DIR", "cf-cache"),
		Token:  config.Env("GITHUB_TOKEN", ""),
	}
}

// policiesFromConfig converts the YAML audit knobs into engine policies.
func policiesFromConfig(cfg *config.VatwatchConfig) map[audit.Scope]audit.Policy {
	return map[audit.Scope]audit.Policy{
		audit.ScopeVisiting: {
			RequiredHours:  cfg.Audit.Visiting.RequiredHours,
			LookbackMonths: cfg.Audit.Visiting.LookbackMonths,
		},
		audit.ScopeLocal: {
			RequiredHours:  cfg.Audit.Local.RequiredHours,
			LookbackMonths: cfg.Audit.Local.LookbackMonths,
		},
	}
}

// parseLogLevel maps the config's level string onto slog.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
