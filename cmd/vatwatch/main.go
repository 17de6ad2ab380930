// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command vatwatch runs the controller-roster monitor.
//
// # Subcommands
//
//   - serve: HTTP API server with the internal 5-minute tick loop
//   - tick:  one scheduled invocation, for external cron (*/5 * * * *)
//   - audit run --scope <visiting|local>: enqueue a manual sweep
//
// # Environment Variables
//
//   - GITHUB_REPO:    content-store repository slug, owner/name (required)
//   - GITHUB_BRANCH:  content-store branch (default: main)
//   - GITHUB_DIR:     directory holding store.json (default: cf-cache)
//   - GITHUB_TOKEN:   API token (secret)
//   - ALLOWED_ORIGIN: dashboard origin for CORS (default: *)
//   - MONITOR_PORT:   serve port (default: 8080)
//   - VATSIM_DATA_URL / VATSIM_API_URL: endpoint overrides
//   - VATWATCH_CONFIG: config file path (default: ~/.vatwatch/vatwatch.yaml)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/vatwatch/cmd/vatwatch/config"
	"github.com/AleutianAI/vatwatch/pkg/logging"
)

var (
	logger    *logging.Logger
	cliConfig *config.VatwatchConfig
)

func main() {
	defer func() {
		if logger != nil {
			logger.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cliConfig = cfg
		logger = logging.New(logging.Config{
			Level:   parseLogLevel(cfg.Log.Level),
			LogDir:  cfg.Log.Dir,
			Service: "vatwatch",
		})
		return nil
	}
}
