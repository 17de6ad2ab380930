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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	loadOnce sync.Once
	loaded   *VatwatchConfig
	loadErr  error
)

// Load returns the CLI configuration. The file is read once per
// process; when it does not exist yet, the shipped defaults are
// returned and written out so operators have something to edit. A file
// that exists but cannot be read or parsed is an error — silently
// auditing with the wrong thresholds is worse than refusing to start.
func Load() (*VatwatchConfig, error) {
	loadOnce.Do(func() {
		loaded, loadErr = read(Path())
	})
	return loaded, loadErr
}

// Path returns the config file location: $VATWATCH_CONFIG if set,
// otherwise ~/.vatwatch/vatwatch.yaml.
func Path() string {
	if p := os.Getenv("VATWATCH_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// No resolvable home: fall back to the working directory.
		return "vatwatch.yaml"
	}
	return filepath.Join(home, ".vatwatch", "vatwatch.yaml")
}

func read(path string) (*VatwatchConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run. Seeding the file is best-effort: a read-only home
		// directory should not block the CLI.
		if seedErr := seed(path, &cfg); seedErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not write default config to %s: %v\n", path, seedErr)
		} else {
			fmt.Printf("First run detected, created config at %s\n", path)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// seed writes the default config, creating the directory as needed.
func seed(path string, cfg *VatwatchConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
