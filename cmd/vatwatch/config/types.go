// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the vatwatch CLI's YAML configuration file.
//
// The file carries local tuning only (audit thresholds, logging);
// deployment identity (repository, token, origin) stays in environment
// variables so secrets never land in a dotfile.
package config

// VatwatchConfig is the ~/.vatwatch/vatwatch.yaml schema.
type VatwatchConfig struct {
	// Audit overrides the per-scope compliance requirements.
	Audit AuditConfig `yaml:"audit"`

	// Log configures CLI logging.
	Log LogConfig `yaml:"log"`
}

// AuditConfig holds the per-scope policy knobs.
type AuditConfig struct {
	Visiting ScopeConfig `yaml:"visiting"`
	Local    ScopeConfig `yaml:"local"`
}

// ScopeConfig is one scope's requirement.
type ScopeConfig struct {
	RequiredHours  float64 `yaml:"required_hours"`
	LookbackMonths int     `yaml:"lookback_months"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// Level is debug, info, warn, or error. Default: info.
	Level string `yaml:"level"`
}

// defaultConfig returns the shipped defaults: the network's standard
// 10h/15h quarterly requirements.
func defaultConfig() VatwatchConfig {
	return VatwatchConfig{
		Audit: AuditConfig{
			Visiting: ScopeConfig{RequiredHours: 10, LookbackMonths: 3},
			Local:    ScopeConfig{RequiredHours: 15, LookbackMonths: 3},
		},
		Log: LogConfig{Level: "info"},
	}
}

// normalize clamps hand-edited knobs back to sane values so a typo in
// the YAML cannot zero out an audit window.
func (c *VatwatchConfig) normalize() {
	defaults := defaultConfig()
	c.Audit.Visiting.normalize(defaults.Audit.Visiting)
	c.Audit.Local.normalize(defaults.Audit.Local)

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Log.Level = defaults.Log.Level
	}
}

func (s *ScopeConfig) normalize(fallback ScopeConfig) {
	if s.RequiredHours <= 0 {
		s.RequiredHours = fallback.RequiredHours
	}
	if s.LookbackMonths <= 0 {
		s.LookbackMonths = fallback.LookbackMonths
	}
}
