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
	"os"
	"strconv"
	"time"
)

// Env reads an environment variable as T. The fallback is returned when
// the variable is unset, empty, or fails to parse — deployment identity
// must never half-apply.
//
//	port := config.Env("MONITOR_PORT", 8080)
//	origin := config.Env("ALLOWED_ORIGIN", "*")
func Env[T string | int | time.Duration](key string, fallback T) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}

	out := fallback
	switch p := any(&out).(type) {
	case *string:
		*p = raw
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fallback
		}
		*p = n
	case *time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fallback
		}
		*p = d
	}
	return out
}
