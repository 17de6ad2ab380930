// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

// IsQuarterStart reports whether t falls inside a quarter-start instant:
// the first hour of Jan/Apr/Jul/Oct 1st, UTC.
func IsQuarterStart(t time.Time) bool {
	u := t.UTC()
	switch u.Month() {
	case time.January, time.April, time.July, time.October:
		return u.Day() == 1 && u.Hour() == 0
	}
	return false
}

// PrevQuarterKey returns the just-closed quarter's key (YYYYQn) for a
// quarter-start instant. At 2025-04-01T00:xx it is "2025Q1"; at
// 2026-01-01T00:xx it is "2025Q4".
func PrevQuarterKey(t time.Time) string {
	u := t.UTC()
	year := u.Year()
	quarter := (int(u.Month()) - 1) / 3 // 0-based index of the quarter just begun
	if quarter == 0 {
		return fmt.Sprintf("%dQ4", year-1)
	}
	return fmt.Sprintf("%dQ%d", year, quarter)
}

// quarterMarkerKey is the idempotency marker for one quarter's auto-run.
func quarterMarkerKey(quarter string) string { return "quarter:auto:" + quarter }

// MaybeEnqueueQuarterly enqueues the automatic visiting-scope audit at a
// quarter-start instant, at most once per quarter. The marker makes the
// enqueue idempotent across the several ticks that observe the same
// instant. Returns true when a job was enqueued.
func MaybeEnqueueQuarterly(st *store.Store, now time.Time, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !IsQuarterStart(now) {
		return false, nil
	}

	marker := quarterMarkerKey(PrevQuarterKey(now))
	if st.Has(marker) {
		return false, nil
	}

	cids, err := st.Watchlist()
	if err != nil {
		return false, err
	}

	job := NewJob(ScopeVisiting, cids, now)
	if err := SaveJob(st, job); err != nil {
		return false, err
	}
	ClearPartials(st, ScopeVisiting)
	if err := st.Set(marker, map[string]any{"done": true, "at": now.Unix()}); err != nil {
		return false, err
	}

	logger.Info("quarterly audit enqueued",
		"quarter", PrevQuarterKey(now), "job_id", job.ID, "controllers", job.Total)
	return true, nil
}
