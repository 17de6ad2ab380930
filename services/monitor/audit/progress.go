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

import "time"

// Progress-event limits per tick.
const (
	// MaxProgressEventsPerTick caps observable progress updates.
	MaxProgressEventsPerTick = 15

	// ProgressMinGap is the minimum spacing between progress updates.
	ProgressMinGap = 600 * time.Millisecond
)

// Throttle rate-limits observable progress events within one tick.
// Not safe for concurrent use; ticks are single-threaded.
type Throttle struct {
	max    int
	minGap time.Duration
	count  int
	last   time.Time
	now    func() time.Time
}

// NewThrottle creates a Throttle with the standard per-tick limits.
func NewThrottle() *Throttle {
	return &Throttle{
		max:    MaxProgressEventsPerTick,
		minGap: ProgressMinGap,
		now:    time.Now,
	}
}

// Allow reports whether another progress event may be emitted, counting
// it when allowed.
func (t *Throttle) Allow() bool {
	if t.count >= t.max {
		return false
	}
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.minGap {
		return false
	}
	t.count++
	t.last = now
	return true
}
