// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"strings"
	"time"
)

// Cache TTLs per key prefix. Cleanup deletes relative-TTL entries only
// after 2x their TTL so a briefly-stale entry can still serve as a
// fallback read.
const (
	TTLRating   = 24 * time.Hour
	TTLDivision = 24 * time.Hour
	TTLAudit    = 24 * time.Hour
	TTLMember   = 7 * 24 * time.Hour

	// CleanupInterval is the minimum gap between sweeps.
	CleanupInterval = 6 * time.Hour

	lastCleanupKey = "_last_cleanup"
)

// ttlForKey classifies a key by prefix and returns its relative TTL.
// Returns 0 for keys with no relative TTL (durable state, absolute-expiry
// cooldowns, idempotency markers).
func ttlForKey(key string) time.Duration {
	switch {
	case strings.HasPrefix(key, "rating:"):
		return TTLRating
	case strings.HasPrefix(key, "division:"):
		return TTLDivision
	case strings.HasPrefix(key, "member:"), strings.HasPrefix(key, "membermeta:"):
		return TTLMember
	case strings.HasPrefix(key, "audit:visiting:"), strings.HasPrefix(key, "audit:local:"):
		// Archived per-controller audits. "audit:job" and
		// "audit:partial:<scope>" never match these prefixes.
		return TTLAudit
	default:
		return 0
	}
}

// expiringEnvelope reads either expiry form a cache entry may carry.
type expiringEnvelope struct {
	CachedAt  int64 `json:"cached_at"`
	ExpiresAt int64 `json:"expiresAt"`
}

// MaybeCleanup sweeps expired cache entries when the last sweep is at
// least CleanupInterval old. Returns the number of deleted keys.
// Deletions are idempotent, so a sweep lost to a flush conflict is
// simply redone later.
func (s *Store) MaybeCleanup() int {
	now := s.now().Unix()

	var last int64
	if ok, _ := s.Get(lastCleanupKey, &last); ok {
		if now-last < int64(CleanupInterval.Seconds()) {
			return 0
		}
	}

	deleted := 0
	for _, key := range s.Keys() {
		var env expiringEnvelope
		if ok, _ := s.Get(key, &env); !ok {
			continue
		}
		switch {
		case env.ExpiresAt > 0 && env.ExpiresAt < now:
			s.Delete(key)
			deleted++
		case env.CachedAt > 0:
			ttl := ttlForKey(key)
			if ttl > 0 && env.CachedAt+2*int64(ttl.Seconds()) < now {
				s.Delete(key)
				deleted++
			}
		}
	}

	s.Set(lastCleanupKey, now)
	return deleted
}
