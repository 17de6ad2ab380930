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

// Cooldown windows. Cooldowns debounce downstream notifications only;
// state correctness never consults them.
const (
	CooldownOnline  = 15 * time.Minute
	CooldownOffline = 15 * time.Minute
	CooldownFlag    = 24 * time.Hour
)

// CooldownOnlineKey debounces "came online" notifications per CID and
// callsign.
func CooldownOnlineKey(cid, callsign string) string {
	return "cooldown:online:" + cid + ":" + strings.ToUpper(callsign)
}

// CooldownOfflineKey debounces "went offline" notifications per CID.
func CooldownOfflineKey(cid string) string {
	return "cooldown:offline:" + cid
}

// CooldownFlagKey debounces audit-flag notifications per CID.
func CooldownFlagKey(cid string) string {
	return "cooldown:flag:" + cid
}

type cooldownMarker struct {
	ExpiresAt int64 `json:"expiresAt"`
}

// SetCooldown stages a cooldown marker expiring after window.
func (s *Store) SetCooldown(key string, window time.Duration) error {
	return s.Set(key, cooldownMarker{ExpiresAt: s.now().Add(window).Unix()})
}

// InCooldown reports whether an unexpired marker exists at key.
func (s *Store) InCooldown(key string) bool {
	var m cooldownMarker
	if ok, _ := s.Get(key, &m); !ok {
		return false
	}
	return m.ExpiresAt > s.now().Unix()
}
