// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package presence tracks which watched controllers are online, diffing
// each live-feed snapshot against the previously persisted state.
//
// Only transitions write: given a stable feed across two ticks the
// persisted state is byte-identical after the second, so concurrent
// observers of the same transition converge on the same document.
package presence

import (
	"log/slog"
	"time"

	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

const stateKey = "online_state"

// Info is the last-known connection detail for a controller, retained
// across the offline transition for display.
type Info struct {
	Callsign  string `json:"callsign"`
	Frequency string `json:"frequency,omitempty"`
	Name      string `json:"name,omitempty"`
	LastSeen  int64  `json:"last_seen"`
}

// State is one controller's presence record.
type State struct {
	Online     bool  `json:"online"`
	LastChange int64 `json:"last_change"`
	LastInfo   Info  `json:"last_info"`
}

// Tracker diffs live-feed snapshots into the persisted online map.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker over a loaded Store.
func NewTracker(st *store.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: st, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// States returns the persisted presence map.
func (t *Tracker) States() (map[string]State, error) {
	states := map[string]State{}
	if _, err := t.store.Get(stateKey, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// Update diffs the current feed snapshot against the persisted state
// and stages the resulting transitions. Watched limits the diff to the
// given CIDs (the feed covers the whole network). Returns the number of
// transitions staged; zero means nothing was written.
func (t *Tracker) Update(online []vatsim.OnlineController, watched map[string]bool) (int, error) {
	prev, err := t.States()
	if err != nil {
		return 0, err
	}

	nowOnline := map[string]vatsim.OnlineController{}
	for _, ctrl := range online {
		if watched[ctrl.CID] {
			nowOnline[ctrl.CID] = ctrl
		}
	}

	now := t.now().Unix()
	transitions := 0

	for cid := range union(prev, nowOnline) {
		ctrl, isOnline := nowOnline[cid]
		state, known := prev[cid]

		switch {
		case isOnline && (!known || !state.Online):
			prev[cid] = State{
				Online:     true,
				LastChange: now,
				LastInfo: Info{
					Callsign:  ctrl.Callsign,
					Frequency: ctrl.Frequency,
					Name:      ctrl.Name,
					LastSeen:  now,
				},
			}
			transitions++
			t.markOnline(cid, ctrl.Callsign)

		case !isOnline && known && state.Online:
			// Keep the last-known info for display.
			state.Online = false
			state.LastChange = now
			prev[cid] = state
			transitions++
			t.markOffline(cid)

		case isOnline:
			// Steady online writes nothing unless the controller moved
			// to a different position.
			if state.LastInfo.Callsign != ctrl.Callsign {
				state.LastInfo = Info{
					Callsign:  ctrl.Callsign,
					Frequency: ctrl.Frequency,
					Name:      ctrl.Name,
					LastSeen:  now,
				}
				state.LastChange = now
				prev[cid] = state
				transitions++
				t.markOnline(cid, ctrl.Callsign)
			}
		}
	}

	if transitions == 0 {
		return 0, nil
	}
	if err := t.store.Set(stateKey, prev); err != nil {
		return 0, err
	}
	t.logger.Info("presence transitions staged", "count", transitions)
	return transitions, nil
}

// markOnline stages the online-notification cooldown unless one is
// already running for this CID+callsign.
func (t *Tracker) markOnline(cid, callsign string) {
	key := store.CooldownOnlineKey(cid, callsign)
	if !t.store.InCooldown(key) {
		t.store.SetCooldown(key, store.CooldownOnline)
	}
}

func (t *Tracker) markOffline(cid string) {
	key := store.CooldownOfflineKey(cid)
	if !t.store.InCooldown(key) {
		t.store.SetCooldown(key, store.CooldownOffline)
	}
}

func union(a map[string]State, b map[string]vatsim.OnlineController) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
