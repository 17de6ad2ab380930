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
	"github.com/AleutianAI/vatwatch/pkg/validation"
)

const watchlistKey = "watchlist"

// addedAtKey records the authoritative insertion time of a watchlist
// entry.
func addedAtKey(cid string) string { return "watchlist:added:" + cid }

// Watchlist returns the watched CIDs in ascending numeric order. The
// persisted sequence is kept sorted on write, but the read re-sorts
// defensively against hand-edited documents.
func (s *Store) Watchlist() ([]string, error) {
	var cids []string
	if _, err := s.Get(watchlistKey, &cids); err != nil {
		return nil, err
	}
	validation.SortCIDs(cids)
	return cids, nil
}

// WatchlistSet returns the watchlist as a membership set.
func (s *Store) WatchlistSet() (map[string]bool, error) {
	cids, err := s.Watchlist()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cids))
	for _, cid := range cids {
		set[cid] = true
	}
	return set, nil
}

// WatchlistAdd inserts a canonical CID, keeping the sequence sorted and
// duplicate-free. Returns false when the CID is already present, in
// which case nothing is staged.
func (s *Store) WatchlistAdd(cid string) (bool, error) {
	cids, err := s.Watchlist()
	if err != nil {
		return false, err
	}
	for _, existing := range cids {
		if existing == cid {
			return false, nil
		}
	}
	cids = append(cids, cid)
	validation.SortCIDs(cids)
	if err := s.Set(watchlistKey, cids); err != nil {
		return false, err
	}
	if err := s.Set(addedAtKey(cid), s.now().Unix()); err != nil {
		return false, err
	}
	return true, nil
}

// WatchlistRemove removes a CID and its insertion record. Returns false
// when the CID was not present.
func (s *Store) WatchlistRemove(cid string) (bool, error) {
	cids, err := s.Watchlist()
	if err != nil {
		return false, err
	}
	out := cids[:0]
	found := false
	for _, existing := range cids {
		if existing == cid {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		return false, nil
	}
	if err := s.Set(watchlistKey, out); err != nil {
		return false, err
	}
	s.Delete(addedAtKey(cid))
	return true, nil
}

// WatchlistAddedAt returns the insertion time (epoch seconds) of a CID,
// or zero when the entry predates insertion-time tracking.
func (s *Store) WatchlistAddedAt(cid string) int64 {
	var at int64
	s.Get(addedAtKey(cid), &at)
	return at
}

// mergeWatchlist three-way merges the roster during conflict recovery:
// remote membership, plus CIDs added locally, minus CIDs removed
// locally since load.
func (s *Store) mergeWatchlist(remoteVal any) []string {
	decode := func(v any) map[string]bool {
		var cids []string
		reencode(v, &cids)
		set := make(map[string]bool, len(cids))
		for _, cid := range cids {
			set[cid] = true
		}
		return set
	}

	base := decode(s.base[watchlistKey])
	local := decode(s.doc[watchlistKey])
	merged := decode(remoteVal)

	for cid := range local {
		if !base[cid] {
			merged[cid] = true
		}
	}
	for cid := range base {
		if !local[cid] {
			delete(merged, cid)
		}
	}

	out := make([]string, 0, len(merged))
	for cid := range merged {
		out = append(out, cid)
	}
	validation.SortCIDs(out)
	return out
}
