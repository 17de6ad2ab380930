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
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContent is an in-memory ContentClient with scriptable conflicts.
type fakeContent struct {
	doc       map[string]any
	sha       int
	gets      int
	puts      int
	conflicts int // number of Puts to reject with ErrConflict
}

func newFakeContent(doc map[string]any) *fakeContent {
	if doc == nil {
		doc = map[string]any{}
	}
	return &fakeContent{doc: doc, sha: 1}
}

func (f *fakeContent) shaString() string {
	raw, _ := json.Marshal(f.sha)
	return string(raw)
}

func (f *fakeContent) Get(ctx context.Context) (map[string]any, string, error) {
	f.gets++
	out := map[string]any{}
	raw, _ := json.Marshal(f.doc)
	json.Unmarshal(raw, &out)
	return out, f.shaString(), nil
}

func (f *fakeContent) Put(ctx context.Context, doc map[string]any, sha, message string) (string, error) {
	f.puts++
	if f.conflicts > 0 {
		f.conflicts--
		return "", ErrConflict
	}
	if sha != f.shaString() {
		return "", ErrConflict
	}
	out := map[string]any{}
	raw, _ := json.Marshal(doc)
	json.Unmarshal(raw, &out)
	f.doc = out
	f.sha++
	return f.shaString(), nil
}

func TestStore_LoadIdempotent(t *testing.T) {
	content := newFakeContent(map[string]any{"watchlist": []any{"999"}})
	s := New(content, nil)

	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 1, content.gets)

	var wl []string
	ok, err := s.Get("watchlist", &wl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"999"}, wl)
}

func TestStore_FlushCleanIsNoop(t *testing.T) {
	content := newFakeContent(nil)
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Flush(context.Background(), "noop"))
	assert.Equal(t, 0, content.puts)
}

func TestStore_FlushRequiresLoad(t *testing.T) {
	s := New(newFakeContent(nil), nil)
	assert.ErrorIs(t, s.Flush(context.Background(), "x"), ErrNotLoaded)
}

func TestStore_SetDeleteFlush(t *testing.T) {
	content := newFakeContent(map[string]any{"old": "value"})
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Set("watchlist", []string{"1234567"}))
	s.Delete("old")
	assert.True(t, s.Dirty())

	require.NoError(t, s.Flush(context.Background(), "update"))
	assert.False(t, s.Dirty())
	assert.Contains(t, content.doc, "watchlist")
	assert.NotContains(t, content.doc, "old")

	// A second flush with nothing staged writes nothing.
	require.NoError(t, s.Flush(context.Background(), "again"))
	assert.Equal(t, 1, content.puts)
}

func TestStore_DeleteAbsentKeyDoesNotDirty(t *testing.T) {
	s := New(newFakeContent(nil), nil)
	require.NoError(t, s.Load(context.Background()))

	s.Delete("missing")
	assert.False(t, s.Dirty())
}

func TestStore_ConflictMergesRemote(t *testing.T) {
	content := newFakeContent(map[string]any{"watchlist": []any{"999"}})
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	// A concurrent writer lands a foreign key and bumps the SHA.
	content.doc["online_state"] = map[string]any{"999": map[string]any{"online": true}}
	content.sha++

	require.NoError(t, s.Set("watchlist", []string{"999", "1234567"}))
	require.NoError(t, s.Flush(context.Background(), "add"))

	// Both writers' keys survive: local edits over the remote base.
	assert.Contains(t, content.doc, "online_state")
	var wl []any
	raw, _ := json.Marshal(content.doc["watchlist"])
	json.Unmarshal(raw, &wl)
	assert.Len(t, wl, 2)
}

func TestStore_ConflictReplaysDeletes(t *testing.T) {
	content := newFakeContent(map[string]any{"audit:job": map[string]any{"cursor": 1}})
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	content.doc["other"] = "concurrent"
	content.sha++

	s.Delete("audit:job")
	require.NoError(t, s.Flush(context.Background(), "clear job"))

	assert.NotContains(t, content.doc, "audit:job")
	assert.Contains(t, content.doc, "other")
}

func TestStore_ConflictMergesWatchlistMembership(t *testing.T) {
	content := newFakeContent(map[string]any{"watchlist": []any{"999", "1234567"}})
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	// Concurrent writer appends 555 and bumps the SHA.
	content.doc["watchlist"] = []any{"555", "999", "1234567"}
	content.sha++

	// This writer removes 999.
	removed, err := s.WatchlistRemove("999")
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, s.Flush(context.Background(), "remove 999"))

	// The merge keeps the concurrent append and honours the removal.
	final := New(content, nil)
	require.NoError(t, final.Load(context.Background()))
	cids, err := final.Watchlist()
	require.NoError(t, err)
	assert.Equal(t, []string{"555", "1234567"}, cids)
}

func TestStore_PersistentConflict(t *testing.T) {
	content := newFakeContent(nil)
	content.conflicts = 2
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Set("k", "v"))
	assert.ErrorIs(t, s.Flush(context.Background(), "racing"), ErrConflict)
	// Staged work survives in memory for the caller to inspect or drop.
	assert.True(t, s.Dirty())
}

func TestStore_CacheRoundTrip(t *testing.T) {
	s := New(newFakeContent(nil), nil)
	require.NoError(t, s.Load(context.Background()))

	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	type member struct {
		Name string `json:"name"`
	}
	require.NoError(t, s.CachePut("member:999", member{Name: "Jo"}))

	var got member
	assert.True(t, s.CacheGet("member:999", time.Hour, &got))
	assert.Equal(t, "Jo", got.Name)

	// Stale after the TTL passes.
	s.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	assert.False(t, s.CacheGet("member:999", time.Hour, &got))

	// Absent key.
	assert.False(t, s.CacheGet("member:000", time.Hour, &got))
}

func TestStore_MaybeCleanup(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-3 * 24 * time.Hour).Unix()
	fresh := now.Add(-time.Hour).Unix()

	content := newFakeContent(map[string]any{
		"rating:1":               map[string]any{"rating": 5, "cached_at": old},
		"rating:2":               map[string]any{"rating": 3, "cached_at": fresh},
		"member:3":               map[string]any{"name": "x", "cached_at": old}, // 7d TTL, not yet 2x
		"cooldown:offline:4":     map[string]any{"expiresAt": now.Add(-time.Minute).Unix()},
		"cooldown:flag:5":        map[string]any{"expiresAt": now.Add(time.Hour).Unix()},
		"quarter:auto:2025Q1":    map[string]any{"done": true, "at": old},
		"watchlist":              []any{"999"},
		"audit:partial:visiting": []any{},
	})
	s := New(content, nil)
	require.NoError(t, s.Load(context.Background()))
	s.SetClock(func() time.Time { return now })

	deleted := s.MaybeCleanup()
	assert.Equal(t, 2, deleted)
	assert.False(t, s.Has("rating:1"))
	assert.True(t, s.Has("rating:2"))
	assert.True(t, s.Has("member:3"))
	assert.False(t, s.Has("cooldown:offline:4"))
	assert.True(t, s.Has("cooldown:flag:5"))
	assert.True(t, s.Has("quarter:auto:2025Q1"))
	assert.True(t, s.Has("watchlist"))

	// A second sweep inside the interval is skipped.
	assert.Equal(t, 0, s.MaybeCleanup())

	var last int64
	ok, _ := s.Get("_last_cleanup", &last)
	require.True(t, ok)
	assert.Equal(t, now.Unix(), last)
}
