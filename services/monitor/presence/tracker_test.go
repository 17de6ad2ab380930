// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// memContent is a minimal in-memory ContentClient for tracker tests.
type memContent struct {
	doc map[string]any
}

func (m *memContent) Get(ctx context.Context) (map[string]any, string, error) {
	if m.doc == nil {
		m.doc = map[string]any{}
	}
	return m.doc, "sha1", nil
}

func (m *memContent) Put(ctx context.Context, doc map[string]any, sha, message string) (string, error) {
	m.doc = doc
	return "sha2", nil
}

func loadedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(&memContent{}, nil)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestUpdate_OnlineTransition(t *testing.T) {
	s := loadedStore(t)
	tr := NewTracker(s, nil)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	s.SetClock(func() time.Time { return now })

	feed := []vatsim.OnlineController{
		{CID: "1234567", Callsign: "BOS_TWR", Frequency: "128.800", Name: "Jo"},
		{CID: "555", Callsign: "LAX_GND"}, // not watched
	}
	n, err := tr.Update(feed, map[string]bool{"1234567": true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	states, err := tr.States()
	require.NoError(t, err)
	st := states["1234567"]
	assert.True(t, st.Online)
	assert.Equal(t, now.Unix(), st.LastChange)
	assert.Equal(t, "BOS_TWR", st.LastInfo.Callsign)
	assert.NotContains(t, states, "555")

	assert.True(t, s.InCooldown(store.CooldownOnlineKey("1234567", "BOS_TWR")))
}

func TestUpdate_OfflinePreservesInfo(t *testing.T) {
	s := loadedStore(t)
	tr := NewTracker(s, nil)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	s.SetClock(func() time.Time { return now })
	watched := map[string]bool{"1234567": true}

	_, err := tr.Update([]vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_TWR"}}, watched)
	require.NoError(t, err)

	later := now.Add(10 * time.Minute)
	tr.SetClock(func() time.Time { return later })
	n, err := tr.Update(nil, watched)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	states, err := tr.States()
	require.NoError(t, err)
	st := states["1234567"]
	assert.False(t, st.Online)
	assert.Equal(t, later.Unix(), st.LastChange)
	// The last-known callsign survives for display.
	assert.Equal(t, "BOS_TWR", st.LastInfo.Callsign)
}

func TestUpdate_StableFeedConverges(t *testing.T) {
	s := loadedStore(t)
	tr := NewTracker(s, nil)
	watched := map[string]bool{"1234567": true}
	feed := []vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_TWR"}}

	_, err := tr.Update(feed, watched)
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background(), "tick 1"))

	n, err := tr.Update(feed, watched)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, s.Dirty())
}

func TestUpdate_CallsignMove(t *testing.T) {
	s := loadedStore(t)
	tr := NewTracker(s, nil)
	watched := map[string]bool{"1234567": true}

	_, err := tr.Update([]vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_TWR"}}, watched)
	require.NoError(t, err)

	n, err := tr.Update([]vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_APP"}}, watched)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	states, err := tr.States()
	require.NoError(t, err)
	assert.Equal(t, "BOS_APP", states["1234567"].LastInfo.Callsign)
}

func TestUpdate_CooldownNotRefreshed(t *testing.T) {
	s := loadedStore(t)
	tr := NewTracker(s, nil)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	s.SetClock(func() time.Time { return now })
	watched := map[string]bool{"1234567": true}

	_, err := tr.Update([]vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_TWR"}}, watched)
	require.NoError(t, err)

	key := store.CooldownOnlineKey("1234567", "BOS_TWR")
	var marker struct {
		ExpiresAt int64 `json:"expiresAt"`
	}
	_, err = s.Get(key, &marker)
	require.NoError(t, err)
	original := marker.ExpiresAt

	// Bounce offline and back online inside the window: the original
	// marker must keep its expiry.
	now = now.Add(5 * time.Minute)
	_, err = tr.Update(nil, watched)
	require.NoError(t, err)
	_, err = tr.Update([]vatsim.OnlineController{{CID: "1234567", Callsign: "BOS_TWR"}}, watched)
	require.NoError(t, err)

	assert.True(t, s.InCooldown(key))
	_, err = s.Get(key, &marker)
	require.NoError(t, err)
	assert.Equal(t, original, marker.ExpiresAt)
}
