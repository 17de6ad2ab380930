// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

// ghFake serves the contents API with real SHA preconditions.
type ghFake struct {
	mu  sync.Mutex
	doc []byte
	rev int
}

func (g *ghFake) sha() string { return fmt.Sprintf("rev-%d", g.rev) }

func (g *ghFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if g.doc == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"sha":     g.sha(),
				"content": base64.StdEncoding.EncodeToString(g.doc),
			})
		case http.MethodPut:
			var body struct {
				SHA     string `json:"sha"`
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if g.doc != nil && body.SHA != g.sha() {
				w.WriteHeader(http.StatusConflict)
				return
			}
			raw, err := base64.StdEncoding.DecodeString(body.Content)
			if err != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			g.doc = raw
			g.rev++
			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]any{"sha": g.sha()},
			})
		}
	}
}

func (g *ghFake) document(t *testing.T) map[string]any {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	doc := map[string]any{}
	require.NoError(t, json.Unmarshal(g.doc, &doc))
	return doc
}

// vatsimFake serves the data feed and members API.
func vatsimFake(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "vatsim-data.json"):
			w.Write([]byte(`{"controllers": [{"cid": 1000000, "callsign": "BOS_TWR", "frequency": "128.800", "name": "Jo"}]}`))
		case strings.Contains(r.URL.Path, "atcsessions"):
			w.Write([]byte(`{"items": [{"start": "` + time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339) + `", "minutes_on_callsign": "90.0"}]}`))
		default:
			w.Write([]byte(`{"id": 1, "name_first": "Jo", "name_last": "Controller", "rating": 4, "reg_date": "2020-01-01T00:00:00"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, gh *ghFake) *service {
	t.Helper()
	ghSrv := httptest.NewServer(gh.handler())
	t.Cleanup(ghSrv.Close)
	vs := vatsimFake(t)

	svc, err := New(Config{
		GitHub:        store.GitHubConfig{Repo: "acme/data", BaseURL: ghSrv.URL},
		VatsimDataURL: vs.URL + "/vatsim-data.json",
		VatsimAPIURL:  vs.URL,
		GinMode:       gin.TestMode,
		Registry:      prometheus.NewRegistry(),
	}, nil)
	require.NoError(t, err)
	return svc.(*service)
}

func seedDoc(t *testing.T, gh *ghFake, doc map[string]any) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	gh.mu.Lock()
	gh.doc = raw
	gh.rev = 1
	gh.mu.Unlock()
}

func TestNew_RequiresRepo(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestTick_AdvancesJobAndTracksPresence(t *testing.T) {
	gh := &ghFake{}
	cids := make([]any, 50)
	doc := map[string]any{}
	for i := range cids {
		cid := fmt.Sprintf("%d", 1000000+i)
		cids[i] = cid
		// Warm the member caches so each controller costs one session
		// fetch and the tick budget leaves room for presence.
		doc["member:"+cid] = map[string]any{"exists": true, "cached_at": time.Now().Unix()}
		doc["membermeta:"+cid] = map[string]any{"name": "Jo Controller", "rating": 4, "reg_date": "2020-01-01T00:00:00", "cached_at": time.Now().Unix()}
	}
	doc["watchlist"] = cids
	doc["audit:job"] = map[string]any{
		"id": "job-1", "scope": "visiting", "cids": cids,
		"cursor": 0, "total": 50, "created_at": time.Now().Unix(),
	}
	seedDoc(t, gh, doc)

	svc := newService(t, gh)
	// A fixed future instant keeps the tick deadline open and stays off
	// the quarter-start window regardless of when the test runs.
	svc.now = func() time.Time { return time.Date(2030, 5, 15, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, svc.Tick(context.Background()))

	doc = gh.document(t)

	// One tick advances the cursor by at most BlockSize*SliceSize.
	var job audit.Job
	raw, _ := json.Marshal(doc["audit:job"])
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, 40, job.Cursor)

	var partials []audit.Partial
	raw, _ = json.Marshal(doc["audit:partial:visiting"])
	require.NoError(t, json.Unmarshal(raw, &partials))
	assert.Len(t, partials, 40)
	// 1.5h in a 3-month window is under the 10h visiting requirement.
	assert.True(t, partials[0].Flagged)

	// The watched controller on the feed came online.
	states, ok := doc["online_state"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, states, "1000000")

	// The second tick completes the sweep and clears the job.
	require.NoError(t, svc.Tick(context.Background()))
	doc = gh.document(t)
	assert.NotContains(t, doc, "audit:job")

	raw, _ = json.Marshal(doc["audit:partial:visiting"])
	require.NoError(t, json.Unmarshal(raw, &partials))
	assert.Len(t, partials, 50)
}

func TestTick_Restartability(t *testing.T) {
	// A tick that never flushed leaves the document untouched; rerunning
	// from persisted state converges to the same result set.
	gh := &ghFake{}
	seedDoc(t, gh, map[string]any{
		"watchlist": []any{"1000000"},
		"audit:job": map[string]any{
			"id": "job-1", "scope": "visiting", "cids": []any{"1000000"},
			"cursor": 0, "total": 1, "created_at": time.Now().Unix(),
		},
	})

	svc := newService(t, gh)
	svc.now = func() time.Time { return time.Date(2030, 5, 15, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, svc.Tick(context.Background()))
	first := gh.document(t)

	// Simulate the interrupted run by rolling the document back.
	seedDoc(t, gh, map[string]any{
		"watchlist": []any{"1000000"},
		"audit:job": map[string]any{
			"id": "job-1", "scope": "visiting", "cids": []any{"1000000"},
			"cursor": 0, "total": 1, "created_at": time.Now().Unix(),
		},
	})
	svc2 := newService(t, gh)
	svc2.now = func() time.Time { return time.Date(2030, 5, 15, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, svc2.Tick(context.Background()))
	second := gh.document(t)

	rawA, _ := json.Marshal(first["audit:partial:visiting"])
	rawB, _ := json.Marshal(second["audit:partial:visiting"])
	var a, b []audit.Partial
	require.NoError(t, json.Unmarshal(rawA, &a))
	require.NoError(t, json.Unmarshal(rawB, &b))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].CID, b[0].CID)
	assert.Equal(t, a[0].Flagged, b[0].Flagged)
	assert.InDelta(t, a[0].Hours, b[0].Hours, 0.001)
}

func TestTick_QuarterlyEnqueue(t *testing.T) {
	gh := &ghFake{}
	seedDoc(t, gh, map[string]any{"watchlist": []any{"1000000", "1000001"}})

	svc := newService(t, gh)
	at := time.Date(2025, 4, 1, 0, 2, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	require.NoError(t, svc.Tick(context.Background()))
	doc := gh.document(t)

	assert.Contains(t, doc, "quarter:auto:2025Q1")
	var job audit.Job
	raw, _ := json.Marshal(doc["audit:job"])
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, audit.ScopeVisiting, job.Scope)
	assert.Equal(t, 2, job.Total)

	jobID := job.ID

	// A second tick in the same hour does not enqueue a fresh job.
	require.NoError(t, svc.Tick(context.Background()))
	doc = gh.document(t)
	raw, _ = json.Marshal(doc["audit:job"])
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, jobID, job.ID)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	gh := &ghFake{}
	svc := newService(t, gh)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
