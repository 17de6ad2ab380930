// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/datatypes"
	"github.com/AleutianAI/vatwatch/services/monitor/presence"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// timeNow is the handlers' time source. Test hook.
var timeNow = time.Now

// GetPresence intersects the live feed with the watchlist.
func GetPresence(content store.ContentClient, feed *vatsim.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := loadStore(c, content)
		if st == nil {
			return
		}
		watched, err := st.WatchlistSet()
		if err != nil {
			slog.Error("watchlist read failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read watchlist"})
			return
		}

		online, err := feed.OnlineControllers(c.Request.Context())
		if err != nil {
			slog.Error("live feed fetch failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Unable to load live feed"})
			return
		}

		resp := datatypes.PresenceResponse{Online: []datatypes.PresenceController{}}
		for _, ctrl := range online {
			if !watched[ctrl.CID] {
				continue
			}
			resp.Online = append(resp.Online, datatypes.PresenceController{
				CID:       ctrl.CID,
				Callsign:  ctrl.Callsign,
				Frequency: ctrl.Frequency,
				Name:      ctrl.Name,
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetStats aggregates roster, job, and partial-result counts.
func GetStats(content store.ContentClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := loadStore(c, content)
		if st == nil {
			return
		}

		cids, err := st.Watchlist()
		if err != nil {
			slog.Error("watchlist read failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read watchlist"})
			return
		}

		resp := datatypes.StatsResponse{
			WatchlistSize:  len(cids),
			PartialResults: map[string]int{},
			FlaggedByScope: map[string]int{},
		}

		if states, err := presence.NewTracker(st, nil).States(); err == nil {
			for _, state := range states {
				if state.Online {
					resp.OnlineNow++
				}
			}
		}

		if job, ok, _ := audit.LoadJob(st); ok && !job.Done() {
			entry := activeEntry(job)
			resp.ActiveJob = &entry
		}

		for _, scope := range []audit.Scope{audit.ScopeVisiting, audit.ScopeLocal} {
			partials, err := audit.LoadPartials(st, scope)
			if err != nil {
				continue
			}
			resp.PartialResults[string(scope)] = len(partials)
			flagged := 0
			for _, p := range partials {
				if p.Flagged {
					flagged++
				}
			}
			resp.FlaggedByScope[string(scope)] = flagged
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HealthCheck is the liveness probe.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vatwatch-monitor"})
}
