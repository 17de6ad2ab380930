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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vatwatch/services/monitor/audit"
	"github.com/AleutianAI/vatwatch/services/monitor/datatypes"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

// activeEntry renders the running job for the API.
func activeEntry(job *audit.Job) datatypes.ActiveAudit {
	return datatypes.ActiveAudit{
		ID:             job.ID,
		Type:           string(job.Scope),
		Status:         "active",
		Progress:       job.Progress(),
		TicksRemaining: job.TicksRemaining(),
		StartedAt:      datatypes.FormatEpoch(job.CreatedAt),
		CompletedAt:    nil,
	}
}

// GetAudit returns a scope's active job and partial results.
func GetAudit(content store.ContentClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := audit.ParseScope(c.Param("scope"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown audit scope"})
			return
		}

		st := loadStore(c, content)
		if st == nil {
			return
		}

		resp := datatypes.AuditResponse{
			Active:    []datatypes.ActiveAudit{},
			Completed: []datatypes.CompletedAudit{},
		}

		job, ok, err := audit.LoadJob(st)
		if err != nil {
			slog.Error("audit job read failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read audit state"})
			return
		}
		if ok && job.Scope == scope && !job.Done() {
			resp.Active = append(resp.Active, activeEntry(job))
			resp.Stats.TotalActive = 1
		}

		partials, err := audit.LoadPartials(st, scope)
		if err != nil {
			slog.Error("audit partials read failed", "scope", scope, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read audit results"})
			return
		}

		var hoursSum float64
		hoursCount := 0
		for _, p := range partials {
			resp.Completed = append(resp.Completed, datatypes.CompletedAudit{
				ID:             "audit_" + p.CID,
				CID:            p.CID,
				Name:           displayName(st, p.CID),
				Type:           string(scope),
				Status:         "completed",
				HoursLogged:    p.Hours,
				Flagged:        p.Flagged,
				TicksRemaining: 0,
				StartedAt:      datatypes.FormatEpoch(p.ComputedAt),
				CompletedAt:    datatypes.FormatEpoch(p.ComputedAt),
			})
			if !p.Exempt && !p.Missing && !p.Incomplete {
				hoursSum += p.Hours
				hoursCount++
			}
		}
		resp.Stats.TotalCompleted = len(partials)
		if hoursCount > 0 {
			resp.Stats.AverageHours = hoursSum / float64(hoursCount)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// RunAudit enqueues a manual sweep over the current watchlist. Rejected
// while any job is active, in either scope.
func RunAudit(content store.ContentClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunAuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown audit scope"})
			return
		}
		scope, _ := audit.ParseScope(req.Scope)

		st := loadStore(c, content)
		if st == nil {
			return
		}

		if _, ok, _ := audit.LoadJob(st); ok {
			c.JSON(http.StatusConflict, gin.H{"error": "An audit is already running"})
			return
		}

		cids, err := st.Watchlist()
		if err != nil {
			slog.Error("watchlist read failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read watchlist"})
			return
		}

		job := audit.NewJob(scope, cids, timeNow())
		if err := audit.SaveJob(st, job); err != nil {
			slog.Error("audit job save failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to enqueue audit"})
			return
		}
		audit.ClearPartials(st, scope)
		if !flushStore(c, st, "audit: manual "+req.Scope+" run") {
			return
		}

		slog.Info("manual audit enqueued", "scope", scope, "controllers", job.Total, "job_id", job.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "job": activeEntry(job)})
	}
}

// CancelAudit clears the active job. Partial results survive.
func CancelAudit(content store.ContentClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := loadStore(c, content)
		if st == nil {
			return
		}

		job, ok, err := audit.LoadJob(st)
		if err != nil {
			slog.Error("audit job read failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read audit state"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "No audit running"})
			return
		}

		audit.ClearJob(st)
		if !flushStore(c, st, "audit: cancel "+string(job.Scope)) {
			return
		}

		slog.Info("audit cancelled", "job_id", job.ID, "scope", job.Scope)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
