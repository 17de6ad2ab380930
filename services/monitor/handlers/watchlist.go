// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the monitor's REST endpoints.
//
// Every handler creates its own Store over the shared ContentClient,
// loads the document, stages its mutation, and flushes before
// responding: the store lifecycle is bounded by one request. Unexpected
// failures return a generic 500; detail goes to the log, not the
// client.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vatwatch/pkg/validation"
	"github.com/AleutianAI/vatwatch/services/monitor/datatypes"
	"github.com/AleutianAI/vatwatch/services/monitor/presence"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// loadStore builds and loads a request-scoped Store. On failure it
// writes the 500 response and returns nil.
func loadStore(c *gin.Context, content store.ContentClient) *store.Store {
	st := store.New(content, nil)
	if err := st.Load(c.Request.Context()); err != nil {
		slog.Error("store load failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load store"})
		return nil
	}
	return st
}

// flushStore persists staged edits. On failure it writes the error
// response and returns false.
func flushStore(c *gin.Context, st *store.Store, message string) bool {
	err := st.Flush(c.Request.Context(), message)
	if err == store.ErrConflict {
		slog.Error("store flush conflict", "message", message)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
		return false
	}
	if err != nil {
		slog.Error("store flush failed", "message", message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to save store"})
		return false
	}
	return true
}

// displayName resolves a controller's display name from the cached
// profile, falling back to a CID-derived placeholder.
func displayName(st *store.Store, cid string) string {
	var meta struct {
		Name string `json:"name"`
	}
	if st.CacheGet("membermeta:"+cid, store.TTLMember, &meta) && meta.Name != "" {
		return meta.Name
	}
	return datatypes.FallbackName(cid)
}

// ratingLabel resolves the cached rating label, or "".
func ratingLabel(st *store.Store, cid string) string {
	var r struct {
		Label string `json:"label"`
	}
	st.CacheGet("rating:"+cid, store.TTLRating, &r)
	return r.Label
}

// GetWatchlist returns the roster annotated with presence and cached
// profile data.
func GetWatchlist(content store.ContentClient) gin.HandlerFunc {
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
		states, err := presence.NewTracker(st, nil).States()
		if err != nil {
			states = map[string]presence.State{}
		}

		users := make([]datatypes.WatchlistUser, 0, len(cids))
		for _, cid := range cids {
			users = append(users, datatypes.WatchlistUser{
				CID:      cid,
				Name:     displayName(st, cid),
				Rating:   ratingLabel(st, cid),
				AddedAt:  datatypes.FormatEpoch(st.WatchlistAddedAt(cid)),
				IsOnline: states[cid].Online,
			})
		}
		c.JSON(http.StatusOK, datatypes.WatchlistResponse{Users: users})
	}
}

// AddToWatchlist canonicalises the submitted CID, verifies it exists on
// the network, and inserts it.
func AddToWatchlist(content store.ContentClient, feed *vatsim.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AddWatchlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		cid, err := req.Validate()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": datatypes.ValidationMessage(err)})
			return
		}

		st := loadStore(c, content)
		if st == nil {
			return
		}

		cids, err := st.Watchlist()
		if err == nil {
			for _, existing := range cids {
				if existing == cid {
					c.JSON(http.StatusConflict, gin.H{"error": "Already on watchlist"})
					return
				}
			}
		}

		// Existence check, cached 7 days. The profile fetch doubles as
		// the name/rating enrichment for later list reads.
		var entry struct {
			Exists bool `json:"exists"`
		}
		if !st.CacheGet("member:"+cid, store.TTLMember, &entry) {
			exists, err := feed.MemberExists(c.Request.Context(), cid)
			if err != nil {
				slog.Error("member verification failed", "cid", cid, "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "Unable to verify CID"})
				return
			}
			entry.Exists = exists
			st.CachePut("member:"+cid, entry)
		}
		if !entry.Exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "CID not found on network"})
			return
		}

		if !st.CacheGet("membermeta:"+cid, store.TTLMember, nil) {
			if m, err := feed.Member(c.Request.Context(), cid); err == nil {
				st.CachePut("membermeta:"+cid, map[string]any{
					"name":     m.FullName(),
					"rating":   m.Rating,
					"reg_date": m.RegDate,
				})
				st.CachePut("rating:"+cid, map[string]any{
					"rating": m.Rating,
					"label":  vatsim.RatingLabel(m.Rating),
				})
			}
		}

		added, err := st.WatchlistAdd(cid)
		if err != nil {
			slog.Error("watchlist add failed", "cid", cid, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to update watchlist"})
			return
		}
		if !added {
			c.JSON(http.StatusConflict, gin.H{"error": "Already on watchlist"})
			return
		}
		if !flushStore(c, st, "watchlist: add "+cid) {
			return
		}

		slog.Info("watchlist add", "cid", cid)
		c.JSON(http.StatusOK, datatypes.AddWatchlistResponse{
			Success: true,
			User: datatypes.WatchlistUser{
				CID:     cid,
				Name:    displayName(st, cid),
				AddedAt: datatypes.FormatEpoch(st.WatchlistAddedAt(cid)),
			},
		})
	}
}

// RemoveFromWatchlist deletes a roster entry.
func RemoveFromWatchlist(content store.ContentClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid, err := validation.CanonicalCID(c.Param("cid"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid CID format"})
			return
		}

		st := loadStore(c, content)
		if st == nil {
			return
		}

		removed, err := st.WatchlistRemove(cid)
		if err != nil {
			slog.Error("watchlist remove failed", "cid", cid, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to update watchlist"})
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not on watchlist"})
			return
		}
		if !flushStore(c, st, "watchlist: remove "+cid) {
			return
		}

		slog.Info("watchlist remove", "cid", cid)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
