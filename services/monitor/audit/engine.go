// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/vatwatch/services/monitor/fetch"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// Engine advances the active job within one tick's resource budget.
//
// The engine owns no resources: it is handed a loaded Store, a
// budget-wrapped network client, and the tick Budget. Every store
// mutation is staged; the caller flushes.
type Engine struct {
	store    *store.Store
	client   *vatsim.Client
	budget   *fetch.Budget
	policies map[Scope]Policy
	throttle *Throttle
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine for one tick. policies defaults to
// DefaultPolicies when nil.
func NewEngine(st *store.Store, client *vatsim.Client, budget *fetch.Budget, policies map[Scope]Policy, logger *slog.Logger) *Engine {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		client:   client,
		budget:   budget,
		policies: policies,
		throttle: NewThrottle(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source for the engine and its progress
// throttle. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.throttle.now = now
}

// Tick advances the active job: up to BlockSize slices of SliceSize
// CIDs, stopping early on budget or wall-clock exhaustion. Returns the
// number of controllers processed. A missing or completed job is not an
// error.
func (e *Engine) Tick(ctx context.Context) (int, error) {
	job, ok, err := LoadJob(e.store)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if job.Done() {
		// A completed job left behind by an interrupted tick: clear it.
		ClearJob(e.store)
		return 0, nil
	}

	processed := 0
	blocks := 0

	for !job.Done() && blocks < BlockSize {
		end := job.Cursor + SliceSize
		if end > job.Total {
			end = job.Total
		}
		slice := job.CIDs[job.Cursor:end]

		if !e.budget.CanAfford(subreqsPerController * len(slice)) {
			e.logger.Info("audit tick stopping on budget",
				"cursor", job.Cursor, "subreqs_used", e.budget.Used())
			break
		}

		stopped := false
		for _, cid := range slice {
			partial, err := e.auditController(ctx, job.Scope, cid)
			if err != nil {
				// Budget ran out mid-slice: stop without advancing the
				// cursor; verdicts already staged this slice are upserts
				// and will be recomputed identically next tick.
				stopped = true
				break
			}
			if err := UpsertPartial(e.store, job.Scope, partial); err != nil {
				return processed, err
			}
			e.store.CachePut(ArchiveKey(job.Scope, cid), partial)
			processed++
		}
		if stopped {
			break
		}

		job.Cursor = end
		blocks++
		if err := SaveJob(e.store, job); err != nil {
			return processed, err
		}
		e.stageProgress(job)
	}

	if job.Done() {
		ClearJob(e.store)
		e.logger.Info("audit job complete",
			"job_id", job.ID, "scope", job.Scope, "total", job.Total)
	}
	return processed, nil
}

// memberEntry is the cached existence lookup.
type memberEntry struct {
	Exists bool `json:"exists"`
}

// memberMeta is the cached profile subset.
type memberMeta struct {
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
	RegDate string `json:"reg_date"`
}

// auditController computes one controller's verdict. Definitive
// outcomes (missing member, exemption, computed hours, upstream errors)
// come back as a Partial; a non-nil error means the tick's budget is
// spent and the slice must stop.
func (e *Engine) auditController(ctx context.Context, scope Scope, cid string) (Partial, error) {
	now := e.now()
	p := Partial{CID: cid, ComputedAt: now.Unix()}

	// Existence, cached 7 days.
	var entry memberEntry
	if !e.store.CacheGet("member:"+cid, store.TTLMember, &entry) {
		exists, err := e.client.MemberExists(ctx, cid)
		if budgetSpent(err) {
			return p, err
		}
		if err != nil {
			e.logger.Warn("member lookup failed", "cid", cid, "error", err)
			p.Incomplete = true
			return p, nil
		}
		entry.Exists = exists
		e.store.CachePut("member:"+cid, entry)
	}
	if !entry.Exists {
		// Missing members stay in the frozen list; they are recorded,
		// not re-fetched, and never flagged.
		p.Missing = true
		return p, nil
	}

	// Profile, cached 7 days. Also feeds the display caches.
	var meta memberMeta
	if !e.store.CacheGet("membermeta:"+cid, store.TTLMember, &meta) {
		m, err := e.client.Member(ctx, cid)
		if budgetSpent(err) {
			return p, err
		}
		if err != nil {
			e.logger.Warn("member profile failed", "cid", cid, "error", err)
			p.Incomplete = true
			return p, nil
		}
		meta = memberMeta{Name: m.FullName(), Rating: m.Rating, RegDate: m.RegDate}
		e.store.CachePut("membermeta:"+cid, meta)
		e.store.CachePut("rating:"+cid, map[string]any{
			"rating": m.Rating,
			"label":  vatsim.RatingLabel(m.Rating),
		})
		if m.Division != "" {
			e.store.CachePut("division:"+cid, map[string]any{"division": m.Division})
		}
	}

	// S1 controllers inside the post-registration window are skipped.
	if meta.Rating == vatsim.RatingS1 {
		if reg, err := parseRegDate(meta.RegDate); err == nil {
			if now.Sub(reg) < S1ExemptDays*24*time.Hour {
				p.Exempt = true
				return p, nil
			}
		}
	}

	policy := e.policies[scope]
	sum, err := e.client.ATCSessions(ctx, cid, policy.WindowStart(now))
	if budgetSpent(err) {
		return p, err
	}
	if err != nil {
		e.logger.Warn("session fetch failed", "cid", cid, "error", err)
		p.Incomplete = true
		return p, nil
	}

	p.Hours = sum.Hours
	p.LastSession = sum.LastSession
	p.Flagged = sum.Hours < policy.RequiredHours

	if p.Flagged {
		key := store.CooldownFlagKey(cid)
		if !e.store.InCooldown(key) {
			e.store.SetCooldown(key, store.CooldownFlag)
		}
	}
	return p, nil
}

// budgetSpent reports whether an error means the tick itself is out of
// resources, as opposed to one controller's data being unavailable.
func budgetSpent(err error) bool {
	return errors.Is(err, fetch.ErrBudgetExhausted) || errors.Is(err, fetch.ErrDeadline)
}

// parseRegDate accepts the members API's registration timestamp, which
// appears both with and without a zone suffix.
func parseRegDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// progressKey exposes cursor progress for UI polling.
const progressKey = "audit:progress"

// stageProgress stages a progress record, rate-limited by the edit
// throttle so a fast tick cannot flood observers.
func (e *Engine) stageProgress(job *Job) {
	if !e.throttle.Allow() {
		return
	}
	e.store.Set(progressKey, map[string]any{
		"id":         job.ID,
		"scope":      job.Scope,
		"cursor":     job.Cursor,
		"total":      job.Total,
		"progress":   job.Progress(),
		"updated_at": e.now().Unix(),
	})
}
