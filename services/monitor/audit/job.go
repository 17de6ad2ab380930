// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit implements the hour-compliance engine: the job model,
// the tick-driven incremental processor, and the quarterly trigger.
//
// # Job model
//
// A job is one scoped sweep over a frozen list of CIDs. Progress is
// purely cursor-based: a slice of up to SliceSize CIDs is processed at
// a time, at most BlockSize slices per tick, and every processed
// controller leaves a partial result that survives the job. There is
// at most one job at any instant, across both scopes.
//
// # Budget discipline
//
// The engine never owns resources: it is handed a loaded Store and a
// tick Budget and stops cleanly when either the subrequest quota, the
// wall clock, or the per-tick block allowance runs out. The next tick
// resumes from the persisted cursor.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/vatwatch/pkg/validation"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
)

// Engine tuning constants.
const (
	// SliceSize is the number of CIDs processed per slice.
	SliceSize = 10

	// BlockSize is the maximum number of slices per tick.
	BlockSize = 4

	// S1ExemptDays exempts new S1-rated controllers from auditing for
	// this many days after registration.
	S1ExemptDays = 90

	// subreqsPerController is the worst-case outbound-call cost of one
	// controller: existence check, profile, sessions. Used to decide
	// whether another slice fits the remaining budget.
	subreqsPerController = 3
)

// Scope selects the activity threshold and the partial-result bucket.
type Scope string

const (
	ScopeVisiting Scope = "visiting"
	ScopeLocal    Scope = "local"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeVisiting, ScopeLocal:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown audit scope %q", s)
}

// Policy is the per-scope compliance requirement.
type Policy struct {
	// RequiredHours is the minimum controlling time inside the window.
	RequiredHours float64 `yaml:"required_hours"`

	// LookbackMonths is the window length.
	LookbackMonths int `yaml:"lookback_months"`
}

// WindowStart returns the opening instant of the lookback window ending
// at now.
func (p Policy) WindowStart(now time.Time) time.Time {
	return now.UTC().AddDate(0, -p.LookbackMonths, 0)
}

// DefaultPolicies returns the built-in per-scope requirements.
func DefaultPolicies() map[Scope]Policy {
	return map[Scope]Policy{
		ScopeVisiting: {RequiredHours: 10, LookbackMonths: 3},
		ScopeLocal:    {RequiredHours: 15, LookbackMonths: 3},
	}
}

// Job is one scoped sweep over a frozen CID list.
//
// Invariant: 0 <= Cursor <= Total == len(CIDs). The CID list never
// changes after creation; the cursor is the only mutation vector.
type Job struct {
	ID        string   `json:"id"`
	Scope     Scope    `json:"scope"`
	CIDs      []string `json:"cids"`
	Cursor    int      `json:"cursor"`
	Total     int      `json:"total"`
	CreatedAt int64    `json:"created_at"`
}

// NewJob creates a job over the given CIDs. The list is sorted so slice
// processing runs in ascending CID order.
func NewJob(scope Scope, cids []string, now time.Time) *Job {
	validation.SortCIDs(cids)
	return &Job{
		ID:        uuid.NewString(),
		Scope:     scope,
		CIDs:      cids,
		Cursor:    0,
		Total:     len(cids),
		CreatedAt: now.Unix(),
	}
}

// Done reports whether the cursor has swept the whole list.
func (j *Job) Done() bool { return j.Cursor >= j.Total }

// Progress returns completion as a 0-100 percentage.
func (j *Job) Progress() int {
	if j.Total == 0 {
		return 100
	}
	return j.Cursor * 100 / j.Total
}

// TicksRemaining estimates how many more ticks the job needs at the
// maximum per-tick rate.
func (j *Job) TicksRemaining() int {
	remaining := j.Total - j.Cursor
	perTick := SliceSize * BlockSize
	return (remaining + perTick - 1) / perTick
}

// Partial is the latest computed verdict for one controller within a
// scope, persisted even while the job is in progress.
type Partial struct {
	CID         string  `json:"cid"`
	Hours       float64 `json:"hours"`
	Flagged     bool    `json:"flagged"`
	LastSession string  `json:"last_session,omitempty"`
	ComputedAt  int64   `json:"computed_at"`
	Exempt      bool    `json:"exempt,omitempty"`
	Missing     bool    `json:"missing,omitempty"`
	Incomplete  bool    `json:"incomplete,omitempty"`
}

// Store keys.
const JobKey = "audit:job"

// PartialKey is the per-scope partial-result bucket.
func PartialKey(scope Scope) string { return "audit:partial:" + string(scope) }

// ArchiveKey is the per-controller archived verdict.
func ArchiveKey(scope Scope, cid string) string {
	return "audit:" + string(scope) + ":" + cid
}

// LoadJob reads the active job, if any.
func LoadJob(st *store.Store) (*Job, bool, error) {
	var job Job
	ok, err := st.Get(JobKey, &job)
	if err != nil || !ok {
		return nil, false, err
	}
	return &job, true, nil
}

// SaveJob stages the job.
func SaveJob(st *store.Store, job *Job) error {
	return st.Set(JobKey, job)
}

// ClearJob stages removal of the active job. Partial results survive.
func ClearJob(st *store.Store) {
	st.Delete(JobKey)
}

// LoadPartials reads a scope's partial results in processing order.
func LoadPartials(st *store.Store, scope Scope) ([]Partial, error) {
	var partials []Partial
	if _, err := st.Get(PartialKey(scope), &partials); err != nil {
		return nil, err
	}
	return partials, nil
}

// UpsertPartial stages a verdict, keyed by CID. A stale verdict never
// overwrites a newer one: the write is dropped when an existing entry
// has a later ComputedAt.
func UpsertPartial(st *store.Store, scope Scope, p Partial) error {
	partials, err := LoadPartials(st, scope)
	if err != nil {
		return err
	}
	replaced := false
	for i := range partials {
		if partials[i].CID == p.CID {
			if partials[i].ComputedAt > p.ComputedAt {
				return nil
			}
			partials[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		partials = append(partials, p)
	}
	return st.Set(PartialKey(scope), partials)
}

// ClearPartials stages removal of a scope's partial results.
func ClearPartials(st *store.Store, scope Scope) {
	st.Delete(PartialKey(scope))
}
