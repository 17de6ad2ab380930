// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// RunAuditRequest is the POST /api/audit/run body.
type RunAuditRequest struct {
	Scope string `json:"scope" validate:"required,oneof=visiting local"`
}

// Validate checks the request.
func (r *RunAuditRequest) Validate() error {
	return validate.Struct(r)
}

// ActiveAudit is one in-progress entry of GET /api/audit/:scope.
type ActiveAudit struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	TicksRemaining int     `json:"ticksRemaining"`
	StartedAt      string  `json:"startedAt"`
	CompletedAt    *string `json:"completedAt"`
}

// CompletedAudit is one per-controller verdict of GET /api/audit/:scope.
type CompletedAudit struct {
	ID             string  `json:"id"`
	CID            string  `json:"cid"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	HoursLogged    float64 `json:"hoursLogged"`
	Flagged        bool    `json:"flagged"`
	TicksRemaining int     `json:"ticksRemaining"`
	StartedAt      string  `json:"startedAt"`
	CompletedAt    string  `json:"completedAt"`
}

// AuditStats aggregates a scope's results.
type AuditStats struct {
	TotalActive    int     `json:"totalActive"`
	TotalCompleted int     `json:"totalCompleted"`
	AverageHours   float64 `json:"averageHours"`
}

// AuditResponse is the GET /api/audit/:scope envelope.
type AuditResponse struct {
	Active    []ActiveAudit    `json:"active"`
	Completed []CompletedAudit `json:"completed"`
	Stats     AuditStats       `json:"stats"`
}

// PresenceController is one online entry of GET /api/presence.
type PresenceController struct {
	CID       string `json:"cid"`
	Callsign  string `json:"callsign"`
	Frequency string `json:"frequency,omitempty"`
	Name      string `json:"name,omitempty"`
}

// PresenceResponse is the GET /api/presence envelope.
type PresenceResponse struct {
	Online []PresenceController `json:"online"`
}

// StatsResponse is the GET /api/stats envelope.
type StatsResponse struct {
	WatchlistSize  int            `json:"watchlistSize"`
	OnlineNow      int            `json:"onlineNow"`
	ActiveJob      *ActiveAudit   `json:"activeJob"`
	PartialResults map[string]int `json:"partialResults"`
	FlaggedByScope map[string]int `json:"flaggedByScope"`
}
