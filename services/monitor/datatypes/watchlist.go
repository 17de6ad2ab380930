// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the monitor
// HTTP API.
//
// Requests validate with go-playground/validator; a custom "cid"
// validator backs every field that ends up in a store key or an
// upstream URL.
package datatypes

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/vatwatch/pkg/validation"
)

// validate is the shared validator instance, initialized with the
// custom cid validator.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("cid", validateCIDField)
}

// validateCIDField accepts any value CanonicalCID can normalize.
func validateCIDField(fl validator.FieldLevel) bool {
	_, err := validation.CanonicalCID(fl.Field().String())
	return err == nil
}

// FlexibleCID accepts a JSON string or number; clients send both.
type FlexibleCID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleCID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleCID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleCID(n.String())
	return nil
}

// AddWatchlistRequest is the POST /api/watchlist body.
type AddWatchlistRequest struct {
	CID FlexibleCID `json:"cid" validate:"required,cid"`
}

// Validate checks the request and returns the canonical CID.
func (r *AddWatchlistRequest) Validate() (string, error) {
	if err := validate.Struct(r); err != nil {
		return "", err
	}
	return validation.CanonicalCID(string(r.CID))
}

// WatchlistUser is one entry of the GET /api/watchlist response.
type WatchlistUser struct {
	CID      string `json:"cid"`
	Name     string `json:"name"`
	Rating   string `json:"rating,omitempty"`
	AddedAt  string `json:"addedAt"`
	IsOnline bool   `json:"isOnline"`
}

// WatchlistResponse is the GET /api/watchlist envelope.
type WatchlistResponse struct {
	Users []WatchlistUser `json:"users"`
}

// AddWatchlistResponse is the POST /api/watchlist success envelope.
type AddWatchlistResponse struct {
	Success bool          `json:"success"`
	User    WatchlistUser `json:"user"`
}

// FallbackName is the display name used when no cached profile exists.
func FallbackName(cid string) string {
	return "Controller " + cid
}

// FormatEpoch renders an epoch-seconds value as ISO8601 UTC, or "" for
// zero (entries that predate insertion-time tracking).
func FormatEpoch(epoch int64) string {
	if epoch == 0 {
		return ""
	}
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}

// ValidationMessage flattens a validator error into the API's flat
// error string.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		if verrs[0].Tag() == "cid" || field == "cid" {
			return "Invalid CID format"
		}
		return "Invalid " + field
	}
	return "Invalid request"
}
