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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleCID_StringAndNumber(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"cid": "1234567"}`, "1234567"},
		{"number", `{"cid": 1234567}`, "1234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req AddWatchlistRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, string(req.CID))
		})
	}

	var req AddWatchlistRequest
	assert.Error(t, json.Unmarshal([]byte(`{"cid": ["nope"]}`), &req))
}

func TestAddWatchlistRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cid     string
		want    string
		wantErr bool
	}{
		{"canonical", "1234567", "1234567", false},
		{"leading zeros stripped", "0012345", "12345", false},
		{"letters", "abc", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := AddWatchlistRequest{CID: FlexibleCID(tt.cid)}
			got, err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAuditRequest_Validate(t *testing.T) {
	assert.NoError(t, (&RunAuditRequest{Scope: "visiting"}).Validate())
	assert.NoError(t, (&RunAuditRequest{Scope: "local"}).Validate())
	assert.Error(t, (&RunAuditRequest{Scope: "global"}).Validate())
	assert.Error(t, (&RunAuditRequest{}).Validate())
}

func TestValidationMessage(t *testing.T) {
	req := AddWatchlistRequest{CID: "abc"}
	_, err := req.Validate()
	require.Error(t, err)
	assert.Equal(t, "Invalid CID format", ValidationMessage(err))
}

func TestFormatEpoch(t *testing.T) {
	assert.Empty(t, FormatEpoch(0))
	assert.Equal(t, "2025-04-01T00:00:00Z", FormatEpoch(1743465600))
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "Controller 999", FallbackName("999"))
}
