// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// store keys and outbound API paths. Using these validators prevents key
// injection and malformed upstream requests.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// cidPattern matches a canonical controller ID: 3-10 decimal digits with
// no leading zero.
var cidPattern = regexp.MustCompile(`^[1-9][0-9]{2,9}$`)

// ValidateCID validates a canonical controller ID.
//
// Valid CIDs:
//   - 3-10 characters
//   - Digits 0-9 only
//   - No leading zeros
//
// Returns an error if the CID is invalid.
//
// Example:
//
//	if err := validation.ValidateCID(cid); err != nil {
//	    return fmt.Errorf("invalid cid: %w", err)
//	}
//	// Safe to use in a store key or URL path
func ValidateCID(cid string) error {
	if cid == "" {
		return fmt.Errorf("cid cannot be empty")
	}

	if !cidPattern.MatchString(cid) {
		return fmt.Errorf("invalid CID format: %q (must be 3-10 digits)", cid)
	}

	return nil
}

// CanonicalCID normalizes and validates a controller ID.
//
// Non-digit characters are stripped, leading zeros are removed, and the
// result is validated. Returns the canonical decimal string, or an error
// if no valid CID remains.
//
// Use this at every API and config boundary:
//
//	cid, err := validation.CanonicalCID(userInput)
//	if err != nil {
//	    return err
//	}
//	// cid is all-digits, 3-10 chars, no leading zeros
func CanonicalCID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("invalid CID format: %q (no digits)", raw)
	}
	if len(digits) > 10 {
		return "", fmt.Errorf("invalid CID format: %q (too long)", raw)
	}

	// Re-emit through the integer to strip leading zeros.
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid CID format: %q: %w", raw, err)
	}
	canonical := strconv.FormatUint(n, 10)

	if err := ValidateCID(canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

// CanonicalCIDs normalizes a list of controller IDs, collapsing duplicates
// while preserving ascending numeric order. Invalid entries are reported
// together in a single error.
func CanonicalCIDs(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	var invalid []string
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		cid, err := CanonicalCID(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if !seen[cid] {
			seen[cid] = true
			out = append(out, cid)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid CIDs: %v", invalid)
	}
	SortCIDs(out)
	return out, nil
}

// SortCIDs sorts canonical CIDs in ascending numeric order in place.
func SortCIDs(cids []string) {
	// Canonical CIDs have no leading zeros, so shorter strings are
	// numerically smaller and equal lengths compare lexicographically.
	sort.Slice(cids, func(i, j int) bool {
		if len(cids[i]) != len(cids[j]) {
			return len(cids[i]) < len(cids[j])
		}
		return cids[i] < cids[j]
	})
}
