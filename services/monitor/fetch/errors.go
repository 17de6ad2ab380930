// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrBudgetExhausted is returned when the per-tick subrequest budget is
// spent. Callers treat it as "no data this round", not as a failure.
var ErrBudgetExhausted = errors.New("fetch: subrequest budget exhausted")

// ErrDeadline is returned when the remaining tick wall-clock cannot
// accommodate another call.
var ErrDeadline = errors.New("fetch: tick deadline reached")

// HTTPError carries a non-2xx upstream status plus any server-provided
// retry hint.
type HTTPError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Status)
}

// HTTPStatusError builds an HTTPError from a response, parsing the
// Retry-After header (delta-seconds form) when present.
func HTTPStatusError(res *http.Response) error {
	e := &HTTPError{Status: res.StatusCode}
	if v := res.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// transientError marks a network-level failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps a network-level error so IsRetryable reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether an error should trigger another attempt:
// network failures, and 403/429/5xx upstream statuses.
func IsRetryable(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status == http.StatusForbidden ||
			he.Status == http.StatusTooManyRequests ||
			he.Status >= 500
	}
	return false
}

// retryAfterHint extracts the server's Retry-After wish, if any.
func retryAfterHint(err error) time.Duration {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return 0
}
