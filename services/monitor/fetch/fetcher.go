// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch wraps outbound HTTP calls with the per-tick resource
// discipline: a subrequest budget, a wall-clock deadline, a smoothing
// rate limiter, and retry with exponential backoff for the store's
// control-plane writes.
//
// # Budget model
//
// A scheduled tick may issue at most SubreqBudgetPerTick outbound calls
// and run for at most MaxTickDuration. The Budget is created at tick
// entry and shared by every component the tick touches; a call is
// refused up front (ErrBudgetExhausted / ErrDeadline) rather than
// started and abandoned.
//
// Data-plane fetches are single-attempt: a transient failure means "no
// data this tick" and the affected slice is retried on the next tick.
// Store writes retry per StoreRetryConfig.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Tick resource limits.
const (
	// SubreqBudgetPerTick is the outbound-call quota of one tick.
	SubreqBudgetPerTick = 120

	// MaxTickDuration is the wall-clock budget of one tick.
	MaxTickDuration = 12 * time.Second

	// CallTimeout is the hard per-call timeout. Calls launched near the
	// deadline get the remaining tick time instead.
	CallTimeout = 25 * time.Second
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Budget tracks one tick's outbound-call quota and deadline.
//
// Not safe for concurrent use: ticks are single-threaded and each tick
// builds its own Budget. HTTP requests do not use a Budget.
type Budget struct {
	limit    int
	used     int
	deadline time.Time
	now      func() time.Time
}

// NewBudget creates a Budget with the standard tick limits, anchored at
// start.
func NewBudget(start time.Time) *Budget {
	return &Budget{
		limit:    SubreqBudgetPerTick,
		deadline: start.Add(MaxTickDuration),
		now:      time.Now,
	}
}

// NewBudgetWithLimit creates a Budget with a custom call quota and
// deadline. A zero deadline never expires. Test hook.
func NewBudgetWithLimit(limit int, deadline time.Time) *Budget {
	return &Budget{limit: limit, deadline: deadline, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (b *Budget) SetClock(now func() time.Time) { b.now = now }

// Used returns the number of consumed subrequests.
func (b *Budget) Used() int { return b.used }

// Remaining returns the number of subrequests still available.
func (b *Budget) Remaining() int { return b.limit - b.used }

// Deadline returns the tick's wall-clock deadline.
func (b *Budget) Deadline() time.Time { return b.deadline }

// Expired reports whether the wall-clock budget is spent.
func (b *Budget) Expired() bool {
	return !b.deadline.IsZero() && !b.now().Before(b.deadline)
}

// take consumes one subrequest, refusing on an exhausted quota or a
// passed deadline.
func (b *Budget) take() error {
	if b.used >= b.limit {
		return ErrBudgetExhausted
	}
	if b.Expired() {
		return ErrDeadline
	}
	b.used++
	return nil
}

// CanAfford reports whether n more subrequests fit the quota. The engine
// uses it to decide whether to start another slice.
func (b *Budget) CanAfford(n int) bool {
	return b.used+n <= b.limit && !b.Expired()
}

// Fetcher is a budget-enforcing HTTPClient. Every Do consumes one
// subrequest pre-flight and carries a timeout clamped to the remaining
// tick time.
type Fetcher struct {
	client  HTTPClient
	budget  *Budget
	limiter *rate.Limiter
	timeout time.Duration
}

// NewFetcher wraps client with budget enforcement. A nil client uses a
// default http.Client. The limiter smooths data-plane calls to 30/s
// (burst 10) so a full block of slices does not arrive at the upstream
// as one burst.
func NewFetcher(client HTTPClient, budget *Budget) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:  client,
		budget:  budget,
		limiter: rate.NewLimiter(rate.Limit(30), 10),
		timeout: CallTimeout,
	}
}

// Budget exposes the underlying budget.
func (f *Fetcher) Budget() *Budget { return f.budget }

// Do implements HTTPClient. The request context is bounded by the
// per-call timeout or the remaining tick time, whichever is shorter.
func (f *Fetcher) Do(req *http.Request) (*http.Response, error) {
	if err := f.budget.take(); err != nil {
		return nil, err
	}

	ctx := req.Context()
	timeout := f.timeout
	if !f.budget.deadline.IsZero() {
		if remaining := f.budget.deadline.Sub(f.budget.now()); remaining < timeout {
			timeout = remaining
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	if err := f.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, err
	}
	res, err := f.client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	// The timeout must survive until the caller drains the body.
	res.Body = &cancelOnClose{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

var _ HTTPClient = (*Fetcher)(nil)
