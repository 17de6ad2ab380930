// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vatsim reads the VATSIM network: the live data feed (who is
// controlling right now) and the members API (existence, profile,
// controlling sessions). Only the handful of fields the monitor needs
// are decoded.
package vatsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/vatwatch/services/monitor/fetch"
)

const (
	// DefaultDataURL is the live network snapshot.
	DefaultDataURL = "https://data.vatsim.net/v3/vatsim-data.json"

	// DefaultAPIURL is the members API root.
	DefaultAPIURL = "https://api.vatsim.net/v2"

	// RatingS1 is the numeric value of the S1 controller rating.
	RatingS1 = 2
)

// OnlineController is one controller from the live feed.
type OnlineController struct {
	CID       string
	Callsign  string
	Frequency string
	Name      string
}

// Member is the subset of a member profile the monitor reads.
type Member struct {
	ID        int64  `json:"id"`
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
	Rating    int    `json:"rating"`
	Division  string `json:"division"`
	RegDate   string `json:"reg_date"`
}

// FullName joins the profile name fields, or returns "" when both are
// empty.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.NameFirst + " " + m.NameLast)
}

// ActivitySummary aggregates a member's controlling sessions inside a
// lookback window.
type ActivitySummary struct {
	Hours       float64
	Sessions    int
	LastSession string // ISO8601 start of the most recent session, "" if none
}

// Client reads the VATSIM endpoints. The HTTP client is injectable: the
// scheduled tick passes its budgeted fetcher, the API path a plain
// client.
type Client struct {
	dataURL string
	apiURL  string
	http    fetch.HTTPClient
	logger  *slog.Logger
	group   singleflight.Group
}

// NewClient creates a Client. Empty URLs use the production endpoints;
// a nil httpClient uses a default client.
func NewClient(dataURL, apiURL string, httpClient fetch.HTTPClient, logger *slog.Logger) *Client {
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetch.CallTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{dataURL: dataURL, apiURL: apiURL, http: httpClient, logger: logger}
}

// WithHTTP returns a Client with the same endpoints and logger using a
// different HTTP client. The copy has its own singleflight group. Used by
// ticks to route calls through the tick's budget.
func (c *Client) WithHTTP(httpClient fetch.HTTPClient) *Client {
	return &Client{dataURL: c.dataURL, apiURL: c.apiURL, http: httpClient, logger: c.logger}
}

// feedResponse is the live-feed envelope.
type feedResponse struct {
	Controllers []struct {
		CID       int64  `json:"cid"`
		Callsign  string `json:"callsign"`
		Frequency string `json:"frequency"`
		Name      string `json:"name"`
	} `json:"controllers"`
}

// OnlineControllers fetches the live feed and returns all online
// controllers, excluding ATIS connections. Concurrent callers share a
// single fetch.
func (c *Client) OnlineControllers(ctx context.Context) ([]OnlineController, error) {
	v, err, _ := c.group.Do("datafeed", func() (any, error) {
		var feed feedResponse
		if err := c.getJSON(ctx, c.dataURL, &feed); err != nil {
			return nil, err
		}
		out := make([]OnlineController, 0, len(feed.Controllers))
		for _, ctrl := range feed.Controllers {
			if strings.HasSuffix(strings.ToUpper(ctrl.Callsign), "_ATIS") {
				continue
			}
			out = append(out, OnlineController{
				CID:       strconv.FormatInt(ctrl.CID, 10),
				Callsign:  ctrl.Callsign,
				Frequency: ctrl.Frequency,
				Name:      ctrl.Name,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]OnlineController), nil
}

// MemberExists checks whether a CID names a real network member.
// Cached by callers (7 days); this method always hits the API.
func (c *Client) MemberExists(ctx context.Context, cid string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/members/"+cid, nil)
	if err != nil {
		return false, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("member lookup %s: %w", cid, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fetch.HTTPStatusError(res)
	}
}

// Member fetches a member profile.
func (c *Client) Member(ctx context.Context, cid string) (*Member, error) {
	var m Member
	if err := c.getJSON(ctx, c.apiURL+"/members/"+cid, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// sessionsResponse is the atcsessions envelope. minutes_on_callsign is
// a decimal string upstream, so it is decoded as a Number.
type sessionsResponse struct {
	Items []struct {
		Start             string      `json:"start"`
		End               string      `json:"end"`
		MinutesOnCallsign json.Number `json:"minutes_on_callsign"`
	} `json:"items"`
}

// ATCSessions sums a member's controlling sessions that started on or
// after start.
func (c *Client) ATCSessions(ctx context.Context, cid string, start time.Time) (*ActivitySummary, error) {
	url := fmt.Sprintf("%s/members/%s/atcsessions?start=%s", c.apiURL, cid, start.UTC().Format("2006-01-02"))
	var resp sessionsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	sum := &ActivitySummary{}
	for _, item := range resp.Items {
		if ts, err := time.Parse(time.RFC3339, item.Start); err == nil && ts.Before(start) {
			continue
		}
		minutes, err := item.MinutesOnCallsign.Float64()
		if err != nil {
			continue
		}
		sum.Hours += minutes / 60
		sum.Sessions++
		if item.Start > sum.LastSession {
			sum.LastSession = item.Start
		}
	}
	return sum, nil
}

// getJSON performs a GET and decodes a 200 JSON body into v.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return fetch.HTTPStatusError(res)
	}
	return json.NewDecoder(res.Body).Decode(v)
}
