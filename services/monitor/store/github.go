// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/vatwatch/services/monitor/fetch"
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ContentClient is the transport contract the Store needs: get the
// document with its version, and put it back conditioned on that version.
type ContentClient interface {
	// Get fetches the document and its content SHA. A missing file yields
	// an empty document and an empty SHA.
	Get(ctx context.Context) (doc map[string]any, sha string, err error)

	// Put writes the document. A non-empty sha is sent as the update
	// precondition; ErrConflict is returned when the precondition fails.
	Put(ctx context.Context, doc map[string]any, sha, message string) (newSHA string, err error)
}

// GitHubConfig configures the contents-API client.
type GitHubConfig struct {
	// Repo is the "owner/name" repository slug.
	Repo string

	// Branch is the target branch. Default: "main".
	Branch string

	// Dir is the directory holding store.json. Default: "cf-cache".
	Dir string

	// Token is the API token. Sent as a bearer credential.
	Token string

	// BaseURL overrides the API root for tests. Default: https://api.github.com.
	BaseURL string
}

// GitHubClient stores the document as a base64-encoded file in a GitHub
// repository via the contents API. The file's content SHA doubles as the
// optimistic-concurrency version: PUT with a stale SHA fails with 409.
type GitHubClient struct {
	cfg    GitHubConfig
	http   HTTPClient
	logger *slog.Logger
	retry  fetch.RetryConfig
}

// NewGitHubClient creates a contents-API client. A nil httpClient uses a
// default client whose timeout (fetch.CallTimeout) bounds each attempt.
func NewGitHubClient(cfg GitHubConfig, httpClient HTTPClient, logger *slog.Logger) *GitHubClient {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Dir == "" {
		cfg.Dir = "cf-cache"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetch.CallTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubClient{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		retry:  fetch.StoreRetryConfig(),
	}
}

// contentsURL is the API path for the store file.
func (c *GitHubClient) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s/store.json", c.cfg.BaseURL, c.cfg.Repo, c.cfg.Dir)
}

// contentsResponse is the subset of the contents API body we read.
type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

// Get implements ContentClient.
func (c *GitHubClient) Get(ctx context.Context) (map[string]any, string, error) {
	var resp contentsResponse

	err := fetch.Retry(ctx, c.retry, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL()+"?ref="+c.cfg.Branch, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		res, err := c.http.Do(req)
		if err != nil {
			return fetch.Transient(err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusOK:
			return json.NewDecoder(res.Body).Decode(&resp)
		case res.StatusCode == http.StatusNotFound:
			return errFileNotFound
		default:
			return fetch.HTTPStatusError(res)
		}
	})
	if err == errFileNotFound {
		return map[string]any{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetching store document: %w", err)
	}

	// The contents API wraps base64 at 60 columns; the std decoder wants
	// it unwrapped.
	raw, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, "", fmt.Errorf("decoding store document: %w", err)
	}

	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, "", fmt.Errorf("parsing store document: %w", err)
		}
	}
	return doc, resp.SHA, nil
}

// Put implements ContentClient.
func (c *GitHubClient) Put(ctx context.Context, doc map[string]any, sha, message string) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding store document: %w", err)
	}

	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(raw),
		"branch":  c.cfg.Branch,
	}
	if sha != "" {
		body["sha"] = sha
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	var newSHA string
	err = fetch.Retry(ctx, c.retry, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return fetch.Transient(err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
			var cr struct {
				Content contentsResponse `json:"content"`
			}
			if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
				return err
			}
			newSHA = cr.Content.SHA
			return nil
		case res.StatusCode == http.StatusConflict || res.StatusCode == http.StatusUnprocessableEntity:
			// 409 (and 422 for a sha/branch mismatch) mean our SHA is stale.
			// Never retried here: the Store resolves it by merge.
			io.Copy(io.Discard, res.Body)
			return ErrConflict
		default:
			return fetch.HTTPStatusError(res)
		}
	})
	if err != nil {
		if err == ErrConflict {
			return "", ErrConflict
		}
		return "", fmt.Errorf("writing store document: %w", err)
	}
	return newSHA, nil
}

func (c *GitHubClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "vatwatch")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

func stripNewlines(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			b = append(b, s[i])
		}
	}
	return string(b)
}

var _ ContentClient = (*GitHubClient)(nil)
