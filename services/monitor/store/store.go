// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the single-document persistence layer for the
// monitor service.
//
// # Description
//
// All persistent state lives in one JSON object, stored as a file in a
// GitHub repository and versioned by its content SHA. A Store instance
// is created per invocation (one scheduled tick or one HTTP request),
// loads the document once, stages edits in memory, and flushes them
// back with the observed SHA as an update precondition.
//
// # Concurrency
//
// Two invocations may race on the flush. A 409 triggers one recovery
// pass: re-fetch the remote document, lay the local edits over it
// (local wins key-by-key, except the watchlist, whose membership is
// set-merged), and PUT again. A second 409 surfaces as ErrConflict and
// the caller discards this invocation's work.
//
// # Thread Safety
//
// A Store instance is NOT safe for concurrent use. Each invocation
// owns its instance; nothing is shared but the ContentClient.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Store stages edits to the persistent document.
type Store struct {
	client ContentClient
	logger *slog.Logger
	now    func() time.Time

	loaded  bool
	sha     string
	doc     map[string]any
	base    map[string]any  // document as loaded, for merge baselines
	edits   map[string]bool // keys set locally
	deletes map[string]bool // keys deleted locally
}

// New creates an unloaded Store over the given transport.
func New(client ContentClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:  client,
		logger:  logger,
		now:     time.Now,
		doc:     map[string]any{},
		edits:   map[string]bool{},
		deletes: map[string]bool{},
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Load fetches the document and its version SHA. Idempotent within an
// invocation: subsequent calls return the in-memory copy.
func (s *Store) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	doc, sha, err := s.client.Get(ctx)
	if err != nil {
		return err
	}
	s.doc = doc
	s.base = map[string]any{}
	if err := reencode(doc, &s.base); err != nil {
		return err
	}
	s.sha = sha
	s.loaded = true
	return nil
}

// Get unmarshals the value at key into v. Returns false when the key is
// absent. v must be a pointer.
func (s *Store) Get(key string, v any) (bool, error) {
	raw, ok := s.doc[key]
	if !ok {
		return false, nil
	}
	if err := reencode(raw, v); err != nil {
		return false, fmt.Errorf("store key %q: %w", key, err)
	}
	return true, nil
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	_, ok := s.doc[key]
	return ok
}

// Keys returns a snapshot of all keys in the document.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.doc))
	for k := range s.doc {
		keys = append(keys, k)
	}
	return keys
}

// Set stages a value at key and marks the document dirty. The value is
// normalized through JSON so the in-memory document always mirrors what
// a flush would persist.
func (s *Store) Set(key string, v any) error {
	var norm any
	if err := reencode(v, &norm); err != nil {
		return fmt.Errorf("store key %q: %w", key, err)
	}
	s.doc[key] = norm
	s.edits[key] = true
	delete(s.deletes, key)
	return nil
}

// Delete stages removal of key. Deleting an absent key is a no-op and
// does not dirty the document.
func (s *Store) Delete(key string) {
	if _, ok := s.doc[key]; !ok {
		return
	}
	delete(s.doc, key)
	s.deletes[key] = true
	delete(s.edits, key)
}

// Dirty reports whether any edits are staged.
func (s *Store) Dirty() bool {
	return len(s.edits) > 0 || len(s.deletes) > 0
}

// Flush persists staged edits with the last-observed SHA as precondition.
//
// No-op when nothing is staged. On a 409 the remote document is
// re-fetched and the local edits are replayed over it (see mergeRemote),
// then the PUT is retried once. A second conflict returns ErrConflict
// and the staged edits remain in memory (and lost with the invocation).
func (s *Store) Flush(ctx context.Context, message string) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if !s.Dirty() {
		return nil
	}

	newSHA, err := s.client.Put(ctx, s.doc, s.sha, message)
	if err == ErrConflict {
		s.logger.Warn("store flush conflict, merging remote", "message", message)
		if err := s.mergeRemote(ctx); err != nil {
			return err
		}
		newSHA, err = s.client.Put(ctx, s.doc, s.sha, message)
		if err == ErrConflict {
			return ErrConflict
		}
	}
	if err != nil {
		return err
	}

	s.sha = newSHA
	s.edits = map[string]bool{}
	s.deletes = map[string]bool{}
	return nil
}

// mergeRemote refreshes the base document from the remote and replays
// local staged edits over it. Keys merge shallowly with local wins,
// except the watchlist, whose membership is set-merged so two writers
// appending different CIDs both survive the race.
func (s *Store) mergeRemote(ctx context.Context) error {
	remote, sha, err := s.client.Get(ctx)
	if err != nil {
		return err
	}
	for key := range s.edits {
		if key == watchlistKey {
			remote[key] = s.mergeWatchlist(remote[key])
			continue
		}
		remote[key] = s.doc[key]
	}
	for key := range s.deletes {
		delete(remote, key)
	}
	s.doc = remote
	s.sha = sha
	return nil
}

// cachedEnvelope is the TTL wrapper applied by CachePut.
type cachedEnvelope struct {
	CachedAt int64 `json:"cached_at"`
}

// CacheGet unmarshals the entry at key into v iff its cached_at is
// within maxAge of now. Returns false for absent, malformed, or stale
// entries.
func (s *Store) CacheGet(key string, maxAge time.Duration, v any) bool {
	raw, ok := s.doc[key]
	if !ok {
		return false
	}
	var env cachedEnvelope
	if err := reencode(raw, &env); err != nil || env.CachedAt == 0 {
		return false
	}
	if s.now().Unix()-env.CachedAt > int64(maxAge.Seconds()) {
		return false
	}
	if v == nil {
		return true
	}
	return reencode(raw, v) == nil
}

// CachePut stages obj at key with cached_at stamped to now. obj must
// marshal to a JSON object.
func (s *Store) CachePut(key string, obj any) error {
	var m map[string]any
	if err := reencode(obj, &m); err != nil {
		return fmt.Errorf("store key %q: %w", key, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	m["cached_at"] = s.now().Unix()
	return s.Set(key, m)
}

// reencode round-trips src through JSON into dst. It is the uniform
// bridge between the untyped document and the typed records the rest of
// the service works with.
func reencode(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
