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

import "errors"

var (
	// ErrConflict is returned when a flush loses the optimistic-concurrency
	// race twice in a row (initial PUT plus one merge-retry). Work staged in
	// this Store instance is lost; the next invocation recomputes it.
	ErrConflict = errors.New("store: concurrent update conflict")

	// ErrNotLoaded is returned when a Store is used before Load.
	ErrNotLoaded = errors.New("store: document not loaded")

	// errFileNotFound signals a missing store.json on first run. Internal:
	// Load treats it as an empty document.
	errFileNotFound = errors.New("store: file not found")
)
