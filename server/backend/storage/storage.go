/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage defines the persistence gateway of the collaboration
// core: loading the last-saved snapshot of a document at session start and
// durably writing updated snapshots, keyed by document ID.
package storage

import (
	"bytes"
	"context"
	"errors"
)

var (
	// ErrSnapshotNotFound is returned by Load when no snapshot has ever
	// been stored for the document.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// SentinelBase64 is the fixed marker the platform stores when collaboration
// has been enabled for a document but no real snapshot exists yet. It must
// never reach the CRDT decoder; Load callers treat it as "no snapshot".
const SentinelBase64 = "Y29sbGFiLWVuYWJsZWQ="

// sentinelBytes is the decoded form of SentinelBase64.
var sentinelBytes = []byte("collab-enabled")

// IsSentinel reports whether the given stored blob is the
// "enabled but uninitialized" marker. Both the decoded bytes and the raw
// base64 text are recognized since some stores pass the blob through
// undecoded.
func IsSentinel(data []byte) bool {
	return bytes.Equal(data, sentinelBytes) || string(data) == SentinelBase64
}

// Storage is the persistence gateway interface. Implementations must be
// safe for concurrent use.
type Storage interface {
	// Load returns the last-saved snapshot of the document. It returns
	// ErrSnapshotNotFound when nothing has been stored. The returned bytes
	// may be the sentinel marker; callers must check IsSentinel before
	// decoding.
	Load(ctx context.Context, docID string) ([]byte, error)

	// Save durably stores the snapshot of the document, replacing any
	// previous one.
	Save(ctx context.Context, docID string, snapshot []byte) error

	// Close releases the resources of this storage.
	Close() error
}
