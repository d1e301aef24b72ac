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

// Package memory implements the storage interface in memory. It backs tests
// and the standalone mode, where the server runs without external services.
package memory

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/redline-team/redline/server/backend/storage"
)

// snapshotInfo is a record of the snapshots table.
type snapshotInfo struct {
	DocID    string
	Snapshot []byte
}

// Storage is a memory-backed snapshot store.
type Storage struct {
	db *memdb.MemDB
}

// New creates a new memory storage.
func New() (*Storage, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}

	return &Storage{db: db}, nil
}

// Load returns the last-saved snapshot of the document.
func (s *Storage) Load(_ context.Context, docID string) ([]byte, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblSnapshots, "id", docID)
	if err != nil {
		return nil, fmt.Errorf("find snapshot of %s: %w", docID, err)
	}
	if raw == nil {
		return nil, storage.ErrSnapshotNotFound
	}

	info := raw.(*snapshotInfo)
	snapshot := make([]byte, len(info.Snapshot))
	copy(snapshot, info.Snapshot)
	return snapshot, nil
}

// Save stores the snapshot of the document, replacing any previous one.
func (s *Storage) Save(_ context.Context, docID string, snapshot []byte) error {
	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)

	txn := s.db.Txn(true)
	if err := txn.Insert(tblSnapshots, &snapshotInfo{
		DocID:    docID,
		Snapshot: stored,
	}); err != nil {
		txn.Abort()
		return fmt.Errorf("insert snapshot of %s: %w", docID, err)
	}
	txn.Commit()

	return nil
}

// Close releases the resources of this storage.
func (s *Storage) Close() error {
	return nil
}
