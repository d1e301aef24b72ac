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

// Package crdt provides a conflict-free replicated sequence for collaborative
// text editing. Replicas exchange updates, which are sets of commutative and
// idempotent operations; replicas that have received the same set of updates
// converge to identical content regardless of delivery order or duplication.
package crdt

import (
	"fmt"
)

// ID identifies a single inserted element across all replicas. IDs are
// totally ordered by (Lamport, Actor) which gives every replica the same
// tie-break for concurrent insertions.
type ID struct {
	Lamport uint64 `json:"l"`
	Actor   string `json:"a"`
}

// RootID is the ID of the virtual root element that anchors the sequence.
var RootID = ID{}

// IsRoot returns whether this ID is the virtual root.
func (id ID) IsRoot() bool {
	return id == RootID
}

// Less returns whether this ID orders before the given ID.
func (id ID) Less(other ID) bool {
	if id.Lamport != other.Lamport {
		return id.Lamport < other.Lamport
	}
	return id.Actor < other.Actor
}

// String returns a human-readable form used in logs and errors.
func (id ID) String() string {
	return fmt.Sprintf("%d:%s", id.Lamport, id.Actor)
}
