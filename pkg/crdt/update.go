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

package crdt

import (
	"encoding/json"
	"fmt"
)

// InsertOp inserts one element to the right of its parent. Concurrent
// insertions under the same parent are ordered by descending ID.
type InsertOp struct {
	ID     ID     `json:"id"`
	Parent ID     `json:"p"`
	Value  string `json:"v"`
}

// RemoveOp tombstones the element with the given ID. The element stays in
// the structure so that later insertions anchored to it still resolve.
type RemoveOp struct {
	ID ID `json:"id"`
}

// MetaOp sets an entry of the document's meta region. Entries are
// last-writer-wins, tagged with the ID of the writing operation.
type MetaOp struct {
	Key   string `json:"k"`
	Value string `json:"v"`
	ID    ID     `json:"id"`
}

// Op is a single replicated operation. Exactly one field is set.
type Op struct {
	Insert *InsertOp `json:"ins,omitempty"`
	Remove *RemoveOp `json:"rm,omitempty"`
	Meta   *MetaOp   `json:"meta,omitempty"`
}

// Update is the unit replicas exchange: an ordered batch of operations
// produced by one replica. Applying an update is idempotent.
type Update struct {
	Ops []Op `json:"ops"`
}

// Encode encodes the update to its portable byte encoding.
func (u *Update) Encode() ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return data, nil
}

// DecodeUpdate decodes an update from its portable byte encoding.
func DecodeUpdate(data []byte) (*Update, error) {
	update := &Update{}
	if err := json.Unmarshal(data, update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return update, nil
}
