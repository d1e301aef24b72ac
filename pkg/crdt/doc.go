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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/xid"
)

var (
	// ErrIndexOutOfRange is returned when a local edit addresses a position
	// outside the visible content.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// MetaEntry is one last-writer-wins entry of the meta region.
type MetaEntry struct {
	Value string `json:"v"`
	ID    ID     `json:"id"`
}

// node is one element of the causal tree. Children are kept sorted by
// descending ID; document order is a pre-order walk of the tree.
type node struct {
	id       ID
	value    string
	removed  bool
	children []*node
}

// Doc is a replica of a shared document: a replicated character sequence
// plus a small meta region used to bootstrap brand-new documents. All
// methods are safe for concurrent use.
type Doc struct {
	mu      sync.RWMutex
	actor   string
	lamport uint64
	root    *node
	nodes   map[ID]*node
	meta    map[string]MetaEntry

	// pending holds operations whose parent has not arrived yet. They are
	// retried whenever new elements are integrated, so updates may be
	// applied in any order.
	pending []Op
}

// NewDoc creates an empty replica owned by the given actor. An empty actor
// gets a generated one.
func NewDoc(actor string) *Doc {
	if actor == "" {
		actor = xid.New().String()
	}

	root := &node{id: RootID}
	return &Doc{
		actor: actor,
		root:  root,
		nodes: map[ID]*node{RootID: root},
		meta:  make(map[string]MetaEntry),
	}
}

// Actor returns the actor that owns this replica.
func (d *Doc) Actor() string {
	return d.actor
}

// nextID issues a fresh ID for a local operation.
func (d *Doc) nextID() ID {
	d.lamport++
	return ID{Lamport: d.lamport, Actor: d.actor}
}

// InsertAt inserts the given text at the visible rune index and returns the
// update to replicate. Index 0 inserts at the beginning.
func (d *Doc) InsertAt(idx int, text string) (*Update, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	parent, err := d.visibleLeftOf(idx)
	if err != nil {
		return nil, err
	}

	update := &Update{}
	parentID := parent.id
	for _, r := range text {
		ins := &InsertOp{
			ID:     d.nextID(),
			Parent: parentID,
			Value:  string(r),
		}
		d.integrateInsert(ins)
		update.Ops = append(update.Ops, Op{Insert: ins})
		parentID = ins.ID
	}

	return update, nil
}

// DeleteAt tombstones n visible runes starting at the given index and
// returns the update to replicate.
func (d *Doc) DeleteAt(idx, n int) (*Update, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	victims := d.visibleRange(idx, n)
	if len(victims) != n {
		return nil, ErrIndexOutOfRange
	}

	update := &Update{}
	for _, victim := range victims {
		victim.removed = true
		update.Ops = append(update.Ops, Op{Remove: &RemoveOp{ID: victim.id}})
	}

	return update, nil
}

// SetMeta writes one entry of the meta region and returns the update to
// replicate.
func (d *Doc) SetMeta(key, value string) *Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	op := &MetaOp{Key: key, Value: value, ID: d.nextID()}
	d.applyMeta(op)
	return &Update{Ops: []Op{{Meta: op}}}
}

// Meta reads one entry of the meta region.
func (d *Doc) Meta(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.meta[key]
	return entry.Value, ok
}

// ApplyUpdate merges a replicated update into this replica. Applying the
// same update twice is a no-op; updates commute with each other.
func (d *Doc) ApplyUpdate(update *Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, op := range update.Ops {
		d.applyOp(op)
	}
	d.drainPending()

	return nil
}

// ApplyEncodedUpdate decodes and merges a replicated update.
func (d *Doc) ApplyEncodedUpdate(data []byte) error {
	update, err := DecodeUpdate(data)
	if err != nil {
		return err
	}
	return d.ApplyUpdate(update)
}

func (d *Doc) applyOp(op Op) {
	switch {
	case op.Insert != nil:
		if _, ok := d.nodes[op.Insert.ID]; ok {
			return
		}
		if _, ok := d.nodes[op.Insert.Parent]; !ok {
			d.pending = append(d.pending, op)
			return
		}
		d.integrateInsert(op.Insert)
	case op.Remove != nil:
		target, ok := d.nodes[op.Remove.ID]
		if !ok {
			d.pending = append(d.pending, op)
			return
		}
		target.removed = true
	case op.Meta != nil:
		d.applyMeta(op.Meta)
	}
}

// drainPending retries buffered operations until a pass makes no progress.
func (d *Doc) drainPending() {
	for {
		if len(d.pending) == 0 {
			return
		}

		retry := d.pending
		d.pending = nil
		before := len(retry)
		for _, op := range retry {
			d.applyOp(op)
		}
		if len(d.pending) == before {
			return
		}
	}
}

// integrateInsert attaches a new element under its parent, keeping siblings
// sorted by descending ID so that every replica orders concurrent
// insertions identically.
func (d *Doc) integrateInsert(ins *InsertOp) {
	parent := d.nodes[ins.Parent]
	child := &node{id: ins.ID, value: ins.Value}

	i := sort.Search(len(parent.children), func(i int) bool {
		return parent.children[i].id.Less(ins.ID)
	})
	parent.children = append(parent.children, nil)
	copy(parent.children[i+1:], parent.children[i:])
	parent.children[i] = child

	d.nodes[ins.ID] = child
	if d.lamport < ins.ID.Lamport {
		d.lamport = ins.ID.Lamport
	}
}

func (d *Doc) applyMeta(op *MetaOp) {
	if current, ok := d.meta[op.Key]; ok && !current.ID.Less(op.ID) {
		return
	}
	d.meta[op.Key] = MetaEntry{Value: op.Value, ID: op.ID}
	if d.lamport < op.ID.Lamport {
		d.lamport = op.ID.Lamport
	}
}

// walk visits the tree in document order, root excluded.
func (d *Doc) walk(visit func(*node) bool) {
	var rec func(*node) bool
	rec = func(n *node) bool {
		for _, child := range n.children {
			if !visit(child) {
				return false
			}
			if !rec(child) {
				return false
			}
		}
		return true
	}
	rec(d.root)
}

// visibleLeftOf returns the element immediately left of the given visible
// index, or the root for index 0.
func (d *Doc) visibleLeftOf(idx int) (*node, error) {
	if idx < 0 {
		return nil, ErrIndexOutOfRange
	}
	if idx == 0 {
		return d.root, nil
	}

	var found *node
	seen := 0
	d.walk(func(n *node) bool {
		if n.removed {
			return true
		}
		seen++
		if seen == idx {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, ErrIndexOutOfRange
	}
	return found, nil
}

// visibleRange collects up to n visible elements starting at idx.
func (d *Doc) visibleRange(idx, n int) []*node {
	if idx < 0 || n <= 0 {
		return nil
	}

	var out []*node
	seen := 0
	d.walk(func(nd *node) bool {
		if nd.removed {
			return true
		}
		if seen >= idx {
			out = append(out, nd)
			if len(out) == n {
				return false
			}
		}
		seen++
		return true
	})
	return out
}

// String returns the visible content of the document.
func (d *Doc) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var sb strings.Builder
	d.walk(func(n *node) bool {
		if !n.removed {
			sb.WriteString(n.value)
		}
		return true
	})
	return sb.String()
}

// Len returns the number of visible runes.
func (d *Doc) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	d.walk(func(n *node) bool {
		if !n.removed {
			count++
		}
		return true
	})
	return count
}

// MetaAll returns a copy of the meta region values.
func (d *Doc) MetaAll() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.meta))
	for k, entry := range d.meta {
		out[k] = entry.Value
	}
	return out
}

// snapshot is the portable encoding of a full replica state. Nodes are
// listed in document order so parents always precede children.
type snapshot struct {
	Lamport uint64               `json:"lamport"`
	Meta    map[string]MetaEntry `json:"meta"`
	Nodes   []snapshotNode       `json:"nodes"`
}

type snapshotNode struct {
	ID      ID     `json:"id"`
	Parent  ID     `json:"p"`
	Value   string `json:"v"`
	Removed bool   `json:"rm,omitempty"`
}

// Snapshot encodes the full state of this replica, tombstones included.
func (d *Doc) Snapshot() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := snapshot{
		Lamport: d.lamport,
		Meta:    d.meta,
	}

	var rec func(parent *node)
	rec = func(parent *node) {
		for _, child := range parent.children {
			snap.Nodes = append(snap.Nodes, snapshotNode{
				ID:      child.id,
				Parent:  parent.id,
				Value:   child.value,
				Removed: child.removed,
			})
			rec(child)
		}
	}
	rec(d.root)

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// NewDocFromSnapshot creates a replica for the given actor from an encoded
// snapshot.
func NewDocFromSnapshot(actor string, data []byte) (*Doc, error) {
	snap := snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	doc := NewDoc(actor)
	for _, n := range snap.Nodes {
		doc.applyOp(Op{Insert: &InsertOp{ID: n.ID, Parent: n.Parent, Value: n.Value}})
		if n.Removed {
			doc.applyOp(Op{Remove: &RemoveOp{ID: n.ID}})
		}
	}
	for key, entry := range snap.Meta {
		doc.applyMeta(&MetaOp{Key: key, Value: entry.Value, ID: entry.ID})
	}
	doc.drainPending()
	if doc.lamport < snap.Lamport {
		doc.lamport = snap.Lamport
	}

	return doc, nil
}

// FullUpdate returns the whole replica state as a regular update. It is how
// a session hands its current state to a newly joined replica.
func (d *Doc) FullUpdate() *Update {
	d.mu.RLock()
	defer d.mu.RUnlock()

	update := &Update{}
	var rec func(parent *node)
	rec = func(parent *node) {
		for _, child := range parent.children {
			update.Ops = append(update.Ops, Op{Insert: &InsertOp{
				ID:     child.id,
				Parent: parent.id,
				Value:  child.value,
			}})
			if child.removed {
				update.Ops = append(update.Ops, Op{Remove: &RemoveOp{ID: child.id}})
			}
			rec(child)
		}
	}
	rec(d.root)

	for key, entry := range d.meta {
		update.Ops = append(update.Ops, Op{Meta: &MetaOp{
			Key:   key,
			Value: entry.Value,
			ID:    entry.ID,
		}})
	}

	return update
}
