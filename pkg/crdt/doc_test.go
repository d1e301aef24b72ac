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

package crdt_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/pkg/crdt"
)

func TestLocalEditing(t *testing.T) {
	t.Run("insert and read test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(0, "Hello")
		require.NoError(t, err)
		assert.Equal(t, "Hello", doc.String())
		assert.Equal(t, 5, doc.Len())

		_, err = doc.InsertAt(5, " World")
		require.NoError(t, err)
		assert.Equal(t, "Hello World", doc.String())
	})

	t.Run("insert in the middle test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(0, "Helo")
		require.NoError(t, err)
		_, err = doc.InsertAt(2, "l")
		require.NoError(t, err)
		assert.Equal(t, "Hello", doc.String())
	})

	t.Run("delete test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(0, "Hello World")
		require.NoError(t, err)
		_, err = doc.DeleteAt(5, 6)
		require.NoError(t, err)
		assert.Equal(t, "Hello", doc.String())
	})

	t.Run("out of range test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(3, "x")
		assert.ErrorIs(t, err, crdt.ErrIndexOutOfRange)

		_, err = doc.DeleteAt(0, 1)
		assert.ErrorIs(t, err, crdt.ErrIndexOutOfRange)
	})
}

func TestReplication(t *testing.T) {
	t.Run("remote update merge test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		update, err := docA.InsertAt(0, "Hello")
		require.NoError(t, err)
		require.NoError(t, docB.ApplyUpdate(update))
		assert.Equal(t, docA.String(), docB.String())
	})

	t.Run("idempotent apply test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		update, err := docA.InsertAt(0, "abc")
		require.NoError(t, err)
		require.NoError(t, docB.ApplyUpdate(update))
		require.NoError(t, docB.ApplyUpdate(update))
		assert.Equal(t, "abc", docB.String())

		del, err := docA.DeleteAt(0, 1)
		require.NoError(t, err)
		require.NoError(t, docB.ApplyUpdate(del))
		require.NoError(t, docB.ApplyUpdate(del))
		assert.Equal(t, "bc", docB.String())
	})

	t.Run("concurrent insert convergence test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		updateA, err := docA.InsertAt(0, "X")
		require.NoError(t, err)
		updateB, err := docB.InsertAt(0, "Y")
		require.NoError(t, err)

		require.NoError(t, docA.ApplyUpdate(updateB))
		require.NoError(t, docB.ApplyUpdate(updateA))

		assert.Equal(t, docA.String(), docB.String())
		assert.Contains(t, docA.String(), "X")
		assert.Contains(t, docA.String(), "Y")
	})

	t.Run("shuffled delivery convergence test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		var updates []*crdt.Update
		text := "the quick brown fox"
		for i, r := range text {
			update, err := docA.InsertAt(i, string(r))
			require.NoError(t, err)
			updates = append(updates, update)
		}
		del, err := docA.DeleteAt(4, 6)
		require.NoError(t, err)
		updates = append(updates, del)

		// Deliver in random order with duplicates.
		rng := rand.New(rand.NewSource(42))
		shuffled := append([]*crdt.Update{}, updates...)
		shuffled = append(shuffled, updates[3], updates[7])
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for _, update := range shuffled {
			require.NoError(t, docB.ApplyUpdate(update))
		}

		assert.Equal(t, docA.String(), docB.String())
	})

	t.Run("encoded update roundtrip test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		update, err := docA.InsertAt(0, "contract")
		require.NoError(t, err)
		encoded, err := update.Encode()
		require.NoError(t, err)
		require.NoError(t, docB.ApplyEncodedUpdate(encoded))
		assert.Equal(t, "contract", docB.String())
	})
}

func TestMetaRegion(t *testing.T) {
	t.Run("set and get test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		doc.SetMeta("source", "import:docx")

		value, ok := doc.Meta("source")
		assert.True(t, ok)
		assert.Equal(t, "import:docx", value)
	})

	t.Run("last writer wins test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		docB := crdt.NewDoc("b")

		first := docA.SetMeta("title", "draft")
		require.NoError(t, docB.ApplyUpdate(first))
		second := docB.SetMeta("title", "final")
		require.NoError(t, docA.ApplyUpdate(second))

		// Replaying the stale write must not win on either side.
		require.NoError(t, docB.ApplyUpdate(first))

		valueA, _ := docA.Meta("title")
		valueB, _ := docB.Meta("title")
		assert.Equal(t, "final", valueA)
		assert.Equal(t, valueA, valueB)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("snapshot roundtrip test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(0, "Hello World")
		require.NoError(t, err)
		_, err = doc.DeleteAt(0, 6)
		require.NoError(t, err)
		doc.SetMeta("source", "import:docx")

		data, err := doc.Snapshot()
		require.NoError(t, err)

		restored, err := crdt.NewDocFromSnapshot("b", data)
		require.NoError(t, err)
		assert.Equal(t, "World", restored.String())

		value, ok := restored.Meta("source")
		assert.True(t, ok)
		assert.Equal(t, "import:docx", value)
	})

	t.Run("edits continue after restore test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		_, err := doc.InsertAt(0, "ab")
		require.NoError(t, err)

		data, err := doc.Snapshot()
		require.NoError(t, err)
		restored, err := crdt.NewDocFromSnapshot("b", data)
		require.NoError(t, err)

		update, err := restored.InsertAt(2, "c")
		require.NoError(t, err)
		require.NoError(t, doc.ApplyUpdate(update))
		assert.Equal(t, "abc", doc.String())
	})

	t.Run("full update bootstraps new replica test", func(t *testing.T) {
		docA := crdt.NewDoc("a")
		_, err := docA.InsertAt(0, "Hello")
		require.NoError(t, err)
		_, err = docA.DeleteAt(0, 1)
		require.NoError(t, err)

		docB := crdt.NewDoc("b")
		require.NoError(t, docB.ApplyUpdate(docA.FullUpdate()))
		assert.Equal(t, "ello", docB.String())
	})

	t.Run("empty snapshot differs from nothing test", func(t *testing.T) {
		doc := crdt.NewDoc("a")
		data, err := doc.Snapshot()
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})
}
