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

package gateway_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/server/backend/storage"
	"github.com/redline-team/redline/server/backend/storage/gateway"
)

// documentStore fakes the external document-storage service: one base64
// state blob per document.
type documentStore struct {
	mu     sync.Mutex
	states map[string]string
}

func (d *documentStore) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			state, ok := d.states[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(state))
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			d.states[r.URL.Path] = string(body)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func newGateway(t *testing.T, store *documentStore) *gateway.Storage {
	t.Helper()
	server := httptest.NewServer(store.handler())
	t.Cleanup(server.Close)

	s, err := gateway.New(&gateway.Config{
		BaseURL:        server.URL,
		RequestTimeout: "1s",
	})
	require.NoError(t, err)
	return s
}

func TestGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("missing state test", func(t *testing.T) {
		s := newGateway(t, &documentStore{states: map[string]string{}})

		_, err := s.Load(ctx, "doc-1")
		assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	})

	t.Run("save and load roundtrip test", func(t *testing.T) {
		store := &documentStore{states: map[string]string{}}
		s := newGateway(t, store)

		snapshot := []byte(`{"lamport":3}`)
		require.NoError(t, s.Save(ctx, "doc-1", snapshot))
		assert.Equal(t,
			base64.StdEncoding.EncodeToString(snapshot),
			store.states["/documents/doc-1/state"],
		)

		loaded, err := s.Load(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, snapshot, loaded)
	})

	t.Run("sentinel marker passes through undecoded test", func(t *testing.T) {
		store := &documentStore{states: map[string]string{
			"/documents/doc-1/state": storage.SentinelBase64,
		}}
		s := newGateway(t, store)

		loaded, err := s.Load(ctx, "doc-1")
		require.NoError(t, err)
		assert.True(t, storage.IsSentinel(loaded))
	})

	t.Run("empty body is treated as missing test", func(t *testing.T) {
		store := &documentStore{states: map[string]string{
			"/documents/doc-1/state": "",
		}}
		s := newGateway(t, store)

		_, err := s.Load(ctx, "doc-1")
		assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	})

	t.Run("corrupt base64 test", func(t *testing.T) {
		store := &documentStore{states: map[string]string{
			"/documents/doc-1/state": "%%% not base64 %%%",
		}}
		s := newGateway(t, store)

		_, err := s.Load(ctx, "doc-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrSnapshotNotFound)
	})

	t.Run("document id escaping test", func(t *testing.T) {
		store := &documentStore{states: map[string]string{}}
		s := newGateway(t, store)

		require.NoError(t, s.Save(ctx, "contract-2024.v1~final", []byte("x")))
		_, ok := store.states["/documents/contract-2024.v1~final/state"]
		assert.True(t, ok)
	})
}
