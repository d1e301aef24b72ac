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

package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/pkg/crdt"
	"github.com/redline-team/redline/server/auth"
	"github.com/redline-team/redline/server/backend/storage/memory"
	"github.com/redline-team/redline/server/sessions"
	"github.com/redline-team/redline/server/transport"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := memory.New()
	require.NoError(t, err)

	registry, err := sessions.NewRegistry(&sessions.Config{
		SaveDebounce:  "50ms",
		SaveTimeout:   "1s",
		LoadTimeout:   "1s",
		IdleGrace:     "10m",
		SweepInterval: "10m",
	}, store, nil)
	require.NoError(t, err)

	gate, err := auth.New(&auth.Config{
		RequestTimeout:  "1s",
		MaxWaitInterval: "100ms",
		CacheSize:       10,
		CacheTTL:        "10s",
	})
	require.NoError(t, err)

	server := transport.NewServer(&transport.Config{Port: 0}, registry, gate)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		httpServer.Close()
		registry.Close(context.Background())
	})
	return httpServer
}

func wsURL(httpServer *httptest.Server, docID, token string) string {
	return strings.Replace(httpServer.URL, "http://", "ws://", 1) +
		transport.CollabPathPrefix + docID + "?token=" + token
}

func dialWS(t *testing.T, httpServer *httptest.Server, docID, token string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(httpServer, docID, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ws.Close()
	})
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) (byte, []byte) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	frameType, payload, err := types.DecodeFrame(frame)
	require.NoError(t, err)
	return frameType, payload
}

func TestServer(t *testing.T) {
	t.Run("health test", func(t *testing.T) {
		httpServer := newTestServer(t)

		resp, err := http.Get(httpServer.URL + "/healthz")
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()

		health := types.HealthResponse{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "redline", health.Service)
		assert.False(t, health.Timestamp.IsZero())
	})

	t.Run("handshake without token is rejected test", func(t *testing.T) {
		httpServer := newTestServer(t)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(httpServer, "doc-1", ""), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("handshake with bad document key is rejected test", func(t *testing.T) {
		httpServer := newTestServer(t)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(httpServer, "doc%201", "alice"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("attach delivers current state test", func(t *testing.T) {
		httpServer := newTestServer(t)

		wsA := dialWS(t, httpServer, "doc-1", "alice")
		frameType, payload := readFrame(t, wsA)
		require.Equal(t, types.FrameUpdate, frameType)

		replica := crdt.NewDoc("replica")
		require.NoError(t, replica.ApplyEncodedUpdate(payload))
		assert.Equal(t, "", replica.String())
	})

	t.Run("update fans out to the other connection test", func(t *testing.T) {
		httpServer := newTestServer(t)

		wsA := dialWS(t, httpServer, "doc-1", "alice")
		wsB := dialWS(t, httpServer, "doc-1", "bob")

		// Drain initial state frames.
		readFrame(t, wsA)
		readFrame(t, wsB)

		docA := crdt.NewDoc("alice")
		update, err := docA.InsertAt(0, "Hello")
		require.NoError(t, err)
		data, err := update.Encode()
		require.NoError(t, err)
		require.NoError(t, wsA.WriteMessage(
			websocket.BinaryMessage, types.EncodeFrame(types.FrameUpdate, data)))

		frameType, payload := readFrame(t, wsB)
		require.Equal(t, types.FrameUpdate, frameType)

		docB := crdt.NewDoc("bob")
		require.NoError(t, docB.ApplyEncodedUpdate(payload))
		assert.Equal(t, "Hello", docB.String())
	})

	t.Run("presence fans out test", func(t *testing.T) {
		httpServer := newTestServer(t)

		wsA := dialWS(t, httpServer, "doc-1", "alice")
		wsB := dialWS(t, httpServer, "doc-1", "bob")
		readFrame(t, wsA)
		readFrame(t, wsB)

		payload, err := json.Marshal(types.Presence{
			UserID:      "alice",
			DisplayName: "Alice",
			Cursor:      &types.Cursor{From: 1, To: 4},
		})
		require.NoError(t, err)
		require.NoError(t, wsA.WriteMessage(
			websocket.BinaryMessage, types.EncodeFrame(types.FramePresence, payload)))

		frameType, eventPayload := readFrame(t, wsB)
		require.Equal(t, types.FramePresence, frameType)

		event := types.PresenceEvent{}
		require.NoError(t, json.Unmarshal(eventPayload, &event))
		require.NotNil(t, event.Presence)
		assert.Equal(t, "Alice", event.Presence.DisplayName)
		assert.NotEmpty(t, event.ConnID)
	})

	t.Run("admin sessions listing test", func(t *testing.T) {
		httpServer := newTestServer(t)

		wsA := dialWS(t, httpServer, "doc-admin", "alice")
		readFrame(t, wsA)

		resp, err := http.Get(httpServer.URL + "/admin/sessions")
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()

		var summaries []types.SessionSummary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "doc-admin", summaries[0].DocumentID)
		assert.Equal(t, 1, summaries[0].Connections)
	})

	t.Run("malformed update does not break the session test", func(t *testing.T) {
		httpServer := newTestServer(t)

		wsA := dialWS(t, httpServer, "doc-1", "alice")
		wsB := dialWS(t, httpServer, "doc-1", "bob")
		readFrame(t, wsA)
		readFrame(t, wsB)

		require.NoError(t, wsA.WriteMessage(
			websocket.BinaryMessage, types.EncodeFrame(types.FrameUpdate, []byte("not json"))))

		// The session is still alive for well-formed traffic.
		docA := crdt.NewDoc("alice")
		update, err := docA.InsertAt(0, "ok")
		require.NoError(t, err)
		data, err := update.Encode()
		require.NoError(t, err)
		require.NoError(t, wsA.WriteMessage(
			websocket.BinaryMessage, types.EncodeFrame(types.FrameUpdate, data)))

		frameType, payload := readFrame(t, wsB)
		require.Equal(t, types.FrameUpdate, frameType)
		docB := crdt.NewDoc("bob")
		require.NoError(t, docB.ApplyEncodedUpdate(payload))
		assert.Equal(t, "ok", docB.String())
	})
}
