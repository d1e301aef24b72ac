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

package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/server/auth"
)

type countingCounter struct {
	n int64
}

func (c *countingCounter) Inc() {
	atomic.AddInt64(&c.n, 1)
}

func testConfig(webhookURL string) *auth.Config {
	return &auth.Config{
		WebhookURL:      webhookURL,
		RequestTimeout:  "1s",
		MaxRetries:      0,
		MaxWaitInterval: "100ms",
		CacheSize:       10,
		CacheTTL:        "10s",
	}
}

func accessServer(t *testing.T, decide func(req types.AccessWebhookRequest) types.AccessWebhookResponse) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := types.AccessWebhookRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NoError(t, json.NewEncoder(w).Encode(decide(req)))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGate(t *testing.T) {
	t.Run("token required test", func(t *testing.T) {
		gate, err := auth.New(testConfig(""))
		require.NoError(t, err)

		_, err = gate.Verify(context.Background(), "doc-1", "")
		assert.ErrorIs(t, err, auth.ErrTokenRequired)
	})

	t.Run("webhook allow resolves identity test", func(t *testing.T) {
		server := accessServer(t, func(req types.AccessWebhookRequest) types.AccessWebhookResponse {
			assert.Equal(t, "doc-1", req.DocumentID)
			assert.Equal(t, "valid-token", req.Token)
			return types.AccessWebhookResponse{
				Allowed: true,
				Identity: &types.Identity{
					UserID:      "u-100",
					Email:       "counsel@example.com",
					DisplayName: "Counsel",
				},
			}
		})

		gate, err := auth.New(testConfig(server.URL))
		require.NoError(t, err)

		identity, err := gate.Verify(context.Background(), "doc-1", "valid-token")
		require.NoError(t, err)
		assert.Equal(t, "u-100", identity.UserID)
		assert.Equal(t, "Counsel", identity.DisplayName)
	})

	t.Run("webhook deny test", func(t *testing.T) {
		server := accessServer(t, func(types.AccessWebhookRequest) types.AccessWebhookResponse {
			return types.AccessWebhookResponse{Allowed: false, Reason: "document is sealed"}
		})

		gate, err := auth.New(testConfig(server.URL))
		require.NoError(t, err)

		_, err = gate.Verify(context.Background(), "doc-1", "t")
		assert.ErrorIs(t, err, auth.ErrNotAllowed)
		assert.Contains(t, err.Error(), "document is sealed")
	})

	t.Run("unreachable service fail-closed test", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close() // nothing listens anymore

		gate, err := auth.New(testConfig(server.URL))
		require.NoError(t, err)

		_, err = gate.Verify(context.Background(), "doc-1", "t")
		assert.ErrorIs(t, err, auth.ErrAccessServiceUnavailable)
	})

	t.Run("unreachable service fail-open test", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		conf := testConfig(server.URL)
		conf.FailOpen = true
		admits := &countingCounter{}
		gate, err := auth.New(conf, auth.WithFailOpenCounter(admits))
		require.NoError(t, err)

		identity, err := gate.Verify(context.Background(), "doc-1", "t")
		require.NoError(t, err)
		assert.Contains(t, identity.UserID, "anonymous-")
		assert.Equal(t, "Guest", identity.DisplayName)
		assert.Equal(t, int64(1), atomic.LoadInt64(&admits.n))
	})

	t.Run("decisions are cached test", func(t *testing.T) {
		var calls int64
		server := accessServer(t, func(types.AccessWebhookRequest) types.AccessWebhookResponse {
			atomic.AddInt64(&calls, 1)
			return types.AccessWebhookResponse{Allowed: true}
		})

		gate, err := auth.New(testConfig(server.URL))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := gate.Verify(context.Background(), "doc-1", "same-token")
			require.NoError(t, err)
		}
		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	})

	t.Run("standalone mode trusts token test", func(t *testing.T) {
		gate, err := auth.New(testConfig(""))
		require.NoError(t, err)

		identity, err := gate.Verify(context.Background(), "doc-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.UserID)
	})

	t.Run("local jwt verification test", func(t *testing.T) {
		conf := testConfig("")
		conf.JWTSecret = "shared-secret"
		gate, err := auth.New(conf)
		require.NoError(t, err)

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "u-7",
			"email": "u7@example.com",
			"name":  "User Seven",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		identity, err := gate.Verify(context.Background(), "doc-1", signed)
		require.NoError(t, err)
		assert.Equal(t, "u-7", identity.UserID)
		assert.Equal(t, "User Seven", identity.DisplayName)

		forged, err := token.SignedString([]byte("wrong-secret"))
		require.NoError(t, err)
		_, err = gate.Verify(context.Background(), "doc-1", forged)
		assert.ErrorIs(t, err, auth.ErrNotAllowed)
	})
}
