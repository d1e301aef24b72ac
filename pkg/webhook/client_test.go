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

package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/pkg/cache"
	"github.com/redline-team/redline/pkg/webhook"
)

type echoRequest struct {
	Name string `json:"name"`
}

type echoResponse struct {
	Greeting string `json:"greeting"`
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("send and decode test", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := echoRequest{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.NoError(t, json.NewEncoder(w).Encode(echoResponse{Greeting: "hello " + req.Name}))
		}))
		defer server.Close()

		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, nil, webhook.Options{
			RequestTimeout: time.Second,
		})

		res, err := cli.Send(ctx, echoRequest{Name: "redline"})
		require.NoError(t, err)
		assert.Equal(t, "hello redline", res.Greeting)
	})

	t.Run("retries on 503 test", func(t *testing.T) {
		var calls int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt64(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			require.NoError(t, json.NewEncoder(w).Encode(echoResponse{Greeting: "recovered"}))
		}))
		defer server.Close()

		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, nil, webhook.Options{
			RequestTimeout:  time.Second,
			MaxRetries:      5,
			MaxWaitInterval: 10 * time.Millisecond,
		})

		res, err := cli.Send(ctx, echoRequest{Name: "x"})
		require.NoError(t, err)
		assert.Equal(t, "recovered", res.Greeting)
		assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
	})

	t.Run("gives up after max retries test", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, nil, webhook.Options{
			RequestTimeout:  time.Second,
			MaxRetries:      2,
			MaxWaitInterval: 10 * time.Millisecond,
		})

		_, err := cli.Send(ctx, echoRequest{Name: "x"})
		assert.ErrorIs(t, err, webhook.ErrWebhookTimeout)
	})

	t.Run("does not retry client errors test", func(t *testing.T) {
		var calls int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, nil, webhook.Options{
			RequestTimeout:  time.Second,
			MaxRetries:      5,
			MaxWaitInterval: 10 * time.Millisecond,
		})

		_, err := cli.Send(ctx, echoRequest{Name: "x"})
		assert.ErrorIs(t, err, webhook.ErrUnexpectedStatusCode)
		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	})

	t.Run("caches responses by request body test", func(t *testing.T) {
		var calls int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&calls, 1)
			require.NoError(t, json.NewEncoder(w).Encode(echoResponse{Greeting: "cached"}))
		}))
		defer server.Close()

		responseCache := cache.NewLRUWithExpires[string, *echoResponse](10, time.Minute)
		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, responseCache, webhook.Options{
			RequestTimeout: time.Second,
		})

		for i := 0; i < 3; i++ {
			res, err := cli.Send(ctx, echoRequest{Name: "same"})
			require.NoError(t, err)
			assert.Equal(t, "cached", res.Greeting)
		}
		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

		_, err := cli.Send(ctx, echoRequest{Name: "different"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	})

	t.Run("malformed response test", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		cli := webhook.NewClient[echoRequest, echoResponse](server.URL, nil, webhook.Options{
			RequestTimeout: time.Second,
		})

		_, err := cli.Send(ctx, echoRequest{Name: "x"})
		assert.ErrorIs(t, err, webhook.ErrUnexpectedResponse)
	})
}
