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

// Package webhook provides a JSON webhook client with retries and response
// caching.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"syscall"
	"time"

	"github.com/redline-team/redline/pkg/cache"
)

var (
	// ErrUnexpectedStatusCode is returned when the response code is not 200 from the webhook.
	ErrUnexpectedStatusCode = errors.New("unexpected status code from webhook")

	// ErrUnexpectedResponse is returned when the response from the webhook is not as expected.
	ErrUnexpectedResponse = errors.New("unexpected response from webhook")

	// ErrWebhookTimeout is returned when the webhook does not respond in time.
	ErrWebhookTimeout = errors.New("webhook timeout")
)

// Options are the options for the webhook client.
type Options struct {
	RequestTimeout  time.Duration
	MaxRetries      uint64
	MaxWaitInterval time.Duration
}

// Client posts JSON requests to a webhook endpoint with exponential backoff
// and caches decoded responses keyed by request body.
type Client[Req any, Res any] struct {
	url        string
	cache      *cache.LRUWithExpires[string, *Res]
	httpClient *http.Client
	options    Options
}

// NewClient creates a new instance of Client.
func NewClient[Req any, Res any](
	url string,
	responseCache *cache.LRUWithExpires[string, *Res],
	options Options,
) *Client[Req, Res] {
	return &Client[Req, Res]{
		url:        url,
		cache:      responseCache,
		httpClient: &http.Client{Timeout: options.RequestTimeout},
		options:    options,
	}
}

// Send sends the given request to the webhook and decodes the response.
func (c *Client[Req, Res]) Send(ctx context.Context, req Req) (*Res, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	cacheKey := string(body)
	if c.cache != nil {
		if entry, ok := c.cache.Get(cacheKey); ok {
			return entry, nil
		}
	}

	var res Res
	err = c.withExponentialBackoff(ctx, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
		if err != nil {
			return 0, fmt.Errorf("create webhook request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("post to webhook: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, ErrUnexpectedStatusCode
		}

		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return resp.StatusCode, ErrUnexpectedResponse
		}

		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(cacheKey, &res)
	}

	return &res, nil
}

func (c *Client[Req, Res]) withExponentialBackoff(ctx context.Context, webhookFn func() (int, error)) error {
	var retries uint64
	var lastErr error
	for retries <= c.options.MaxRetries {
		statusCode, err := webhookFn()
		if err == nil {
			return nil
		}
		if !shouldRetry(statusCode, err) {
			if errors.Is(err, ErrUnexpectedStatusCode) {
				return fmt.Errorf("%d: %w", statusCode, ErrUnexpectedStatusCode)
			}
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitInterval(retries, c.options.MaxWaitInterval)):
		}

		retries++
	}

	return fmt.Errorf("%v: %w", lastErr, ErrWebhookTimeout)
}

// waitInterval returns the interval of given retries. (2^retries * 100) milliseconds.
func waitInterval(retries uint64, maxWaitInterval time.Duration) time.Duration {
	interval := time.Duration(math.Pow(2, float64(retries))) * 100 * time.Millisecond
	if maxWaitInterval < interval {
		return maxWaitInterval
	}

	return interval
}

// shouldRetry returns true if the given error should be retried.
func shouldRetry(statusCode int, err error) bool {
	// If the connection is reset, we should retry.
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ECONNRESET
	}

	return statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode == http.StatusTooManyRequests
}
