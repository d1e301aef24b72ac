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

package auth

import (
	"fmt"
	"time"
)

// Config is the configuration of the authentication gate.
type Config struct {
	// WebhookURL is the URL of the external document-access service that
	// decides whether a token may join a document's session. Ignored when
	// JWTSecret is set.
	WebhookURL string `yaml:"WebhookURL"`

	// RequestTimeout is the timeout of a single access-check request.
	RequestTimeout string `yaml:"RequestTimeout"`

	// MaxRetries is the max count that retries the access check.
	MaxRetries uint64 `yaml:"MaxRetries"`

	// MaxWaitInterval is the max interval that waits between retries.
	MaxWaitInterval string `yaml:"MaxWaitInterval"`

	// CacheSize is the size of the access decision cache.
	CacheSize int `yaml:"CacheSize"`

	// CacheTTL is how long access decisions are cached.
	CacheTTL string `yaml:"CacheTTL"`

	// FailOpen decides the behavior when the access service cannot be
	// reached at all: true admits the connection with a degraded placeholder
	// identity and a warning log, false rejects it. Defaults to false.
	FailOpen bool `yaml:"FailOpen"`

	// JWTSecret enables local token verification (HS256) instead of the
	// access webhook. Identity is read from the token claims.
	JWTSecret string `yaml:"JWTSecret"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--auth-request-timeout" flag: %w`,
			c.RequestTimeout,
			err,
		)
	}

	if _, err := time.ParseDuration(c.MaxWaitInterval); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--auth-max-wait-interval" flag: %w`,
			c.MaxWaitInterval,
			err,
		)
	}

	if _, err := time.ParseDuration(c.CacheTTL); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--auth-cache-ttl" flag: %w`,
			c.CacheTTL,
			err,
		)
	}

	return nil
}

// ParseRequestTimeout returns the request timeout as a duration.
func (c *Config) ParseRequestTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse request timeout %q: %w", c.RequestTimeout, err)
	}
	return timeout, nil
}
