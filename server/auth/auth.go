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

// Package auth provides the authentication gate of the collaboration core.
// It answers whether a token is allowed to join a document's session by
// consulting the external document-access service, or by verifying the
// token locally when a shared secret is configured.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/pkg/cache"
	"github.com/redline-team/redline/pkg/webhook"
	"github.com/redline-team/redline/server/logging"
)

var (
	// ErrTokenRequired is returned when the connection carries no token.
	ErrTokenRequired = errors.New("token required")

	// ErrNotAllowed is returned when the access service denies the token
	// for the document.
	ErrNotAllowed = errors.New("access to document not allowed")

	// ErrAccessServiceUnavailable is returned in fail-closed mode when the
	// access service cannot be reached.
	ErrAccessServiceUnavailable = errors.New("access service unavailable")
)

// counter is the subset of a metrics counter the gate needs.
type counter interface {
	Inc()
}

// Gate validates inbound connections before they join a session.
type Gate struct {
	conf           *Config
	requestTimeout time.Duration
	webhookClient  *webhook.Client[types.AccessWebhookRequest, types.AccessWebhookResponse]
	failOpenCount  counter
}

// Option configures a Gate.
type Option func(*Gate)

// WithFailOpenCounter installs a counter incremented on every fail-open
// admission.
func WithFailOpenCounter(c counter) Option {
	return func(g *Gate) {
		g.failOpenCount = c
	}
}

// New creates a gate for the given configuration.
func New(conf *Config, opts ...Option) (*Gate, error) {
	requestTimeout, err := conf.ParseRequestTimeout()
	if err != nil {
		return nil, err
	}
	maxWaitInterval, err := time.ParseDuration(conf.MaxWaitInterval)
	if err != nil {
		return nil, fmt.Errorf("parse max wait interval %q: %w", conf.MaxWaitInterval, err)
	}
	cacheTTL, err := time.ParseDuration(conf.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("parse cache ttl %q: %w", conf.CacheTTL, err)
	}

	gate := &Gate{
		conf:           conf,
		requestTimeout: requestTimeout,
	}
	if conf.WebhookURL != "" {
		decisionCache := cache.NewLRUWithExpires[string, *types.AccessWebhookResponse](
			conf.CacheSize,
			cacheTTL,
		)
		gate.webhookClient = webhook.NewClient[types.AccessWebhookRequest, types.AccessWebhookResponse](
			conf.WebhookURL,
			decisionCache,
			webhook.Options{
				RequestTimeout:  requestTimeout,
				MaxRetries:      conf.MaxRetries,
				MaxWaitInterval: maxWaitInterval,
			},
		)
	}

	for _, opt := range opts {
		opt(gate)
	}

	return gate, nil
}

// Verify checks whether the given token may join the given document's
// session and resolves its identity.
func (g *Gate) Verify(ctx context.Context, docID, token string) (*types.Identity, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	if g.conf.JWTSecret != "" {
		return g.verifyLocal(token)
	}
	if g.webhookClient == nil {
		// No access service configured: standalone mode trusts the token
		// value as the user id.
		return &types.Identity{UserID: token}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	res, err := g.webhookClient.Send(ctx, types.AccessWebhookRequest{
		DocumentID: docID,
		Token:      token,
	})
	if err != nil {
		if !g.conf.FailOpen {
			return nil, fmt.Errorf("%v: %w", err, ErrAccessServiceUnavailable)
		}

		// Deliberate availability-over-strict-auth tradeoff, guarded by the
		// FailOpen knob: the editing surface stays usable while the access
		// service is down.
		logging.From(ctx).Warnf(
			"access check for %s failed, admitting with degraded identity: %v", docID, err,
		)
		if g.failOpenCount != nil {
			g.failOpenCount.Inc()
		}
		return &types.Identity{
			UserID:      "anonymous-" + xid.New().String(),
			DisplayName: "Guest",
		}, nil
	}

	if !res.Allowed {
		if res.Reason != "" {
			return nil, fmt.Errorf("%s: %w", res.Reason, ErrNotAllowed)
		}
		return nil, ErrNotAllowed
	}

	if res.Identity == nil {
		return &types.Identity{UserID: token}, nil
	}
	return res.Identity, nil
}

// verifyLocal validates the token signature with the shared secret and
// reads the identity from its claims.
func (g *Gate) verifyLocal(token string) (*types.Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(g.conf.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrNotAllowed
	}

	identity := &types.Identity{}
	if sub, ok := claims["sub"].(string); ok {
		identity.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		identity.DisplayName = name
	}
	if identity.UserID == "" {
		return nil, ErrNotAllowed
	}

	return identity, nil
}
