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

package client

// Options configures how we set up the client.
type Options struct {
	// Token is presented to the server's authentication gate during the
	// handshake.
	Token string

	// UserID is the local actor identifier. A random one is generated when
	// empty.
	UserID string

	// DisplayName is shown to other participants through awareness.
	DisplayName string

	// Color is the cursor color shown to other participants.
	Color string

	// Cache locally persists document state across reconnects. Defaults to
	// a no-op.
	Cache DurabilityCache
}

// Option configures Options.
type Option func(*Options)

// WithToken configures the token of the client.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithUserID configures the user ID of the client.
func WithUserID(userID string) Option {
	return func(o *Options) { o.UserID = userID }
}

// WithDisplayName configures the display name shown through awareness.
func WithDisplayName(name string) Option {
	return func(o *Options) { o.DisplayName = name }
}

// WithColor configures the cursor color shown through awareness.
func WithColor(color string) Option {
	return func(o *Options) { o.Color = color }
}

// WithDurabilityCache configures local persistence of document state.
func WithDurabilityCache(cache DurabilityCache) Option {
	return func(o *Options) { o.Cache = cache }
}
