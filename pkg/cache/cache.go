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

// Package cache provides cache implementations with expiration support.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUWithExpires is a wrapper over hashicorp's expirable LRU. Entries fall
// out after the TTL given at construction, or earlier under size pressure.
type LRUWithExpires[K comparable, V any] struct {
	cache *expirable.LRU[K, V]
}

// NewLRUWithExpires creates a new expirable LRU with the given size and ttl.
func NewLRUWithExpires[K comparable, V any](size int, ttl time.Duration) *LRUWithExpires[K, V] {
	return &LRUWithExpires[K, V]{
		cache: expirable.NewLRU[K, V](size, nil, ttl),
	}
}

// Get retrieves a value from the cache.
func (c *LRUWithExpires[K, V]) Get(key K) (V, bool) {
	return c.cache.Get(key)
}

// Add adds a value to the cache.
func (c *LRUWithExpires[K, V]) Add(key K, value V) bool {
	return c.cache.Add(key, value)
}

// Remove removes a key from the cache.
func (c *LRUWithExpires[K, V]) Remove(key K) bool {
	return c.cache.Remove(key)
}

// Purge clears all entries from the cache.
func (c *LRUWithExpires[K, V]) Purge() {
	c.cache.Purge()
}

// Len returns the number of items in the cache.
func (c *LRUWithExpires[K, V]) Len() int {
	return c.cache.Len()
}
