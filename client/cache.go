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

// DurabilityCache locally persists document state so an offline or
// reconnecting client can resume from where it left off. Load runs at Dial,
// Save at Close; Destroy is for embedders that know the server holds a
// newer state.
type DurabilityCache interface {
	// Load returns the cached snapshot for the document, or nil when there
	// is none.
	Load(docID string) ([]byte, error)

	// Save caches the snapshot for the document.
	Save(docID string, snapshot []byte) error

	// Destroy drops the cached snapshot for the document.
	Destroy(docID string) error
}

// NoopCache is the default DurabilityCache: it persists nothing.
type NoopCache struct{}

// Load implements DurabilityCache.
func (NoopCache) Load(string) ([]byte, error) { return nil, nil }

// Save implements DurabilityCache.
func (NoopCache) Save(string, []byte) error { return nil }

// Destroy implements DurabilityCache.
func (NoopCache) Destroy(string) error { return nil }
