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

package types

import "time"

// SessionSummary describes one live synchronization session. It is served
// by the admin endpoint and rendered by `redline sessions ls`.
type SessionSummary struct {
	DocumentID  string    `json:"documentId"`
	Connections int       `json:"connections"`
	ContentLen  int       `json:"contentLen"`
	Dirty       bool      `json:"dirty"`
	LastActive  time.Time `json:"lastActive"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}
