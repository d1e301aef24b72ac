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

// Package types provides the types shared between the server and the client
// of the collaboration core.
package types

// Cursor is a selection range in the document, in visible rune offsets.
type Cursor struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Presence is the ephemeral awareness state of one participant: cursor,
// display name and color. It is broadcast to the other participants of a
// session and never written to durable storage.
type Presence struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	Color       string  `json:"color"`
	Cursor      *Cursor `json:"cursor,omitempty"`
}

// PresenceEvent is the awareness payload relayed between participants. A nil
// Presence means the participant left the session.
type PresenceEvent struct {
	ConnID   string    `json:"connId"`
	Presence *Presence `json:"presence"`
}
