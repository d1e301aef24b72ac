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

// Identity is the resolved identity of an authorized participant.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// AccessWebhookRequest is the request body sent to the external document
// access service to check whether a token may join a document's session.
type AccessWebhookRequest struct {
	DocumentID string `json:"documentId"`
	Token      string `json:"token"`
}

// AccessWebhookResponse is the decision returned by the external document
// access service.
type AccessWebhookResponse struct {
	Allowed  bool      `json:"allowed"`
	Identity *Identity `json:"identity,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}
