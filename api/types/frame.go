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

import "errors"

// Binary frames on the synchronization socket carry a one-byte type tag
// followed by the payload.
const (
	// FrameUpdate carries an encoded document update.
	FrameUpdate byte = 0x00

	// FramePresence carries a JSON awareness payload.
	FramePresence byte = 0x01
)

// ErrEmptyFrame is returned when a frame has no type tag.
var ErrEmptyFrame = errors.New("empty frame")

// EncodeFrame prepends the type tag to the payload.
func EncodeFrame(frameType byte, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, frameType)
	return append(frame, payload...)
}

// DecodeFrame splits a frame into its type tag and payload.
func DecodeFrame(frame []byte) (byte, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return frame[0], frame[1:], nil
}
