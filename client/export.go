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

import "fmt"

// ExportMode selects the representation of an exported document.
type ExportMode string

const (
	// ExportText exports the plain document text.
	ExportText ExportMode = "text"

	// ExportJSON exports the full replicated state as a portable JSON
	// snapshot, suitable for NewDocFromSnapshot and the durability cache.
	ExportJSON ExportMode = "json"
)

// Export returns a point-in-time representation of the document.
func (c *Client) Export(mode ExportMode) ([]byte, error) {
	switch mode {
	case ExportText:
		return []byte(c.doc.String()), nil
	case ExportJSON:
		return c.doc.Snapshot()
	default:
		return nil, fmt.Errorf("unknown export mode %q", mode)
	}
}
