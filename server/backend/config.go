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

package backend

import "fmt"

// Storage backend selection.
const (
	// StorageTypeMemory keeps snapshots in process memory. Standalone mode;
	// nothing survives a restart.
	StorageTypeMemory = "memory"

	// StorageTypeGateway delegates snapshots to the external
	// document-storage service over HTTP.
	StorageTypeGateway = "gateway"

	// StorageTypeMongo stores snapshots in MongoDB.
	StorageTypeMongo = "mongo"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// StorageType selects where document snapshots are durably saved. One
	// of "memory", "gateway" or "mongo".
	StorageType string `yaml:"StorageType"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageTypeMemory, StorageTypeGateway, StorageTypeMongo:
		return nil
	default:
		return fmt.Errorf(
			`invalid argument "%s" for "--storage-type" flag: must be one of "memory", "gateway", "mongo"`,
			c.StorageType,
		)
	}
}
