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

package transport

import "fmt"

// Config is the configuration for the synchronization server.
type Config struct {
	// Port is the port to listen on for WebSocket connections.
	Port int `yaml:"Port"`

	// CertFile is the path to the TLS certificate. When set together with
	// KeyFile the server serves TLS.
	CertFile string `yaml:"CertFile"`

	// KeyFile is the path to the TLS private key.
	KeyFile string `yaml:"KeyFile"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf(
			`invalid argument "%d" for "--port" flag: port must be between 1 and 65535`,
			c.Port,
		)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("both --cert-file and --key-file must be set for TLS")
	}

	return nil
}
