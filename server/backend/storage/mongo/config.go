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

package mongo

import (
	"fmt"
	"time"
)

// Config is the configuration for the mongo-backed snapshot store.
type Config struct {
	// ConnectionURI is the URI of the MongoDB deployment.
	ConnectionURI string `yaml:"ConnectionURI"`

	// ConnectionTimeout is the timeout of establishing the connection.
	ConnectionTimeout string `yaml:"ConnectionTimeout"`

	// PingTimeout is the timeout of the liveness ping at startup.
	PingTimeout string `yaml:"PingTimeout"`

	// Database is the database name used by Redline.
	Database string `yaml:"Database"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.ConnectionTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--mongo-connection-timeout" flag: %w`,
			c.ConnectionTimeout,
			err,
		)
	}

	if _, err := time.ParseDuration(c.PingTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--mongo-ping-timeout" flag: %w`,
			c.PingTimeout,
			err,
		)
	}

	return nil
}

// ParseConnectionTimeout returns the connection timeout as a duration.
func (c *Config) ParseConnectionTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.ConnectionTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse connection timeout %q: %w", c.ConnectionTimeout, err)
	}
	return timeout, nil
}

// ParsePingTimeout returns the ping timeout as a duration.
func (c *Config) ParsePingTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.PingTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse ping timeout %q: %w", c.PingTimeout, err)
	}
	return timeout, nil
}
