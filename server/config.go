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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redline-team/redline/internal/validation"
	"github.com/redline-team/redline/server/auth"
	"github.com/redline-team/redline/server/backend"
	"github.com/redline-team/redline/server/backend/storage/gateway"
	"github.com/redline-team/redline/server/backend/storage/mongo"
	"github.com/redline-team/redline/server/profiling"
	"github.com/redline-team/redline/server/sessions"
	"github.com/redline-team/redline/server/transport"
)

// Below are the values of the default values of Redline config.
const (
	DefaultPort          = 8080
	DefaultProfilingPort = 8081

	DefaultStorageType = backend.StorageTypeMemory

	DefaultGatewayRequestTimeout = 5 * time.Second

	DefaultMongoConnectionURI     = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout = 5 * time.Second
	DefaultMongoPingTimeout       = 5 * time.Second
	DefaultMongoDatabase          = "redline"

	DefaultAuthRequestTimeout  = 3 * time.Second
	DefaultAuthMaxRetries      = 10
	DefaultAuthMaxWaitInterval = 3 * time.Second
	DefaultAuthCacheSize       = 5000
	DefaultAuthCacheTTL        = 10 * time.Second

	DefaultSaveDebounce  = 2 * time.Second
	DefaultSaveTimeout   = 5 * time.Second
	DefaultLoadTimeout   = 5 * time.Second
	DefaultIdleGrace     = 30 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// Config is the configuration for creating a Redline instance.
type Config struct {
	Transport *transport.Config `yaml:"Transport"`
	Profiling *profiling.Config `yaml:"Profiling"`
	Backend   *backend.Config   `yaml:"Backend"`
	Auth      *auth.Config      `yaml:"Auth"`
	Sessions  *sessions.Config  `yaml:"Sessions"`
	Gateway   *gateway.Config   `yaml:"Gateway"`
	Mongo     *mongo.Config     `yaml:"Mongo"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	conf := &Config{
		Transport: &transport.Config{Port: DefaultPort},
		Profiling: &profiling.Config{Port: DefaultProfilingPort},
		Backend:   &backend.Config{},
		Auth:      &auth.Config{},
		Sessions:  &sessions.Config{},
	}
	conf.ensureDefaultValue()
	return conf
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// Addr returns the address the synchronization server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("localhost:%d", c.Transport.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.Transport.Validate(); err != nil {
		return err
	}

	if err := c.Profiling.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if err := c.Sessions.Validate(); err != nil {
		return err
	}

	if c.Backend.StorageType == backend.StorageTypeGateway {
		if c.Gateway == nil || c.Gateway.BaseURL == "" {
			return fmt.Errorf(`"--gateway-base-url" flag is required for the gateway storage type`)
		}
	}
	if c.Gateway != nil {
		if err := validation.ValidateStruct(c.Gateway); err != nil {
			return err
		}
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.Transport == nil {
		c.Transport = &transport.Config{}
	}
	if c.Transport.Port == 0 {
		c.Transport.Port = DefaultPort
	}

	if c.Profiling == nil {
		c.Profiling = &profiling.Config{}
	}
	if c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}
	if c.Backend.StorageType == "" {
		c.Backend.StorageType = DefaultStorageType
	}

	if c.Auth == nil {
		c.Auth = &auth.Config{}
	}
	if c.Auth.RequestTimeout == "" {
		c.Auth.RequestTimeout = DefaultAuthRequestTimeout.String()
	}
	if c.Auth.MaxRetries == 0 {
		c.Auth.MaxRetries = DefaultAuthMaxRetries
	}
	if c.Auth.MaxWaitInterval == "" {
		c.Auth.MaxWaitInterval = DefaultAuthMaxWaitInterval.String()
	}
	if c.Auth.CacheSize == 0 {
		c.Auth.CacheSize = DefaultAuthCacheSize
	}
	if c.Auth.CacheTTL == "" {
		c.Auth.CacheTTL = DefaultAuthCacheTTL.String()
	}

	if c.Sessions == nil {
		c.Sessions = &sessions.Config{}
	}
	if c.Sessions.SaveDebounce == "" {
		c.Sessions.SaveDebounce = DefaultSaveDebounce.String()
	}
	if c.Sessions.SaveTimeout == "" {
		c.Sessions.SaveTimeout = DefaultSaveTimeout.String()
	}
	if c.Sessions.LoadTimeout == "" {
		c.Sessions.LoadTimeout = DefaultLoadTimeout.String()
	}
	if c.Sessions.IdleGrace == "" {
		c.Sessions.IdleGrace = DefaultIdleGrace.String()
	}
	if c.Sessions.SweepInterval == "" {
		c.Sessions.SweepInterval = DefaultSweepInterval.String()
	}

	if c.Gateway != nil {
		if c.Gateway.RequestTimeout == "" {
			c.Gateway.RequestTimeout = DefaultGatewayRequestTimeout.String()
		}
	}

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}
		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}
		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}
		if c.Mongo.Database == "" {
			c.Mongo.Database = DefaultMongoDatabase
		}
	}
}
