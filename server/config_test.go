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

package server_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redline-team/redline/server"
	"github.com/redline-team/redline/server/backend"
)

func TestConfig(t *testing.T) {
	t.Run("defaults test", func(t *testing.T) {
		conf := server.NewConfig()
		require.NoError(t, conf.Validate())

		assert.Equal(t, server.DefaultPort, conf.Transport.Port)
		assert.Equal(t, backend.StorageTypeMemory, conf.Backend.StorageType)
		assert.Equal(t, server.DefaultSaveDebounce.String(), conf.Sessions.SaveDebounce)
		assert.False(t, conf.Auth.FailOpen)
	})

	t.Run("config file overrides and fills defaults test", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "redline.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
Transport:
  Port: 9000
Backend:
  StorageType: gateway
Gateway:
  BaseURL: http://storage.internal:8000
Auth:
  FailOpen: true
Sessions:
  SaveDebounce: 500ms
`), 0o600))

		conf, err := server.NewConfigFromFile(path)
		require.NoError(t, err)
		require.NoError(t, conf.Validate())

		assert.Equal(t, 9000, conf.Transport.Port)
		assert.Equal(t, backend.StorageTypeGateway, conf.Backend.StorageType)
		assert.Equal(t, "http://storage.internal:8000", conf.Gateway.BaseURL)
		assert.Equal(t, server.DefaultGatewayRequestTimeout.String(), conf.Gateway.RequestTimeout)
		assert.True(t, conf.Auth.FailOpen)
		assert.Equal(t, "500ms", conf.Sessions.SaveDebounce)
		assert.Equal(t, server.DefaultIdleGrace.String(), conf.Sessions.IdleGrace)
	})

	t.Run("gateway storage requires a base url test", func(t *testing.T) {
		conf := server.NewConfig()
		conf.Backend.StorageType = backend.StorageTypeGateway
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid storage type test", func(t *testing.T) {
		conf := server.NewConfig()
		conf.Backend.StorageType = "postgres"
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid duration test", func(t *testing.T) {
		conf := server.NewConfig()
		conf.Sessions.SaveDebounce = "2 seconds"
		assert.Error(t, conf.Validate())
	})
}
