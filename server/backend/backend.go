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

// Package backend assembles the server-side components behind the
// transport: snapshot storage, the authentication gate, the session
// registry and metrics.
package backend

import (
	"context"
	"fmt"

	"github.com/redline-team/redline/server/auth"
	"github.com/redline-team/redline/server/backend/storage"
	"github.com/redline-team/redline/server/backend/storage/gateway"
	"github.com/redline-team/redline/server/backend/storage/memory"
	"github.com/redline-team/redline/server/backend/storage/mongo"
	"github.com/redline-team/redline/server/logging"
	"github.com/redline-team/redline/server/profiling/prometheus"
	"github.com/redline-team/redline/server/sessions"
)

// Backend bundles the stateful components of the collaboration server.
type Backend struct {
	Storage  storage.Storage
	Gate     *auth.Gate
	Registry *sessions.Registry
	Metrics  *prometheus.Metrics
}

// New creates a Backend: it dials the selected storage, builds the gate and
// starts the session registry.
func New(
	conf *Config,
	authConf *auth.Config,
	sessionsConf *sessions.Config,
	gatewayConf *gateway.Config,
	mongoConf *mongo.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	store, err := dialStorage(conf, gatewayConf, mongoConf)
	if err != nil {
		return nil, err
	}

	gate, err := auth.New(authConf, auth.WithFailOpenCounter(metrics.FailOpenCounter()))
	if err != nil {
		return nil, err
	}

	registry, err := sessions.NewRegistry(sessionsConf, store, metrics)
	if err != nil {
		return nil, err
	}

	logging.DefaultLogger().Infof("backend created: storage: %s", conf.StorageType)

	return &Backend{
		Storage:  store,
		Gate:     gate,
		Registry: registry,
		Metrics:  metrics,
	}, nil
}

func dialStorage(
	conf *Config,
	gatewayConf *gateway.Config,
	mongoConf *mongo.Config,
) (storage.Storage, error) {
	switch conf.StorageType {
	case StorageTypeMemory:
		return memory.New()
	case StorageTypeGateway:
		return gateway.New(gatewayConf)
	case StorageTypeMongo:
		return mongo.Dial(mongoConf)
	default:
		return nil, fmt.Errorf("unknown storage type %q", conf.StorageType)
	}
}

// Shutdown closes the registry, saving every dirty session, then releases
// the storage backend.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.Registry.Close(ctx)
	if err := b.Storage.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
