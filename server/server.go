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

// Package server provides the Redline server, the real-time collaboration
// core. The server accepts WebSocket connections from editing clients,
// merges their updates through per-document sessions and drives snapshot
// persistence.
package server

import (
	"context"
	gosync "sync"

	"github.com/redline-team/redline/server/backend"
	"github.com/redline-team/redline/server/profiling"
	"github.com/redline-team/redline/server/profiling/prometheus"
	"github.com/redline-team/redline/server/transport"
)

// Redline is a server of Redline. It receives updates from clients,
// propagates them to the other clients on the same document and saves
// snapshots after edits settle.
type Redline struct {
	lock gosync.Mutex

	conf            *Config
	backend         *backend.Backend
	transportServer *transport.Server
	profilingServer *profiling.Server

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of Redline.
func New(conf *Config) (*Redline, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(
		conf.Backend,
		conf.Auth,
		conf.Sessions,
		conf.Gateway,
		conf.Mongo,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	transportServer := transport.NewServer(conf.Transport, be.Registry, be.Gate)

	var profilingServer *profiling.Server
	if conf.Profiling != nil {
		profilingServer = profiling.NewServer(conf.Profiling, metrics)
	}

	return &Redline{
		conf:            conf,
		backend:         be,
		transportServer: transportServer,
		profilingServer: profilingServer,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the synchronization port.
func (r *Redline) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.profilingServer != nil {
		if err := r.profilingServer.Start(); err != nil {
			return err
		}
	}

	return r.transportServer.Start()
}

// Shutdown shuts down this Redline server. Dirty sessions get a final save
// before the process lets go of them.
func (r *Redline) Shutdown(graceful bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.shutdown {
		return nil
	}

	r.transportServer.Shutdown(graceful)
	if r.profilingServer != nil {
		r.profilingServer.Shutdown(graceful)
	}

	if err := r.backend.Shutdown(context.Background()); err != nil {
		return err
	}

	close(r.shutdownCh)
	r.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *Redline) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// Addr returns the address of the synchronization server.
func (r *Redline) Addr() string {
	return r.conf.Addr()
}
