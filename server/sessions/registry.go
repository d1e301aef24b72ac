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

package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/server/backend/storage"
	"github.com/redline-team/redline/server/logging"
	"github.com/redline-team/redline/server/profiling/prometheus"
)

var (
	// ErrRegistryClosed is returned when the registry is shutting down.
	ErrRegistryClosed = errors.New("session registry closed")
)

// Registry is the process-wide map from document ID to its live session.
// It guarantees that concurrent first connections for the same document
// construct exactly one session, and evicts sessions idle beyond the grace
// period.
type Registry struct {
	store   storage.Storage
	timings timings
	metrics *prometheus.Metrics
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewRegistry creates a registry and starts its idle sweeper.
func NewRegistry(
	conf *Config,
	store storage.Storage,
	metrics *prometheus.Metrics,
) (*Registry, error) {
	t, err := conf.parse()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		store:       store,
		timings:     t,
		metrics:     metrics,
		logger:      logging.New("registry"),
		sessions:    make(map[string]*Session),
		sweepCancel: cancel,
		sweepDone:   make(chan struct{}),
	}
	go r.sweep(ctx)

	return r, nil
}

// GetOrCreate returns the live session for the document, constructing and
// loading it if needed. Only one session is ever constructed per document
// ID, however many connections race on it.
func (r *Registry) GetOrCreate(ctx context.Context, docID string) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}

	session, ok := r.sessions[docID]
	if !ok || session.Closed() {
		session = newSession(docID, r.store, r.timings, r.metrics)
		r.sessions[docID] = session
		if r.metrics != nil {
			r.metrics.AddSession()
		}
	}
	r.mu.Unlock()

	// Loading happens outside the registry lock so a slow storage backend
	// does not starve sessions of other documents. ensureLoaded serializes
	// racing callers of the same session.
	session.ensureLoaded(ctx)

	return session, nil
}

// sweep evicts idle sessions on a fixed interval.
func (r *Registry) sweep(ctx context.Context) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.timings.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	r.mu.Lock()
	var idle []*Session
	for docID, session := range r.sessions {
		if session.ConnCount() == 0 && time.Since(session.LastActive()) > r.timings.idleGrace {
			idle = append(idle, session)
			delete(r.sessions, docID)
		}
	}
	r.mu.Unlock()

	for _, session := range idle {
		session.Close(context.Background())
		if r.metrics != nil {
			r.metrics.RemoveSession()
		}
		r.logger.Infof("evicted idle session %s", session.DocID())
	}
}

// Summaries lists the resident sessions, ordered by document ID.
func (r *Registry) Summaries() []types.SessionSummary {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	summaries := make([]types.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].DocumentID < summaries[j].DocumentID
	})
	return summaries
}

// Close stops the sweeper and closes every session, saving pending changes.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.sweepCancel()
	<-r.sweepDone

	for _, session := range sessions {
		session.Close(ctx)
		if r.metrics != nil {
			r.metrics.RemoveSession()
		}
	}
}
