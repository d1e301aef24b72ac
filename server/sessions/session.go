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

// Package sessions provides the server-side authority for live documents:
// each session owns the replicated state of one document, fans incoming
// updates out to the other connections, and drives debounced auto-save.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/pkg/crdt"
	"github.com/redline-team/redline/server/backend/storage"
	"github.com/redline-team/redline/server/logging"
	"github.com/redline-team/redline/server/profiling/prometheus"
)

var (
	// ErrSessionClosed is returned when attaching to a session that has
	// been evicted. Callers should look the session up again.
	ErrSessionClosed = errors.New("session closed")
)

// Sink delivers messages to one remote replica. It is implemented by the
// transport layer.
type Sink interface {
	// SendUpdate delivers an encoded document update.
	SendUpdate(data []byte) error

	// SendPresence delivers an awareness event.
	SendPresence(event types.PresenceEvent) error
}

// Conn is one attached client connection. It is owned by the session for
// the connection's lifetime.
type Conn struct {
	id       string
	identity *types.Identity
	sink     Sink
}

// NewConn creates a connection with the given resolved identity.
func NewConn(identity *types.Identity, sink Sink) *Conn {
	return &Conn{
		id:       xid.New().String(),
		identity: identity,
		sink:     sink,
	}
}

// ID returns the connection ID.
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the resolved identity of this connection.
func (c *Conn) Identity() *types.Identity {
	return c.identity
}

// Session is the authority for one document. All mutations of the document
// state flow through it.
type Session struct {
	docID   string
	store   storage.Storage
	timings timings
	metrics *prometheus.Metrics
	logger  logging.Logger

	loadOnce sync.Once

	mu sync.Mutex
	// doc is assigned once by ensureLoaded and stays nil while the
	// snapshot load is in flight. Reads that may race the load take mu;
	// the message paths run strictly after ensureLoaded returns.
	doc        *crdt.Doc
	conns      map[string]*Conn
	presences  map[string]*types.Presence
	saveTimer  *time.Timer
	gen        uint64
	savedGen   uint64
	lastActive time.Time
	closed     bool
}

func newSession(
	docID string,
	store storage.Storage,
	t timings,
	metrics *prometheus.Metrics,
) *Session {
	return &Session{
		docID:      docID,
		store:      store,
		timings:    t,
		metrics:    metrics,
		logger:     logging.New("session", logging.NewField("doc", docID)),
		conns:      make(map[string]*Conn),
		presences:  make(map[string]*types.Presence),
		lastActive: time.Now(),
	}
}

// ensureLoaded loads the last-saved snapshot exactly once. Load failures,
// the sentinel marker and absence all degrade to an empty document: the
// editing surface stays available even when storage does not (fail-open).
func (s *Session) ensureLoaded(ctx context.Context) {
	s.loadOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.timings.loadTimeout)
		defer cancel()

		var doc *crdt.Doc
		data, err := s.store.Load(ctx, s.docID)
		switch {
		case errors.Is(err, storage.ErrSnapshotNotFound):
			doc = crdt.NewDoc("")
		case err != nil:
			s.logger.Warnf("load snapshot failed, starting empty: %v", err)
			doc = crdt.NewDoc("")
		case storage.IsSentinel(data):
			// The marker must never reach the CRDT decoder. The first
			// connecting client populates the meta region with its local
			// content.
			s.logger.Infof("collaboration enabled but uninitialized, starting empty")
			doc = crdt.NewDoc("")
		default:
			doc, err = crdt.NewDocFromSnapshot("", data)
			if err != nil {
				s.logger.Warnf("decode snapshot failed, starting empty: %v", err)
				doc = crdt.NewDoc("")
			}
		}

		// The session is visible in the registry while the load is in
		// flight, so the assignment must be synchronized with readers
		// like Summary.
		s.mu.Lock()
		s.doc = doc
		s.mu.Unlock()
	})
}

// DocID returns the document ID this session is the authority for.
func (s *Session) DocID() string {
	return s.docID
}

// Attach registers the connection and hands it the current document state
// and the presence of the other participants.
func (s *Session) Attach(conn *Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.conns[conn.id] = conn
	s.lastActive = time.Now()
	roster := make(map[string]*types.Presence, len(s.presences))
	for id, presence := range s.presences {
		roster[id] = presence
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AddConnection()
	}

	state, err := s.doc.FullUpdate().Encode()
	if err != nil {
		return err
	}
	if err := conn.sink.SendUpdate(state); err != nil {
		return err
	}
	for id, presence := range roster {
		if err := conn.sink.SendPresence(types.PresenceEvent{
			ConnID:   id,
			Presence: presence,
		}); err != nil {
			return err
		}
	}

	return nil
}

// Detach removes the connection and tells the other participants it left.
func (s *Session) Detach(conn *Conn) {
	s.mu.Lock()
	if _, ok := s.conns[conn.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, conn.id)
	delete(s.presences, conn.id)
	s.lastActive = time.Now()
	others := s.otherConns(conn.id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RemoveConnection()
	}

	s.fanOutPresence(others, types.PresenceEvent{ConnID: conn.id})
}

// HandleUpdate merges an incoming update into the document state and
// broadcasts it to the other connections. Merging is conflict-free; no
// ordering across connections is required.
func (s *Session) HandleUpdate(from *Conn, data []byte) error {
	if err := s.doc.ApplyEncodedUpdate(data); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.gen++
	s.lastActive = time.Now()
	s.scheduleSaveLocked()
	others := s.otherConns(from.id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveUpdate(len(data))
	}

	for _, conn := range others {
		if err := conn.sink.SendUpdate(data); err != nil {
			s.logger.Debugf("relay update to %s: %v", conn.id, err)
		}
	}

	return nil
}

// HandlePresence records the connection's awareness state and relays it to
// the other connections. Awareness is never persisted and never merged into
// the document state.
func (s *Session) HandlePresence(from *Conn, presence *types.Presence) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.presences[from.id] = presence
	s.lastActive = time.Now()
	others := s.otherConns(from.id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObservePresenceEvent()
	}

	s.fanOutPresence(others, types.PresenceEvent{ConnID: from.id, Presence: presence})
}

// otherConns returns all connections except the given one. Callers must
// hold s.mu.
func (s *Session) otherConns(exclude string) []*Conn {
	others := make([]*Conn, 0, len(s.conns))
	for id, conn := range s.conns {
		if id != exclude {
			others = append(others, conn)
		}
	}
	return others
}

func (s *Session) fanOutPresence(conns []*Conn, event types.PresenceEvent) {
	for _, conn := range conns {
		if err := conn.sink.SendPresence(event); err != nil {
			s.logger.Debugf("relay presence to %s: %v", conn.id, err)
		}
	}
}

// scheduleSaveLocked arms or re-arms the debounced auto-save. Callers must
// hold s.mu.
func (s *Session) scheduleSaveLocked() {
	if s.saveTimer == nil {
		s.saveTimer = time.AfterFunc(s.timings.saveDebounce, s.autosave)
		return
	}
	s.saveTimer.Reset(s.timings.saveDebounce)
}

// autosave durably saves the current state. A failed save is retried on
// the next debounce cycle rather than immediately, so a struggling storage
// backend is not hammered with a write storm.
func (s *Session) autosave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	s.mu.Unlock()

	if err := s.save(context.Background(), gen); err != nil {
		s.logger.Warnf("auto-save failed, will retry: %v", err)
		if s.metrics != nil {
			s.metrics.IncSnapshotSaveFailures()
		}

		s.mu.Lock()
		if !s.closed && s.saveTimer != nil {
			s.saveTimer.Reset(s.timings.saveDebounce)
		}
		s.mu.Unlock()
	}
}

// save encodes and stores the snapshot. The snapshot reflects some
// consistent state no older than the debounce interval; updates arriving
// during the write are captured by the next cycle.
func (s *Session) save(ctx context.Context, gen uint64) error {
	snapshot, err := s.doc.Snapshot()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timings.saveTimeout)
	defer cancel()

	start := time.Now()
	if err := s.store.Save(ctx, s.docID, snapshot); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveSnapshotSave(time.Since(start).Seconds())
	}

	s.mu.Lock()
	if s.savedGen < gen {
		s.savedGen = gen
	}
	s.mu.Unlock()

	return nil
}

// Dirty returns whether updates arrived since the last successful save.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != s.savedGen
}

// ConnCount returns the number of attached connections.
func (s *Session) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// LastActive returns the time of the last attach, detach or update.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Summary describes this session for the admin surface. It may run while
// the snapshot load is still in flight; a loading session reports empty
// content.
func (s *Session) Summary() types.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	contentLen := 0
	if s.doc != nil {
		contentLen = s.doc.Len()
	}

	return types.SessionSummary{
		DocumentID:  s.docID,
		Connections: len(s.conns),
		ContentLen:  contentLen,
		Dirty:       s.gen != s.savedGen,
		LastActive:  s.lastActive,
	}
}

// Close marks the session closed and makes a final best-effort save of
// pending changes. In-memory state failures never roll back: a failed
// final save only loses what the next session load cannot see.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	dirty := s.gen != s.savedGen
	gen := s.gen
	s.mu.Unlock()

	if dirty {
		if err := s.save(ctx, gen); err != nil {
			s.logger.Warnf("final save failed: %v", err)
			if s.metrics != nil {
				s.metrics.IncSnapshotSaveFailures()
			}
		}
	}
}

// Closed returns whether this session has been evicted.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
