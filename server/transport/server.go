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

// Package transport serves the synchronization protocol over WebSocket.
// The handshake carries the document ID as a path segment and the token as
// a query parameter since the upgrade request cannot carry custom headers
// from browser clients.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/internal/validation"
	"github.com/redline-team/redline/server/auth"
	"github.com/redline-team/redline/server/logging"
	"github.com/redline-team/redline/server/sessions"
)

// CollabPathPrefix is the route of the synchronization endpoint. The
// document ID follows as the final path segment.
const CollabPathPrefix = "/collab/v1/documents/"

const (
	healthPath        = "/healthz"
	adminSessionsPath = "/admin/sessions"

	serviceName = "redline"
)

// Server accepts synchronization connections and routes them to their
// document's session.
type Server struct {
	conf     *Config
	registry *sessions.Registry
	gate     *auth.Gate
	logger   logging.Logger

	upgrader   websocket.Upgrader
	serveMux   *http.ServeMux
	httpServer *http.Server
}

// NewServer creates an instance of Server.
func NewServer(
	conf *Config,
	registry *sessions.Registry,
	gate *auth.Gate,
) *Server {
	s := &Server{
		conf:     conf,
		registry: registry,
		gate:     gate,
		logger:   logging.New("transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Access control happens before the upgrade via the gate, not
			// via the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	serveMux := http.NewServeMux()
	serveMux.HandleFunc(healthPath, s.handleHealth)
	serveMux.HandleFunc(adminSessionsPath, s.handleAdminSessions)
	serveMux.HandleFunc(CollabPathPrefix, s.handleDocument)
	s.serveMux = serveMux
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: serveMux,
	}

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.serveMux
}

// Start starts the server.
func (s *Server) Start() error {
	go func() {
		s.logger.Infof("serving collaboration on %d", s.conf.Port)

		var err error
		if s.conf.CertFile != "" && s.conf.KeyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.conf.CertFile, s.conf.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server ListenAndServe: %v", err)
		}
	}()
	return nil
}

// Shutdown shuts down the server. New handshakes are refused; established
// sockets are closed by the registry closing their sessions.
func (s *Server) Shutdown(graceful bool) {
	if graceful {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("HTTP server Shutdown: %v", err)
		}
		return
	}

	if err := s.httpServer.Close(); err != nil {
		s.logger.Errorf("HTTP server close: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(types.HealthResponse{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Warnf("encode health response: %v", err)
	}
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.registry.Summaries()); err != nil {
		s.logger.Warnf("encode session summaries: %v", err)
	}
}

// handleDocument authenticates and upgrades a synchronization connection,
// then pumps its frames into the document's session until the socket drops.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, CollabPathPrefix)
	if docID == "" || strings.Contains(docID, "/") {
		http.NotFound(w, r)
		return
	}
	if err := validation.ValidateDocKey(docID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The gate runs before the upgrade: a denied token never reaches the
	// session or sees any document state.
	identity, err := s.gate.Verify(r.Context(), docID, r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, err.Error(), authStatusCode(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("upgrade %s: %v", docID, err)
		return
	}

	wsc := newWSConn(ws)
	conn := sessions.NewConn(identity, wsc)
	session, err := s.attach(r.Context(), docID, conn)
	if err != nil {
		s.logger.Warnf("attach %s: %v", docID, err)
		wsc.close()
		return
	}

	logger := logging.New("transport",
		logging.NewField("doc", docID),
		logging.NewField("conn", conn.ID()),
	)
	logger.Infof("connected as %s", identity.UserID)

	s.readLoop(logger, session, conn, wsc)

	session.Detach(conn)
	wsc.close()
	logger.Infof("disconnected")
}

// attach joins the connection to the document's session, retrying once when
// it raced the idle sweeper and got an evicted session.
func (s *Server) attach(
	ctx context.Context,
	docID string,
	conn *sessions.Conn,
) (*sessions.Session, error) {
	for i := 0; i < 2; i++ {
		session, err := s.registry.GetOrCreate(ctx, docID)
		if err != nil {
			return nil, err
		}
		if err := session.Attach(conn); err != nil {
			if errors.Is(err, sessions.ErrSessionClosed) && i == 0 {
				continue
			}
			return nil, err
		}
		return session, nil
	}
	return nil, sessions.ErrSessionClosed
}

func (s *Server) readLoop(
	logger logging.Logger,
	session *sessions.Session,
	conn *sessions.Conn,
	wsc *wsConn,
) {
	ws := wsc.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("read: %v", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		frameType, payload, err := types.DecodeFrame(frame)
		if err != nil {
			logger.Debugf("decode frame: %v", err)
			continue
		}

		switch frameType {
		case types.FrameUpdate:
			// A malformed update is contained: this connection's frame is
			// dropped, the session and the other participants are unaffected.
			if err := session.HandleUpdate(conn, payload); err != nil {
				logger.Warnf("apply update: %v", err)
			}
		case types.FramePresence:
			presence := &types.Presence{}
			if err := json.Unmarshal(payload, presence); err != nil {
				logger.Debugf("decode presence: %v", err)
				continue
			}
			session.HandlePresence(conn, presence)
		default:
			logger.Debugf("unknown frame type 0x%02x", frameType)
		}
	}
}

// authStatusCode maps gate errors to handshake response codes.
func authStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrTokenRequired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrAccessServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
