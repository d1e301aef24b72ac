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

// Package gateway provides the storage implementation backed by the
// external document-storage service of the platform. Snapshots travel as
// base64 text over HTTP.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redline-team/redline/server/backend/storage"
)

// Config is the configuration of the document-storage gateway.
type Config struct {
	// BaseURL is the base URL of the document-storage service.
	BaseURL string `yaml:"BaseURL" validate:"required,url"`

	// RequestTimeout is the timeout of a single load or save request.
	RequestTimeout string `yaml:"RequestTimeout" validate:"required,duration"`
}

// Storage talks to the external document-storage service.
type Storage struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a gateway storage for the given configuration.
func New(conf *Config) (*Storage, error) {
	timeout, err := time.ParseDuration(conf.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse request timeout %q: %w", conf.RequestTimeout, err)
	}

	return &Storage{
		baseURL:    strings.TrimSuffix(conf.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// stateURL returns the state resource URL for the given document.
func (s *Storage) stateURL(docID string) string {
	return fmt.Sprintf("%s/documents/%s/state", s.baseURL, url.PathEscape(docID))
}

// Load fetches the last-saved snapshot of the document. The sentinel marker
// is returned as-is so that callers can special-case it before decoding.
func (s *Storage) Load(ctx context.Context, docID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.stateURL(docID), nil)
	if err != nil {
		return nil, fmt.Errorf("create load request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load state of %s: %w", docID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, storage.ErrSnapshotNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load state of %s: status %d", docID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read state of %s: %w", docID, err)
	}

	encoded := strings.TrimSpace(string(body))
	if encoded == "" {
		return nil, storage.ErrSnapshotNotFound
	}
	if encoded == storage.SentinelBase64 {
		return []byte(encoded), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", docID, err)
	}

	return decoded, nil
}

// Save stores the snapshot of the document as base64 text.
func (s *Storage) Save(ctx context.Context, docID string, snapshot []byte) error {
	encoded := base64.StdEncoding.EncodeToString(snapshot)
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		s.stateURL(docID),
		strings.NewReader(encoded),
	)
	if err != nil {
		return fmt.Errorf("create save request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("save state of %s: %w", docID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("save state of %s: status %d", docID, resp.StatusCode)
	}

	return nil
}

// Close releases the resources of this storage.
func (s *Storage) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
