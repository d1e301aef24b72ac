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

// Package client provides the synchronization client of Redline. A Client
// is an explicit handle on one document's live session: Dial opens it,
// Close releases the socket and every goroutine behind it on all exit
// paths.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/redline-team/redline/api/types"
	"github.com/redline-team/redline/internal/validation"
	"github.com/redline-team/redline/pkg/crdt"
	"github.com/redline-team/redline/server/logging"
)

// Status is the connection status of a client, published on the status
// channel as it changes.
type Status int

const (
	// StatusConnecting means the handshake is in flight.
	StatusConnecting Status = iota

	// StatusConnected means the session is live.
	StatusConnected

	// StatusDisconnected means the session ended, by Close or by the
	// transport dropping.
	StatusDisconnected
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var (
	// ErrClientClosed is returned when operating on a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrSendQueueFull is returned when local edits outpace what the
	// transport can deliver. The client stays live; the edit is already
	// applied locally and can be re-published.
	ErrSendQueueFull = errors.New("send queue full")
)

const (
	clientWriteWait  = 10 * time.Second
	clientSendBuffer = 64

	// channelBuffer sizes the notification channels. Consumers that fall
	// behind lose intermediate notifications, never the state itself.
	channelBuffer = 8
)

// Client is a handle on one document's live session.
type Client struct {
	docID   string
	options Options
	cache   DurabilityCache
	logger  logging.Logger

	conn *websocket.Conn
	doc  *crdt.Doc

	statusCh   chan Status
	changeCh   chan struct{}
	presenceCh chan types.PresenceEvent

	sendCh  chan []byte
	pumpCtx context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the given document on the given server and returns a
// live client. The returned client already holds the server's current
// document state.
func Dial(ctx context.Context, serverURL, docID string, opts ...Option) (*Client, error) {
	if err := validation.ValidateDocKey(docID); err != nil {
		return nil, err
	}

	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.UserID == "" {
		options.UserID = xid.New().String()
	}
	if options.Cache == nil {
		options.Cache = NoopCache{}
	}

	c := &Client{
		docID:      docID,
		options:    options,
		cache:      options.Cache,
		logger:     logging.New("client", logging.NewField("doc", docID)),
		statusCh:   make(chan Status, channelBuffer),
		changeCh:   make(chan struct{}, 1),
		presenceCh: make(chan types.PresenceEvent, channelBuffer),
		sendCh:     make(chan []byte, clientSendBuffer),
	}

	if err := c.loadFromCache(); err != nil {
		return nil, err
	}

	c.pushStatus(StatusConnecting)
	if err := c.connect(ctx, serverURL); err != nil {
		c.pushStatus(StatusDisconnected)
		return nil, err
	}
	c.pushStatus(StatusConnected)

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.group, pumpCtx = errgroup.WithContext(pumpCtx)
	c.pumpCtx = pumpCtx
	c.group.Go(func() error { return c.readPump(pumpCtx) })
	c.group.Go(func() error { return c.writePump(pumpCtx) })

	// Tell the other participants who just joined.
	if err := c.Publish(&types.Presence{
		UserID:      options.UserID,
		DisplayName: options.DisplayName,
		Color:       options.Color,
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) loadFromCache() error {
	cached, err := c.cache.Load(c.docID)
	if err != nil {
		return fmt.Errorf("load durability cache: %w", err)
	}
	if cached == nil {
		c.doc = crdt.NewDoc(c.options.UserID)
		return nil
	}

	doc, err := crdt.NewDocFromSnapshot(c.options.UserID, cached)
	if err != nil {
		return fmt.Errorf("decode cached snapshot: %w", err)
	}
	c.doc = doc
	return nil
}

func (c *Client) connect(ctx context.Context, serverURL string) error {
	endpoint := fmt.Sprintf(
		"%s/collab/v1/documents/%s?token=%s",
		strings.TrimSuffix(serverURL, "/"),
		c.docID,
		url.QueryEscape(c.options.Token),
	)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: status %d: %w", c.docID, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", c.docID, err)
	}
	c.conn = conn
	return nil
}

// readPump applies inbound frames until the socket drops or the client
// closes.
func (c *Client) readPump(ctx context.Context) error {
	defer c.pushStatus(StatusDisconnected)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		frameType, payload, err := types.DecodeFrame(frame)
		if err != nil {
			c.logger.Debugf("decode frame: %v", err)
			continue
		}

		switch frameType {
		case types.FrameUpdate:
			if err := c.doc.ApplyEncodedUpdate(payload); err != nil {
				c.logger.Warnf("apply remote update: %v", err)
				continue
			}
			c.notifyChange()
		case types.FramePresence:
			event := types.PresenceEvent{}
			if err := json.Unmarshal(payload, &event); err != nil {
				c.logger.Debugf("decode presence: %v", err)
				continue
			}
			c.pushPresence(event)
		default:
			c.logger.Debugf("unknown frame type 0x%02x", frameType)
		}
	}
}

// writePump is the only writer on the socket.
func (c *Client) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case frame := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (c *Client) send(frameType byte, payload []byte) error {
	if c.pumpCtx.Err() != nil {
		return ErrClientClosed
	}

	select {
	case c.sendCh <- types.EncodeFrame(frameType, payload):
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) publishUpdate(update *crdt.Update) error {
	data, err := update.Encode()
	if err != nil {
		return err
	}
	return c.send(types.FrameUpdate, data)
}

// InsertAt inserts text at the given rune index and publishes the edit.
func (c *Client) InsertAt(idx int, text string) error {
	update, err := c.doc.InsertAt(idx, text)
	if err != nil {
		return err
	}
	return c.publishUpdate(update)
}

// DeleteAt deletes n runes at the given rune index and publishes the edit.
func (c *Client) DeleteAt(idx, n int) error {
	update, err := c.doc.DeleteAt(idx, n)
	if err != nil {
		return err
	}
	return c.publishUpdate(update)
}

// SetMeta sets a key in the document's metadata region and publishes the
// change. Last writer wins across replicas.
func (c *Client) SetMeta(key, value string) error {
	return c.publishUpdate(c.doc.SetMeta(key, value))
}

// Publish sends the local awareness state to the other participants.
// Awareness is ephemeral: it is relayed, never persisted.
func (c *Client) Publish(presence *types.Presence) error {
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return c.send(types.FramePresence, payload)
}

// Text returns the current document text.
func (c *Client) Text() string {
	return c.doc.String()
}

// Meta returns the value of a metadata key.
func (c *Client) Meta(key string) (string, bool) {
	return c.doc.Meta(key)
}

// StatusCh returns the channel on which connection status changes are
// published. Notifications are pushed, never polled for.
func (c *Client) StatusCh() <-chan Status {
	return c.statusCh
}

// ChangeCh signals that remote updates changed the document. It is a
// level-triggered edge: coalesced, never lost.
func (c *Client) ChangeCh() <-chan struct{} {
	return c.changeCh
}

// PresenceCh returns the channel on which awareness events arrive.
func (c *Client) PresenceCh() <-chan types.PresenceEvent {
	return c.presenceCh
}

func (c *Client) pushStatus(status Status) {
	select {
	case c.statusCh <- status:
	default:
	}
}

func (c *Client) notifyChange() {
	select {
	case c.changeCh <- struct{}{}:
	default:
	}
}

func (c *Client) pushPresence(event types.PresenceEvent) {
	select {
	case c.presenceCh <- event:
	default:
	}
}

// Close releases the socket and all goroutines. It is idempotent and
// safe to call on every exit path; later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		// Unblock the read pump: closing the socket fails its pending read.
		_ = c.conn.Close()
		if err := c.group.Wait(); err != nil {
			c.logger.Debugf("pump exit: %v", err)
		}
		c.pushStatus(StatusDisconnected)

		snapshot, err := c.doc.Snapshot()
		if err == nil {
			err = c.cache.Save(c.docID, snapshot)
		}
		if err != nil {
			c.closeErr = fmt.Errorf("save durability cache: %w", err)
		}
	})
	return c.closeErr
}
