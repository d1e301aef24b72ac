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

package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redline-team/redline/api/types"
)

const (
	// writeWait bounds a single message write.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent before the read side
	// gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames.
	maxMessageSize = 1 << 20

	// sendBufferSize is the per-connection outbound queue depth.
	sendBufferSize = 256
)

var (
	// errConnClosed is returned when sending on a torn-down connection.
	errConnClosed = errors.New("connection closed")

	// errSendBufferFull is returned when the peer cannot keep up with the
	// broadcast rate. The connection is dropped rather than letting one
	// slow reader stall the session.
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn adapts one WebSocket to the session fanout. All writes funnel
// through a single pump goroutine since the underlying connection permits
// one concurrent writer.
type wsConn struct {
	ws     *websocket.Conn
	sendCh chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		ws:     ws,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

// SendUpdate queues an encoded document update for delivery.
func (c *wsConn) SendUpdate(data []byte) error {
	return c.enqueue(types.EncodeFrame(types.FrameUpdate, data))
}

// SendPresence queues an awareness event for delivery.
func (c *wsConn) SendPresence(event types.PresenceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.enqueue(types.EncodeFrame(types.FramePresence, payload))
}

func (c *wsConn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	case c.sendCh <- frame:
		return nil
	default:
		c.close()
		return errSendBufferFull
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// close tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
