// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package relay

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blocknet/relayer/internal/logger"
)

// Hub tracks online WebSocket connections keyed by lowercased address
// and pushes delivery events to them. A connection is removed on close
// or on any write failure; there is no reconnect logic here, the client
// is expected to redial.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	online map[string]*pushConn

	writeTimeout time.Duration
}

// pushConn pairs a connection with the mutex serializing writes to it;
// gorilla/websocket allows at most one concurrent writer per connection,
// and concurrent deliveries to the same recipient would otherwise race.
type pushConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		online:       make(map[string]*pushConn),
		writeTimeout: 10 * time.Second,
	}
}

// Handler upgrades /ws/{address} requests and registers the connection
// until it closes.
func (h *Hub) Handler(address string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws: upgrade failed", logger.Error(err))
			return
		}

		key := strings.ToLower(address)
		pc := &pushConn{conn: conn}
		h.register(key, pc)
		defer h.unregister(key, pc)

		// Drain inbound frames (none are expected) until the client
		// disconnects, so the read loop notices a close promptly.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(address string, pc *pushConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[address] = pc
}

func (h *Hub) unregister(address string, pc *pushConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.online[address] == pc {
		delete(h.online, address)
	}
	pc.conn.Close()
}

// Push sends event to address's connection, if online. It is
// fire-and-forget: a send failure removes the connection but does not
// retry or propagate an error to the caller.
func (h *Hub) Push(address string, event interface{}) bool {
	key := strings.ToLower(address)

	h.mu.RLock()
	pc, ok := h.online[key]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	pc.writeMu.Lock()
	pc.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	err := pc.conn.WriteJSON(event)
	pc.writeMu.Unlock()
	if err != nil {
		h.unregister(key, pc)
		return false
	}
	return true
}

// ConnectionCount returns the number of currently online connections,
// used by the health checker.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.online)
}
