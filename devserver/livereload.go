/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package devserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Message is sent to live-reload clients.
type Message struct {
	// Type is "hello" on connect and "reload" after a rebuild.
	Type  string `json:"type"`
	Group string `json:"group,omitempty"`
	Build string `json:"build,omitempty"`
	// CSS asks the client to refresh style sheets in place instead of
	// reloading the page.
	CSS bool `json:"css,omitempty"`
}

type client struct {
	id   int
	ch   chan Message
	done chan struct{}
}

// Hub tracks connected live-reload clients.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	clients   map[int]*client
	closed    bool
	lastBuild string
	metrics   *metrics
	log       *slog.Logger
}

func newHub(m *metrics, log *slog.Logger) *Hub {
	return &Hub{clients: map[int]*client{}, metrics: m, log: log}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams messages
// until the client goes away or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("livereload upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c, build, ok := h.register()
	if !ok {
		// Shutdown ran while the connection was upgrading.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		return
	}
	h.metrics.connections.Inc()
	defer h.remove(c.id)

	// The reader only notices disconnects and keeps pongs flowing.
	readerDone := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, Message{Type: "hello", Build: build}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case msg := <-c.ch:
			if err := h.write(conn, msg); err != nil {
				h.log.Debug("livereload write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// register adds a client unless the hub has shut down, and returns the
// last build id for its hello message.
func (h *Hub) register() (*client, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, "", false
	}
	c := &client{id: h.nextID, ch: make(chan Message, 8), done: make(chan struct{})}
	h.nextID++
	h.clients[c.id] = c
	h.metrics.clients.Set(float64(len(h.clients)))
	return c, h.lastBuild, true
}

func (h *Hub) write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.metrics.disconnections.Inc()
		h.metrics.clients.Set(float64(len(h.clients)))
	}
}

// Broadcast sends msg to every client. Clients whose queue is full are
// dropped; their browser reconnects.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	if msg.Build != "" {
		h.lastBuild = msg.Build
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range snapshot {
		select {
		case c.ch <- msg:
			sent++
		default:
			h.metrics.dropped.Inc()
			h.remove(c.id)
		}
	}
	h.metrics.broadcasts.Inc()
	h.log.Debug("livereload broadcast", "group", msg.Group, "build", msg.Build, "clients", len(snapshot), "sent", sent)
	return sent
}

// Shutdown disconnects every client and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.metrics.clients.Set(0)
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// clientScript is served at ScriptPath and injected into every HTML page.
const clientScript = `(() => {
  if (window.__ASSETPIPE_LR__) return;
  window.__ASSETPIPE_LR__ = true;
  const url = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '%s';
  function refreshStyles(build) {
    for (const link of document.querySelectorAll('link[rel="stylesheet"]')) {
      const href = new URL(link.href, location.href);
      if (href.host !== location.host) continue;
      href.searchParams.set('assetpipe', build);
      link.href = href.toString();
    }
  }
  function connect() {
    const ws = new WebSocket(url);
    ws.onmessage = (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch (_) { return; }
      if (msg.type !== 'reload') return;
      if (msg.css) { refreshStyles(msg.build); return; }
      console.log('[assetpipe] ' + msg.group + ' rebuilt, reloading');
      location.reload();
    };
    ws.onclose = () => setTimeout(connect, 1000);
  }
  connect();
})();
`
