package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
	"github.com/egcoder/telegram-ai-bot/internal/pipeline"
)

const (
	progressBuffer = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// ProgressHub streams pipeline progress events to websocket clients. A
// client may subscribe to one identity with ?identity=<id>; otherwise it
// receives every event. Slow clients drop events rather than stall the
// pipeline.
type ProgressHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*progressClient]struct{}
	closed  bool
	log     *logging.Logger
}

type progressClient struct {
	conn     *websocket.Conn
	identity core.Identity
	send     chan []byte
	once     sync.Once
}

func (c *progressClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewProgressHub creates a hub. Origins are checked by the CORS layer and
// the bearer token, so every websocket origin is accepted.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*progressClient]struct{}),
		log:     logging.WithField("component", "progress"),
	}
}

// Report implements pipeline.ProgressReporter.
func (h *ProgressHub) Report(ev pipeline.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode progress event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.identity != "" && c.identity != ev.Identity {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.WithField("identity", c.identity).Debug("progress client too slow, event dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *ProgressHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		return
	}

	c := &progressClient{
		conn:     conn,
		identity: core.Identity(r.URL.Query().Get("identity")),
		send:     make(chan []byte, progressBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *ProgressHub) readPump(c *progressClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) writePump(c *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *ProgressHub) remove(c *progressClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client and rejects new ones.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
