package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/scanning"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriodRatio = 0.9
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio)
	maxMessageSize  = 512
	broadcastBuffer = 1024
	// clientQueueLimit bounds the messages waiting for one client. With
	// progress coalesced a full 65535-port scan needs at most 2*65535+2.
	clientQueueLimit = 1 << 18
)

// WebSocketMessage is the envelope of every streamed message.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type outbound struct {
	kind    scanning.EventKind
	session string
	data    []byte
}

// client holds the messages not yet written to one connection. Only
// progress messages are ever merged; every other event is delivered.
type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	queue  []outbound
	closed bool
	wake   chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, wake: make(chan struct{}, 1)}
}

// push queues m. A progress message replaces a progress message of the same
// session still waiting at the tail, so a slow reader sees fewer but
// current progress counts. It returns false once the client is closed or
// its queue is full.
func (c *client) push(m outbound) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	n := len(c.queue)
	switch {
	case m.kind == scanning.EventProgress && n > 0 &&
		c.queue[n-1].kind == scanning.EventProgress && c.queue[n-1].session == m.session:
		c.queue[n-1] = m
	case n >= clientQueueLimit:
		c.mu.Unlock()
		return false
	default:
		c.queue = append(c.queue, m)
	}
	c.mu.Unlock()

	c.signal()
	return true
}

// take removes and returns everything queued.
func (c *client) take() ([]outbound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q, c.closed
}

func (c *client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

func (c *client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// EventHub fans scan session events out to websocket clients. Publishing
// blocks only on the hub's dispatch loop, never on a client connection.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	shutdown   chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// NewEventHub creates a hub and starts its dispatch goroutine.
func NewEventHub(logger *slog.Logger) *EventHub {
	h := &EventHub{
		logger: logger.With("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, broadcastBuffer),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

// SetOriginCheck replaces the upgrade origin check.
func (h *EventHub) SetOriginCheck(check func(*http.Request) bool) {
	h.upgrader.CheckOrigin = check
}

// Follow streams every event of s to connected clients. It is meant to be
// installed as a scanning.SessionHook and must be the session's only
// event consumer. The session's event buffer holds the whole scan, so
// waiting on the hub never stalls the workers.
func (h *EventHub) Follow(s *scanning.Session) {
	go func() {
		for ev := range s.Events() {
			if err := h.Publish(ev); err != nil {
				h.logger.Debug("Stopped streaming session", "session_id", s.ID, "kind", string(ev.Kind), "error", err)
				if h.closing() {
					return
				}
			}
		}
	}()
}

func (h *EventHub) closing() bool {
	select {
	case <-h.shutdown:
		return true
	default:
		return false
	}
}

// Publish queues ev for all clients. It waits for room in the dispatch
// queue and fails only once the hub is shut down.
func (h *EventHub) Publish(ev scanning.Event) error {
	data, err := json.Marshal(WebSocketMessage{
		Type:      string(ev.Kind),
		Timestamp: time.Now().UTC(),
		Data:      ev,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if h.closing() {
		return fmt.Errorf("hub closed")
	}

	select {
	case h.broadcast <- outbound{kind: ev.Kind, session: ev.SessionID, data: data}:
		return nil
	case <-h.shutdown:
		return fmt.Errorf("hub closed")
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := newClient(conn)
	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}
	h.logger.Info("WebSocket client connected", "request_id", requestID, "remote_addr", r.RemoteAddr)

	go h.writePump(c, requestID)
	h.readPump(c, requestID)
}

func (h *EventHub) run() {
	for {
		select {
		case <-h.shutdown:
			h.mutex.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mutex.Unlock()
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			h.mutex.Unlock()

		case c := <-h.unregister:
			h.mutex.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				c.close()
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for c := range h.clients {
				if !c.push(message) {
					h.logger.Warn("WebSocket client fell too far behind, disconnecting",
						"queued", clientQueueLimit)
					delete(h.clients, c)
					c.close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// readPump discards client messages and keeps the read deadline fresh
// until the connection closes.
func (h *EventHub) readPump(c *client, requestID string) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "request_id", requestID, "error", err)
			}
			return
		}
	}
}

func (h *EventHub) writePump(c *client, requestID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.wake:
			messages, closed := c.take()
			for _, m := range messages {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
					h.logger.Debug("Write failed, closing connection", "request_id", requestID, "error", err)
					return
				}
			}
			if closed {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects all clients and stops the hub.
func (h *EventHub) Shutdown() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}
