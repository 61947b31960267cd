package status

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendQueueLimit = 256
)

// EventMessage is the JSON form of a relay event sent on /events.
type EventMessage struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Link    string    `json:"link,omitempty"`
	From    int       `json:"from"`
	To      int       `json:"to"`
	Size    int       `json:"size,omitempty"`
	Mutated bool      `json:"mutated,omitempty"`
	DelayMS float64   `json:"delay_ms,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// NewEventMessage converts ev to its JSON form.
func NewEventMessage(ev peermanagement.Event) EventMessage {
	m := EventMessage{
		Type:    ev.Type.String(),
		Time:    ev.Time,
		Link:    ev.Link,
		From:    ev.From,
		To:      ev.To,
		Size:    ev.Size,
		Mutated: ev.Mutated,
		DelayMS: float64(ev.Delay) / float64(time.Millisecond),
		Reason:  ev.Reason,
	}
	if ev.Error != nil {
		m.Error = ev.Error.Error()
	}
	return m
}

// client is one /events subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub fans relay events out to websocket subscribers. A subscriber that
// cannot keep up loses events; it never slows the relay down.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish sends ev to every subscriber.
func (h *Hub) Publish(ev peermanagement.Event) {
	data, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		h.logger.Warn("Failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendQueueLimit),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Event subscriber error", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop delivers queued events and keeps the connection alive.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("Event send failed", zap.Error(err))
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
