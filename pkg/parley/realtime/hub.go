// Package realtime relays JSON events to every connected WebSocket client.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Backplane shares broadcasts between server instances
type Backplane interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, deliver func(payload []byte)) error
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub owns the set of open sockets. Connections are added on upgrade and
// dropped when they close or a write to them fails.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	backplane Backplane
	upgrader  websocket.Upgrader
}

// NewHub creates an empty hub. A nil backplane keeps delivery local.
func NewHub(backplane Backplane) *Hub {
	return &Hub{
		clients:   make(map[*client]struct{}),
		backplane: backplane,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run delivers backplane traffic to local sockets until ctx is cancelled.
// Without a backplane it returns immediately.
func (h *Hub) Run(ctx context.Context) error {
	if h.backplane == nil {
		return nil
	}
	return h.backplane.Subscribe(ctx, h.deliver)
}

// Broadcast sends v, encoded as JSON, to every connected socket
func (h *Hub) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode broadcast")
		return
	}
	h.publish(payload)
}

// Count returns the number of open sockets
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every socket
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}

// ServeWS upgrades the request and relays every inbound JSON frame to all
// sockets
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	cl := &client{conn: conn}
	h.register(cl)
	defer h.unregister(cl)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("WebSocket closed unexpectedly")
			}
			return
		}
		if !json.Valid(payload) {
			continue
		}
		h.publish(payload)
	}
}

func (h *Hub) publish(payload []byte) {
	if h.backplane != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		err := h.backplane.Publish(ctx, payload)
		if err == nil {
			return
		}
		logrus.WithError(err).Warn("Backplane publish failed, delivering locally")
	}
	h.deliver(payload)
}

func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if err := c.write(payload); err != nil {
			h.unregister(c)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
