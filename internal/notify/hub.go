package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Subscriber identifies who is listening on a connection. Admins receive
// every order event, customers only events of their own orders.
type Subscriber struct {
	UserID uuid.UUID
	Admin  bool
}

func (s Subscriber) wants(event order.Event) bool {
	return s.Admin || event.UserID == s.UserID
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  Subscriber
	send chan []byte
}

// Hub pushes order events to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub accepts websocket handshakes from the given origins. An empty list
// accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and streams events for sub until the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sub Subscriber) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", sub.UserID).Msg("notify: websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, sub: sub, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Debug().Stringer("user_id", sub.UserID).Bool("admin", sub.Admin).Msg("notify: websocket client connected")

	go c.writePump()
	c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish never blocks. A client whose buffer is full is disconnected.
func (h *Hub) Publish(_ context.Context, event order.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", event.OrderID).Msg("notify: failed to encode websocket event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.sub.wants(event) {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Warn().Stringer("user_id", c.sub.UserID).Msg("notify: websocket client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump only drains control frames; clients never send data.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
