// Package realtime pushes escrow list refresh hints over WebSocket so
// connected dapp sessions re-query instead of polling. Events are
// targeted: a client only hears about addresses it watches.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/metrics"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/validation"
)

// EventEscrowRefresh tells a client that escrows involving one of its
// watched addresses changed and the list should be re-fetched.
const EventEscrowRefresh = "escrow_refresh"

// MaxClients caps concurrent WebSocket connections.
const MaxClients = 10000

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Event is one push message.
type Event struct {
	Type      string    `json:"type"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// watchRequest is the only inbound message clients may send: it replaces
// the set of watched addresses.
type watchRequest struct {
	Addresses []string `json:"addresses"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	watched map[string]bool // lowercased addresses
}

func (c *client) watches(address string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watched[strings.ToLower(address)]
}

func (c *client) setWatched(addresses []string) {
	watched := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		a = validation.SanitizeAddress(a)
		if validation.IsValidAddress(a) {
			watched[a] = true
		}
	}
	c.mu.Lock()
	c.watched = watched
	c.mu.Unlock()
}

// Hub fans refresh events out to connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
}

// NewHub creates a hub. Call Run before accepting connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop; it exits when ctx is cancelled, closing
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("realtime client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("realtime client disconnected", "total", n)

		case event := <-h.broadcast:
			payload, _ := json.Marshal(event)
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				if event.Address != "" && !c.watches(event.Address) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						close(c.send)
						delete(h.clients, c)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// RefreshEscrowList queues one refresh event per participant address.
// Fire-and-forget: if the queue is full the event is dropped, clients
// will catch up on their next poll.
func (h *Hub) RefreshEscrowList(addresses ...string) {
	now := time.Now()
	for _, addr := range addresses {
		event := &Event{Type: EventEscrowRefresh, Address: addr, Timestamp: now}
		select {
		case h.broadcast <- event:
		default:
			h.logger.Warn("realtime queue full, dropping refresh", "address", addr)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades GET /v1/ws. The optional address query
// parameter seeds the watch set; clients can replace it later by sending
// a watch message.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= MaxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 64),
		watched: make(map[string]bool),
	}
	if addr := r.URL.Query().Get("address"); addr != "" {
		c.setWatched([]string{addr})
	}

	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(32 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var req watchRequest
		if err := json.Unmarshal(message, &req); err == nil && req.Addresses != nil {
			c.setWatched(req.Addresses)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
