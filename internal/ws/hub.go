package ws

import (
	"sync"
)

// Client represents a single WebSocket connection with member context.
type Client struct {
	UserID uint
	Role   int
	Send   chan []byte
	Hub    *Hub // set by Register so Close() can unregister
	mu     sync.Mutex
	closed bool
}

func NewClient(userID uint, role int) *Client {
	return &Client{UserID: userID, Role: role, Send: make(chan []byte, 256)}
}

// Close unregisters the client and reports whether it was the member's last connection.
func (c *Client) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	if c.Hub != nil {
		return c.Hub.unregister(c)
	}
	return false
}

// Hub maintains the set of active clients and delivers payloads to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	// userID -> clients (one member can have multiple connections)
	byUser map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		byUser:  make(map[uint]map[*Client]struct{}),
	}
}

// Register adds the client and reports whether it is the member's first connection.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	h.clients[c] = struct{}{}
	first := len(h.byUser[c.UserID]) == 0
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
	return first
}

func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	m := h.byUser[c.UserID]
	if m == nil {
		return false
	}
	delete(m, c)
	if len(m) == 0 {
		delete(h.byUser, c.UserID)
		return true
	}
	return false
}

// Deliver writes data to every connection of the member. Slow clients whose
// buffer is full miss the payload.
func (h *Hub) Deliver(userID uint, data []byte) int {
	h.mu.RLock()
	m := h.byUser[userID]
	if m == nil {
		h.mu.RUnlock()
		return 0
	}
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	sent := 0
	for _, c := range clients {
		if c.trySend(data) {
			sent++
		}
	}
	return sent
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
