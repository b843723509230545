package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session rooms: session_id -> connected clients, plus a
// user_id -> clients index for addressed delivery (signaling, quiz responses).
// Membership is ephemeral; it never survives a process restart. Delivery is
// best-effort: a slow or dead receiver is skipped, never waited on.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[string]*Client
	users  map[uuid.UUID]map[string]*Client
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		users:  make(map[uuid.UUID]map[string]*Client),
		logger: logger,
	}
}

// Register adds a client to its session room and to the user index.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.SessionID] == nil {
		h.rooms[c.SessionID] = make(map[string]*Client)
	}
	h.rooms[c.SessionID][c.ID] = c
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()

	h.logger.Debug("client joined session",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()),
		zap.String("user_id", c.UserID.String()),
	)
}

// Unregister removes a client from its room and the user index. Safe to call
// more than once for the same client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.SessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.SessionID)
		}
	}
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()

	h.logger.Debug("client left session",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()),
	)
}

// BroadcastToSession sends an event to every client currently in the room.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(msg)
	}
}

// SendToUser sends an event to every live connection of one participant,
// typically zero or one.
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(msg)
	}
}

// AudienceCount returns the number of connected clients in a session room.
func (h *Hub) AudienceCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
