// Package websocket is the gorilla/websocket implementation of the
// transport capability: it keeps the registry of connected clients, the
// room membership per client, and fans event frames out to rooms and
// individual sessions.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// eventFrame is the envelope every pushed event is wrapped in.
type eventFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub maintains the set of active clients keyed by session ID and the
// room membership used for chat-scoped broadcasts. It implements
// transport.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds a connected client to the registry.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.SessionID] = client
}

// Unregister removes the client from the registry and every room, and
// closes its send channel. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client.SessionID)
}

func (h *Hub) removeLocked(sessionID string) {
	client, ok := h.clients[sessionID]
	if !ok {
		return
	}
	delete(h.clients, sessionID)
	for roomID, members := range h.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	close(client.send)
}

// JoinRoom adds the session to a room.
func (h *Hub) JoinRoom(ctx context.Context, sessionID, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[sessionID]
	if !ok {
		return fmt.Errorf("websocket: unknown session %s", sessionID)
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[sessionID] = client
	return nil
}

// LeaveRoom removes the session from a room. Leaving a room the session is
// not in is not an error.
func (h *Hub) LeaveRoom(ctx context.Context, sessionID, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return nil
}

// EmitToRoom pushes one event frame to every session in the room. Each
// session receives the frame at most once; a session with a full send
// buffer is dropped rather than allowed to block the broadcast.
func (h *Hub) EmitToRoom(ctx context.Context, roomID, eventName string, payload any) error {
	frame, err := json.Marshal(eventFrame{Event: eventName, Data: payload})
	if err != nil {
		return fmt.Errorf("websocket: marshal %s frame: %w", eventName, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, client := range h.rooms[roomID] {
		select {
		case client.send <- frame:
		default:
			log.Printf("websocket: send buffer full for session %s, dropping client", sessionID)
			h.removeLocked(sessionID)
		}
	}
	return nil
}

// EmitToSession pushes one event frame to a single session.
func (h *Hub) EmitToSession(ctx context.Context, sessionID, eventName string, payload any) error {
	frame, err := json.Marshal(eventFrame{Event: eventName, Data: payload})
	if err != nil {
		return fmt.Errorf("websocket: marshal %s frame: %w", eventName, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[sessionID]
	if !ok {
		return fmt.Errorf("websocket: unknown session %s", sessionID)
	}
	select {
	case client.send <- frame:
		return nil
	default:
		log.Printf("websocket: send buffer full for session %s, dropping client", sessionID)
		h.removeLocked(sessionID)
		return fmt.Errorf("websocket: session %s send buffer full", sessionID)
	}
}
