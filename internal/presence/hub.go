// Package presence tracks which users are connected, which socket sessions
// they hold, and which chat rooms each session currently observes.
//
// Sessions are ephemeral: they exist only for the lifetime of a connection
// and hold a weak reference to the user by ID. A user is online iff at least
// one of their sessions exists.
package presence

import (
	"context"
	"log"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"relaychat/internal/transport"
)

// StatusSink receives the offline->online and online->offline transitions.
// Each transition is delivered exactly once regardless of how many sessions
// a user opens or closes, and a user's transitions arrive in the order they
// happened.
type StatusSink interface {
	StatusChanged(ctx context.Context, userID uint, online bool)
}

// ChatRoomID returns the transport room identifier for a chat.
func ChatRoomID(chatID uint) string {
	return "chat:" + strconv.FormatUint(uint64(chatID), 10)
}

type session struct {
	id     string
	userID uint
	rooms  map[string]struct{}
}

type userState struct {
	mu       sync.Mutex
	sessions map[string]struct{}
}

// Hub owns the live session registry. The registry maps are guarded by a
// single RWMutex; online/offline transitions are decided under a per-user
// lock so concurrent connects and disconnects for the same user serialize
// without blocking unrelated users.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	users    map[uint]*userState

	transport transport.Transport
	sink      StatusSink
}

// NewHub creates a presence hub that registers rooms on the given transport
// and reports status transitions to sink.
func NewHub(tr transport.Transport, sink StatusSink) *Hub {
	return &Hub{
		sessions:  make(map[string]*session),
		users:     make(map[uint]*userState),
		transport: tr,
		sink:      sink,
	}
}

// SetSink installs the status sink. A nil sink may be passed to NewHub and
// replaced here before the first Connect, which lets the sink's own
// dependencies observe the hub.
func (h *Hub) SetSink(sink StatusSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

// Connect registers a new session for the user and returns its ID. If this
// is the user's first active session the user transitions to online and the
// sink is notified once.
func (h *Hub) Connect(ctx context.Context, userID uint) string {
	sessionID := uuid.NewString()

	h.mu.Lock()
	h.sessions[sessionID] = &session{
		id:     sessionID,
		userID: userID,
		rooms:  make(map[string]struct{}),
	}
	state, ok := h.users[userID]
	if !ok {
		state = &userState{sessions: make(map[string]struct{})}
		h.users[userID] = state
	}
	sink := h.sink
	h.mu.Unlock()

	// The sink runs under the per-user lock so a user's transitions are
	// delivered in the order they were decided; the sink must not call back
	// into IsOnline for the same user.
	state.mu.Lock()
	first := len(state.sessions) == 0
	state.sessions[sessionID] = struct{}{}
	if first && sink != nil {
		sink.StatusChanged(ctx, userID, true)
	}
	state.mu.Unlock()

	return sessionID
}

// Disconnect removes the session, leaves every room it had joined and, if
// it was the user's last session, transitions the user to offline. It is
// the cleanup path for both graceful closes and abrupt connection drops,
// and is safe to call more than once for the same session.
func (h *Hub) Disconnect(ctx context.Context, sessionID string) {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	state := h.users[sess.userID]
	sink := h.sink
	h.mu.Unlock()

	for roomID := range sess.rooms {
		if err := h.transport.LeaveRoom(ctx, sessionID, roomID); err != nil {
			log.Printf("presence: leave room %s for session %s: %v", roomID, sessionID, err)
		}
	}

	if state == nil {
		return
	}
	state.mu.Lock()
	delete(state.sessions, sessionID)
	last := len(state.sessions) == 0
	if last && sink != nil {
		sink.StatusChanged(ctx, sess.userID, false)
	}
	state.mu.Unlock()
}

// JoinRoom records that the session observes the chat's room and registers
// it on the transport. Authorization (chat membership of the session's
// user) must have been enforced by the caller.
func (h *Hub) JoinRoom(ctx context.Context, sessionID string, chatID uint) error {
	roomID := ChatRoomID(chatID)

	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		sess.rooms[roomID] = struct{}{}
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return h.transport.JoinRoom(ctx, sessionID, roomID)
}

// LeaveRoom removes the session from the chat's room.
func (h *Hub) LeaveRoom(ctx context.Context, sessionID string, chatID uint) error {
	roomID := ChatRoomID(chatID)

	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		delete(sess.rooms, roomID)
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return h.transport.LeaveRoom(ctx, sessionID, roomID)
}

// LeaveRoomForUser evicts every session of the user from the chat's room.
// Membership revocation goes through here so an ex-member stops receiving
// room pushes immediately instead of at their next disconnect.
func (h *Hub) LeaveRoomForUser(ctx context.Context, chatID, userID uint) {
	roomID := ChatRoomID(chatID)

	h.mu.Lock()
	var evicted []string
	for id, sess := range h.sessions {
		if sess.userID != userID {
			continue
		}
		if _, ok := sess.rooms[roomID]; !ok {
			continue
		}
		delete(sess.rooms, roomID)
		evicted = append(evicted, id)
	}
	h.mu.Unlock()

	for _, id := range evicted {
		if err := h.transport.LeaveRoom(ctx, id, roomID); err != nil {
			log.Printf("presence: evict session %s from room %s: %v", id, roomID, err)
		}
	}
}

// LiveSessionsFor returns the IDs of every session currently joined to the
// chat's room.
func (h *Hub) LiveSessionsFor(chatID uint) []string {
	roomID := ChatRoomID(chatID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, sess := range h.sessions {
		if _, ok := sess.rooms[roomID]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// LiveUserIDsInRoom returns the set of user IDs that have at least one
// session joined to the chat's room. The fanout router uses it to decide
// which chat members get a queued notification instead of a live push.
func (h *Hub) LiveUserIDsInRoom(chatID uint) map[uint]bool {
	roomID := ChatRoomID(chatID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[uint]bool)
	for _, sess := range h.sessions {
		if _, ok := sess.rooms[roomID]; ok {
			users[sess.userID] = true
		}
	}
	return users
}

// SessionsForUser returns the IDs of every live session of the user.
func (h *Hub) SessionsForUser(userID uint) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, sess := range h.sessions {
		if sess.userID == userID {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsOnline reports whether the user has at least one live session.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	state, ok := h.users[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.sessions) > 0
}
