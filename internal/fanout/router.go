// Package fanout routes committed domain events to their destinations:
// live pushes to every session observing the affected chat room, direct
// pushes to a target user's sessions, and queued notifications for chat
// members who are not live in the room.
package fanout

import (
	"context"
	"log"
	"time"

	"relaychat/internal/events"
	"relaychat/internal/presence"
	"relaychat/internal/transport"
)

// RoomPresence is the slice of the presence hub the router consults.
type RoomPresence interface {
	LiveSessionsFor(chatID uint) []string
	LiveUserIDsInRoom(chatID uint) map[uint]bool
	SessionsForUser(userID uint) []string
	LeaveRoomForUser(ctx context.Context, chatID, userID uint)
}

// NotificationQueue receives the out-of-band notifications for recipients
// who miss the live push.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n events.Notification) error
}

// Router delivers committed events. Delivery is best-effort and at-most-once
// per live session: a failure toward one destination is logged and never
// aborts delivery to the others, and nothing here can roll back the commit
// that produced the event. A session that is disconnected simply misses the
// event and re-syncs through message paging on reconnect.
type Router struct {
	presence  RoomPresence
	transport transport.Transport
	queue     NotificationQueue
}

// NewRouter creates a fanout router.
func NewRouter(p RoomPresence, tr transport.Transport, queue NotificationQueue) *Router {
	return &Router{presence: p, transport: tr, queue: queue}
}

// Dispatch routes one committed event.
//
// Chat-scoped events (ChatID set) are emitted to the chat's room, and every
// chat member who is neither the actor nor live in that room gets a queued
// notification. User-scoped events (TargetUserIDs set) are emitted to each
// live session of every target user. An event may be both, e.g. a
// membership change that is pushed to the room and to the affected user.
func (r *Router) Dispatch(ctx context.Context, ev events.Event) {
	// A membership revocation evicts the removed users' sessions from the
	// room before the room emit, so each of them receives only the targeted
	// copy and no room pushes for a chat they no longer belong to.
	if ev.Type == events.MemberRemoved && ev.ChatID != 0 {
		for _, userID := range ev.TargetUserIDs {
			r.presence.LeaveRoomForUser(ctx, ev.ChatID, userID)
		}
	}
	if ev.ChatID != 0 {
		r.dispatchToRoom(ctx, ev)
	}
	for _, userID := range ev.TargetUserIDs {
		r.dispatchToUser(ctx, userID, ev)
	}
}

func (r *Router) dispatchToRoom(ctx context.Context, ev events.Event) {
	roomID := presence.ChatRoomID(ev.ChatID)
	if err := r.transport.EmitToRoom(ctx, roomID, ev.Name, ev.Payload); err != nil {
		log.Printf("fanout: emit %s to room %s: %v", ev.Name, roomID, err)
	}

	if r.queue == nil || len(ev.MemberIDs) == 0 {
		return
	}
	liveUsers := r.presence.LiveUserIDsInRoom(ev.ChatID)
	for _, memberID := range ev.MemberIDs {
		if memberID == ev.ActorID || liveUsers[memberID] {
			continue
		}
		n := events.Notification{
			RecipientID: memberID,
			ChatID:      ev.ChatID,
			EventType:   ev.Type,
			Summary:     ev.Summary,
			CreatedAt:   time.Now(),
		}
		if err := r.queue.Enqueue(ctx, n); err != nil {
			log.Printf("fanout: queue notification for user %d: %v", memberID, err)
		}
	}
}

func (r *Router) dispatchToUser(ctx context.Context, userID uint, ev events.Event) {
	for _, sessionID := range r.presence.SessionsForUser(userID) {
		if err := r.transport.EmitToSession(ctx, sessionID, ev.Name, ev.Payload); err != nil {
			log.Printf("fanout: emit %s to session %s: %v", ev.Name, sessionID, err)
		}
	}
}
