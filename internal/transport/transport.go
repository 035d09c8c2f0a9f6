// Package transport defines the capability the core uses to push events to
// connected clients. It is injected into every component that emits; nothing
// in the core reaches for a shared gateway.
package transport

import "context"

// Transport pushes named events to live socket sessions, either one session
// at a time or to every session joined to a room. Rooms are keyed by chat
// ID. Delivery is best-effort: a failed or missing destination is reported
// via the error return and must not affect other destinations.
type Transport interface {
	JoinRoom(ctx context.Context, sessionID, roomID string) error
	LeaveRoom(ctx context.Context, sessionID, roomID string) error
	EmitToRoom(ctx context.Context, roomID, eventName string, payload any) error
	EmitToSession(ctx context.Context, sessionID, eventName string, payload any) error
}
