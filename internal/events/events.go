// Package events defines the committed domain events the fanout router
// delivers, and the wire payloads pushed to live sessions over the
// transport.
package events

import "time"

// Type identifies a committed domain event.
type Type string

const (
	MessageSent     Type = "MessageSent"
	MessageEdited   Type = "MessageEdited"
	MessageDeleted  Type = "MessageDeleted"
	ReactionToggled Type = "ReactionToggled"
	ChatRenamed     Type = "ChatRenamed"
	MemberAdded     Type = "MemberAdded"
	MemberRemoved   Type = "MemberRemoved"
	GroupCreated    Type = "GroupCreated"
	StatusChanged   Type = "StatusChanged"
)

// Wire event names, as emitted to clients.
const (
	EventMessage              = "message"
	EventMessageEdited        = "messageEdited"
	EventMessageDeleted       = "messageDeleted"
	EventMessageReacted       = "messageReacted"
	EventGroupChatRenamed     = "groupChatRenamed"
	EventUserAddedToGroup     = "userAddedToGroup"
	EventUserRemovedFromGroup = "userRemovedFromGroup"
	EventNewGroupChat         = "newGroupChat"
	EventUserStatusUpdated    = "userStatusUpdated"
	EventNotification         = "notification"
)

// Event is a committed domain event handed to the fanout router.
//
// Chat-scoped events carry a ChatID and the full member list so the router
// can queue notifications for members who are not live in the room.
// User-scoped events (StatusChanged, and GroupCreated toward each invited
// member) carry TargetUserIDs instead.
type Event struct {
	Type Type

	// ActorID is the user who caused the event. The actor never receives a
	// notification for their own action.
	ActorID uint

	// ChatID and MemberIDs are set for chat-scoped events.
	ChatID    uint
	MemberIDs []uint

	// TargetUserIDs are set for user-scoped events.
	TargetUserIDs []uint

	// Name and Payload are what live sessions receive verbatim.
	Name    string
	Payload any

	// Summary is the short human-readable text carried by queued
	// notifications.
	Summary string
}

// MessagePayload is the wire payload for the "message" event.
type MessagePayload struct {
	ID        uint      `json:"id"`
	ChatID    uint      `json:"chatId"`
	SenderID  uint      `json:"senderId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageEditedPayload is the wire payload for the "messageEdited" event.
type MessageEditedPayload struct {
	ID   uint   `json:"id"`
	Body string `json:"body"`
}

// MessageDeletedPayload is the wire payload for the "messageDeleted" event.
type MessageDeletedPayload struct {
	ID uint `json:"id"`
}

// ReactionPayload is a single reaction within a MessageReactedPayload.
type ReactionPayload struct {
	UserID uint   `json:"userId"`
	Type   string `json:"type"`
}

// MessageReactedPayload is the wire payload for the "messageReacted" event.
// It carries the full reaction list after the toggle.
type MessageReactedPayload struct {
	MessageID uint              `json:"messageId"`
	Reactions []ReactionPayload `json:"reactions"`
}

// ChatRenamedPayload is the wire payload for the "groupChatRenamed" event.
type ChatRenamedPayload struct {
	ChatID uint   `json:"chatId"`
	Name   string `json:"name"`
}

// MembershipPayload is the wire payload for the "userAddedToGroup" and
// "userRemovedFromGroup" events.
type MembershipPayload struct {
	ChatID uint `json:"chatId"`
	UserID uint `json:"userId"`
}

// GroupCreatedPayload is the wire payload for the "newGroupChat" event sent
// to each invited member.
type GroupCreatedPayload struct {
	ChatID    uint   `json:"chatId"`
	Name      string `json:"name"`
	AdminID   uint   `json:"adminId"`
	MemberIDs []uint `json:"memberIds"`
}

// StatusPayload is the wire payload for the "userStatusUpdated" event.
type StatusPayload struct {
	UserID uint   `json:"userId"`
	Status string `json:"status"`
}

// Notification is the payload queued for chat members who are neither the
// actor nor live in the chat's room. It is what the notifications topic
// carries and what an out-of-band channel (push, badge count) consumes.
type Notification struct {
	RecipientID uint      `json:"recipientId"`
	ChatID      uint      `json:"chatId"`
	EventType   Type      `json:"eventType"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"createdAt"`
}
