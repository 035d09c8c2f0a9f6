package models

import (
	"fmt"
	"time"
)

// ChatKind distinguishes one-to-one chats from admin-managed group chats.
type ChatKind string

const (
	DirectChat ChatKind = "direct"
	GroupChat  ChatKind = "group"
)

// Chat represents a conversation between two or more users.
//
// A direct chat has exactly two members and at most one such chat exists per
// unordered user pair; the PairKey column carries the canonical pair encoding
// and its unique index is what makes concurrent ensure calls collapse onto a
// single row. Group chats have a display name and an optional admin, who is
// always a member while set.
type Chat struct {
	BaseModel
	Kind ChatKind `gorm:"type:varchar(20);not null;index" json:"kind"`
	Name string   `gorm:"type:varchar(100)" json:"name,omitempty"`

	// PairKey is set only for direct chats: "min:max" of the two member IDs.
	PairKey *string `gorm:"type:varchar(50);uniqueIndex" json:"-"`

	AdminID         *uint `gorm:"index" json:"adminId,omitempty"`
	LatestMessageID *uint `gorm:"index" json:"latestMessageId,omitempty"`

	Members []ChatMember `gorm:"foreignKey:ChatID" json:"members,omitempty"`
}

// TableName specifies the table name for the Chat model.
func (Chat) TableName() string {
	return "chats"
}

// DirectPairKey returns the canonical pair encoding for a direct chat
// between the two users, independent of argument order.
func DirectPairKey(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// MemberIDs returns the member user IDs in insertion order.
func (c *Chat) MemberIDs() []uint {
	ids := make([]uint, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember reports whether userID is a member of the chat.
func (c *Chat) HasMember(userID uint) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID is the chat's group admin.
func (c *Chat) IsAdmin(userID uint) bool {
	return c.AdminID != nil && *c.AdminID == userID
}

// ChatMember links a user to a chat. Position preserves insertion order so
// membership can be rendered deterministically even though it is an
// unordered set for matching purposes. Alias is the display name the chat
// shows for this member; for direct chats the peer's alias doubles as the
// derived chat title.
type ChatMember struct {
	BaseModel
	ChatID   uint      `gorm:"not null;uniqueIndex:idx_chat_member" json:"chatId"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_chat_member" json:"userId"`
	Position int       `gorm:"not null" json:"position"`
	Alias    string    `gorm:"type:varchar(100)" json:"alias,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// TableName specifies the table name for the ChatMember model.
func (ChatMember) TableName() string {
	return "chat_members"
}
