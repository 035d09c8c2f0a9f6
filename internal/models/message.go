package models

// Message represents a chat message. Messages within a chat are totally
// ordered by CreatedAt with the auto-incrementing ID breaking ties, so the
// ID alone is a valid paging cursor. Deletion is hard: the row and its
// reactions are removed, no tombstone remains.
type Message struct {
	BaseModel
	ChatID   uint   `gorm:"index;not null" json:"chatId"`
	SenderID uint   `gorm:"index;not null" json:"senderId"`
	Body     string `gorm:"type:text" json:"body"`

	Reactions []Reaction `gorm:"foreignKey:MessageID" json:"reactions"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// HasReaction reports whether the (userID, type) pair is present.
func (m *Message) HasReaction(userID uint, reactionType string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Type == reactionType {
			return true
		}
	}
	return false
}

// Reaction is a single (user, type) reaction on a message. The pair is
// unique within a message; toggling the same pair again removes it.
type Reaction struct {
	BaseModel
	MessageID uint   `gorm:"not null;uniqueIndex:idx_reaction_triple" json:"messageId"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_reaction_triple" json:"userId"`
	Type      string `gorm:"type:varchar(50);not null;uniqueIndex:idx_reaction_triple" json:"type"`
}

// TableName specifies the table name for the Reaction model.
func (Reaction) TableName() string {
	return "reactions"
}
