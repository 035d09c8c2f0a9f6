package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"relaychat/internal/models"
)

// ChatRepository defines the interface for chat and membership data
// operations.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id uint) (*models.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB uint) (*models.Chat, error)
	GetChatsForUser(ctx context.Context, userID uint) ([]*models.Chat, error)
	UpdateName(ctx context.Context, chatID uint, name string) error
	ClearAdmin(ctx context.Context, chatID uint) error
	SetLatestMessage(ctx context.Context, chatID uint, messageID *uint) error
	AddMember(ctx context.Context, member *models.ChatMember) error
	RemoveMember(ctx context.Context, chatID, userID uint) error
	NextMemberPosition(ctx context.Context, chatID uint) (int, error)
	Delete(ctx context.Context, chatID uint) error
}

type gormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a new GORM-based ChatRepository.
func NewGormChatRepository(db *gorm.DB) ChatRepository {
	return &gormChatRepository{db: db}
}

// Create creates a chat together with any members already attached to it.
func (r *gormChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// GetByID retrieves a chat with its members in insertion order.
func (r *gormChatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&chat, id).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindDirectChat returns the direct chat for the unordered user pair, or
// (nil, nil) when none exists.
func (r *gormChatRepository) FindDirectChat(ctx context.Context, userA, userB uint) (*models.Chat, error) {
	pairKey := models.DirectPairKey(userA, userB)
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("pair_key = ?", pairKey).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

// GetChatsForUser retrieves every chat the user is a member of, most
// recently updated first.
func (r *gormChatRepository) GetChatsForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	var chatIDs []uint
	err := r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &chatIDs).Error
	if err != nil {
		return nil, err
	}
	if len(chatIDs) == 0 {
		return []*models.Chat{}, nil
	}

	var chats []*models.Chat
	err = r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id IN ?", chatIDs).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// UpdateName updates the display name of a chat.
func (r *gormChatRepository) UpdateName(ctx context.Context, chatID uint, name string) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).
		Update("name", name).Error
}

// ClearAdmin unsets the group admin, used when the admin leaves the group.
func (r *gormChatRepository) ClearAdmin(ctx context.Context, chatID uint) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).
		Update("admin_id", nil).Error
}

// SetLatestMessage updates the latest-message pointer. Last write wins.
func (r *gormChatRepository) SetLatestMessage(ctx context.Context, chatID uint, messageID *uint) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).
		Update("latest_message_id", messageID).Error
}

// AddMember inserts a membership row.
func (r *gormChatRepository) AddMember(ctx context.Context, member *models.ChatMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(member).Error
}

// RemoveMember deletes a membership row. Removing a non-member is not an
// error.
func (r *gormChatRepository) RemoveMember(ctx context.Context, chatID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.ChatMember{}).Error
}

// Delete removes a chat together with its membership rows, messages and
// reactions. Used when the last member of a group leaves.
func (r *gormChatRepository) Delete(ctx context.Context, chatID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var messageIDs []uint
		if err := tx.Model(&models.Message{}).
			Where("chat_id = ?", chatID).
			Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		if len(messageIDs) > 0 {
			if err := tx.Where("message_id IN ?", messageIDs).
				Delete(&models.Reaction{}).Error; err != nil {
				return err
			}
			if err := tx.Where("chat_id = ?", chatID).
				Delete(&models.Message{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("chat_id = ?", chatID).
			Delete(&models.ChatMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Chat{}, chatID).Error
	})
}

// NextMemberPosition returns the next insertion-order position for the chat.
func (r *gormChatRepository) NextMemberPosition(ctx context.Context, chatID uint) (int, error) {
	var maxPos *int
	err := r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, err
	}
	if maxPos == nil {
		return 0, nil
	}
	return *maxPos + 1, nil
}
