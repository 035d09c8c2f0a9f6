package storage

import (
	"context"

	"gorm.io/gorm"

	"relaychat/internal/models"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	UpdateBody(ctx context.Context, id uint, body string) error
	Delete(ctx context.Context, id uint) error
	CountByChatID(ctx context.Context, chatID uint) (int64, error)
	// GetPageByChatID returns up to limit messages of the chat, newest
	// first. beforeID of zero starts from the newest message; otherwise only
	// messages with ID < beforeID are returned, so the smallest ID of a page
	// is the cursor for the next one.
	GetPageByChatID(ctx context.Context, chatID uint, beforeID uint, limit int) ([]*models.Message, error)
	AddReaction(ctx context.Context, reaction *models.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID uint, reactionType string) error
	GetReactions(ctx context.Context, messageID uint) ([]models.Reaction, error)
}

// gormMessageRepository implements MessageRepository using GORM.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// Create creates a new message record.
func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByID retrieves a message with its reactions in insertion order.
func (r *gormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// UpdateBody replaces the message body.
func (r *gormMessageRepository) UpdateBody(ctx context.Context, id uint, body string) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).
		Update("body", body).Error
}

// Delete hard-deletes the message and its reactions.
func (r *gormMessageRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Where("message_id = ?", id).
		Delete(&models.Reaction{}).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

// CountByChatID returns the number of messages in the chat.
func (r *gormMessageRepository) CountByChatID(ctx context.Context, chatID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error
	return count, err
}

// GetPageByChatID retrieves one page of messages, newest first.
func (r *gormMessageRepository) GetPageByChatID(ctx context.Context, chatID uint, beforeID uint, limit int) ([]*models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC")
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*models.Message
	err := query.
		Preload("Reactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddReaction inserts a reaction row.
func (r *gormMessageRepository) AddReaction(ctx context.Context, reaction *models.Reaction) error {
	return r.db.WithContext(ctx).Create(reaction).Error
}

// RemoveReaction deletes the (messageID, userID, type) reaction.
func (r *gormMessageRepository) RemoveReaction(ctx context.Context, messageID, userID uint, reactionType string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND type = ?", messageID, userID, reactionType).
		Delete(&models.Reaction{}).Error
}

// GetReactions retrieves the reactions of a message in insertion order.
func (r *gormMessageRepository) GetReactions(ctx context.Context, messageID uint) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
