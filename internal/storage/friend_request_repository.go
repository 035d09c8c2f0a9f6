package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"relaychat/internal/models"
)

// FriendRequestRepository defines the interface for pending friend request
// operations. Only pending requests exist as rows; accept and reject both
// remove the row so a user's incoming-request set is exactly the rows
// addressed to them.
type FriendRequestRepository interface {
	Create(ctx context.Context, request *models.FriendRequest) error
	Find(ctx context.Context, requesterID, recipientID uint) (*models.FriendRequest, error)
	Delete(ctx context.Context, requesterID, recipientID uint) error
	DeleteBetween(ctx context.Context, userID1, userID2 uint) error
	GetIncomingForUser(ctx context.Context, recipientID uint) ([]models.FriendRequest, error)
}

type gormFriendRequestRepository struct {
	db *gorm.DB
}

// NewGormFriendRequestRepository creates a new GORM-based FriendRequestRepository.
func NewGormFriendRequestRepository(db *gorm.DB) FriendRequestRepository {
	return &gormFriendRequestRepository{db: db}
}

// Create creates a new pending friend request.
func (r *gormFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// Find returns the pending request from requesterID to recipientID, or
// (nil, nil) when no such request exists.
func (r *gormFriendRequestRepository) Find(ctx context.Context, requesterID, recipientID uint) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("requester_user_id = ? AND recipient_user_id = ?", requesterID, recipientID).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

// Delete removes the pending request from requesterID to recipientID.
func (r *gormFriendRequestRepository) Delete(ctx context.Context, requesterID, recipientID uint) error {
	return r.db.WithContext(ctx).
		Where("requester_user_id = ? AND recipient_user_id = ?", requesterID, recipientID).
		Delete(&models.FriendRequest{}).Error
}

// DeleteBetween removes pending requests between the two users in both
// directions. Used when one user blocks the other.
func (r *gormFriendRequestRepository) DeleteBetween(ctx context.Context, userID1, userID2 uint) error {
	return r.db.WithContext(ctx).
		Where("(requester_user_id = ? AND recipient_user_id = ?) OR (requester_user_id = ? AND recipient_user_id = ?)",
			userID1, userID2, userID2, userID1).
		Delete(&models.FriendRequest{}).Error
}

// GetIncomingForUser retrieves all pending requests addressed to the user,
// oldest first.
func (r *gormFriendRequestRepository) GetIncomingForUser(ctx context.Context, recipientID uint) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("recipient_user_id = ?", recipientID).
		Order("id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
