package storage

import (
	"context"

	"gorm.io/gorm"

	"relaychat/internal/models"
)

// BlockRepository defines the interface for block-list data operations.
// Blocks are directional: a row means blocker has blocked blocked.
type BlockRepository interface {
	Create(ctx context.Context, block *models.Block) error
	Delete(ctx context.Context, blockerID, blockedID uint) error
	IsBlocked(ctx context.Context, blockerID, blockedID uint) (bool, error)
	GetBlockedIDs(ctx context.Context, blockerID uint) ([]uint, error)
}

type gormBlockRepository struct {
	db *gorm.DB
}

// NewGormBlockRepository creates a new GORM-based BlockRepository.
func NewGormBlockRepository(db *gorm.DB) BlockRepository {
	return &gormBlockRepository{db: db}
}

// Create creates a new block record.
func (r *gormBlockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

// Delete removes the block from blockerID against blockedID.
func (r *gormBlockRepository) Delete(ctx context.Context, blockerID, blockedID uint) error {
	return r.db.WithContext(ctx).
		Where("blocker_user_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Delete(&models.Block{}).Error
}

// IsBlocked checks whether blockerID has blocked blockedID.
func (r *gormBlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_user_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBlockedIDs retrieves the IDs of every user blocked by blockerID.
func (r *gormBlockRepository) GetBlockedIDs(ctx context.Context, blockerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_user_id = ?", blockerID).
		Pluck("blocked_user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
