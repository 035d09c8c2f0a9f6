package storage

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every repository backed by the same database handle.
// The TxManager hands a transaction-scoped bundle to the callback so a
// multi-record sequence commits or rolls back as a unit.
type Repositories struct {
	Users          UserRepository
	Friendships    FriendshipRepository
	FriendRequests FriendRequestRepository
	Blocks         BlockRepository
	Chats          ChatRepository
	Messages       MessageRepository
}

// NewRepositories builds a repository bundle on top of db.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Users:          NewGormUserRepository(db),
		Friendships:    NewGormFriendshipRepository(db),
		FriendRequests: NewGormFriendRequestRepository(db),
		Blocks:         NewGormBlockRepository(db),
		Chats:          NewGormChatRepository(db),
		Messages:       NewGormMessageRepository(db),
	}
}

// TxManager runs a function against transaction-scoped repositories.
// If fn returns an error the transaction is rolled back and nothing it did
// is observable.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(repos *Repositories) error) error
}

type gormTxManager struct {
	db *gorm.DB
}

// NewGormTxManager creates a TxManager backed by GORM transactions.
func NewGormTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

// WithTransaction opens a database transaction, rebinds the repositories to
// it and invokes fn.
func (m *gormTxManager) WithTransaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
