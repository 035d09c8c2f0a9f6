package services

import (
	"sync"

	"relaychat/internal/models"
)

// PairLocker serializes check-then-act sequences scoped to an unordered
// user pair: accepting a friend request, ensuring a direct chat. Locks are
// keyed by the canonical pair encoding and held only for the duration of
// the sequence; unrelated pairs never contend. The relationship and chat
// services must share one instance so the two entry points into direct-chat
// creation serialize against each other.
type PairLocker struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// NewPairLocker creates an empty lock table.
func NewPairLocker() *PairLocker {
	return &PairLocker{locks: make(map[string]*pairLock)}
}

// Lock acquires the lock for the unordered (userA, userB) pair and returns
// the function that releases it.
func (l *PairLocker) Lock(userA, userB uint) (unlock func()) {
	key := models.DirectPairKey(userA, userB)

	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &pairLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
