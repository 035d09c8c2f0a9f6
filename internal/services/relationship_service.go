package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"relaychat/internal/models"
	"relaychat/internal/storage"
)

var (
	ErrSelfReference    = errors.New("cannot reference yourself")
	ErrAlreadyConnected = errors.New("users are already connected")
	ErrNoSuchRequest    = errors.New("no pending friend request")
	ErrNotFriends       = errors.New("users are not friends")
	ErrAlreadyBlocked   = errors.New("user is already blocked")
	ErrNotBlocked       = errors.New("user is not blocked")
	ErrBlocked          = errors.New("a block exists between the users")
	ErrUserNotFound     = errors.New("user not found")
)

// RelationshipService owns the friend-request, friendship and block state
// for every user pair. All operations take the authenticated actor first;
// handlers guarantee the actor equals the authenticated identity, so every
// mutation is scoped to the caller's own relationship sets.
type RelationshipService interface {
	// SendFriendRequest adds the actor to the target's incoming-request
	// set. Retrying an already-pending request is a successful no-op.
	SendFriendRequest(ctx context.Context, actorID, targetID uint) error
	// AcceptFriendRequest establishes the friendship in both directions and
	// ensures a direct chat for the pair, atomically. It returns the direct
	// chat.
	AcceptFriendRequest(ctx context.Context, actorID, requesterID uint) (*models.Chat, error)
	RejectFriendRequest(ctx context.Context, actorID, requesterID uint) error
	RemoveFriend(ctx context.Context, actorID, otherID uint) error
	// BlockUser adds the target to the actor's blocked set and severs any
	// friendship or pending request between the two, in both directions.
	BlockUser(ctx context.Context, actorID, targetID uint) error
	// UnblockUser removes the block only; it does not restore friendship.
	UnblockUser(ctx context.Context, actorID, targetID uint) error

	ListFriends(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error)
	ListIncomingRequests(ctx context.Context, userID uint) ([]*models.FriendRequestWithRequester, error)
	ListBlocked(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error)
}

type relationshipService struct {
	repos     *storage.Repositories
	txManager storage.TxManager
	pairLocks *PairLocker
}

// NewRelationshipService creates a new RelationshipService instance. The
// pair locker must be the same instance the chat service uses.
func NewRelationshipService(repos *storage.Repositories, txManager storage.TxManager, pairLocks *PairLocker) RelationshipService {
	return &relationshipService{
		repos:     repos,
		txManager: txManager,
		pairLocks: pairLocks,
	}
}

// pairBlocked reports whether a block exists between the two users in either
// direction.
func pairBlocked(ctx context.Context, repos *storage.Repositories, a, b uint) (bool, error) {
	blocked, err := repos.Blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("failed to check block state: %w", err)
	}
	if blocked {
		return true, nil
	}
	blocked, err = repos.Blocks.IsBlocked(ctx, b, a)
	if err != nil {
		return false, fmt.Errorf("failed to check block state: %w", err)
	}
	return blocked, nil
}

// SendFriendRequest validates the pair and records a pending request.
func (s *relationshipService) SendFriendRequest(ctx context.Context, actorID, targetID uint) error {
	if actorID == targetID {
		return ErrSelfReference
	}
	if _, err := s.repos.Users.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up target user %d: %w", targetID, err)
	}

	blocked, err := pairBlocked(ctx, s.repos, actorID, targetID)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}

	areFriends, err := s.repos.Friendships.AreUsersFriends(ctx, actorID, targetID)
	if err != nil {
		return fmt.Errorf("failed to check friendship: %w", err)
	}
	if areFriends {
		return ErrAlreadyConnected
	}

	// A pending request in the same direction makes the retry an idempotent
	// success; one in the opposite direction is a conflict the target
	// should resolve by accepting.
	pending, err := s.repos.FriendRequests.Find(ctx, actorID, targetID)
	if err != nil {
		return fmt.Errorf("failed to check pending request: %w", err)
	}
	if pending != nil {
		return nil
	}
	reverse, err := s.repos.FriendRequests.Find(ctx, targetID, actorID)
	if err != nil {
		return fmt.Errorf("failed to check reverse pending request: %w", err)
	}
	if reverse != nil {
		return ErrAlreadyConnected
	}

	request := &models.FriendRequest{
		RequesterUserID: actorID,
		RecipientUserID: targetID,
	}
	if err := s.repos.FriendRequests.Create(ctx, request); err != nil {
		return fmt.Errorf("failed to create friend request: %w", err)
	}
	return nil
}

// AcceptFriendRequest removes the pending entry, creates the friendship and
// ensures the direct chat, all inside one transaction held under the pair
// lock so concurrent accepts or ensures for the same pair serialize.
func (s *relationshipService) AcceptFriendRequest(ctx context.Context, actorID, requesterID uint) (*models.Chat, error) {
	unlock := s.pairLocks.Lock(actorID, requesterID)
	defer unlock()

	var chat *models.Chat
	txErr := s.txManager.WithTransaction(ctx, func(repos *storage.Repositories) error {
		request, err := repos.FriendRequests.Find(ctx, requesterID, actorID)
		if err != nil {
			return fmt.Errorf("failed to look up friend request: %w", err)
		}
		if request == nil {
			return ErrNoSuchRequest
		}

		// A block created after the request was sent must not turn into a
		// friendship; the blocked set and the friend set stay disjoint.
		blocked, err := pairBlocked(ctx, repos, actorID, requesterID)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}

		if err := repos.FriendRequests.Delete(ctx, requesterID, actorID); err != nil {
			return fmt.Errorf("failed to remove pending request: %w", err)
		}

		friendship := &models.Friendship{UserID1: requesterID, UserID2: actorID}
		friendship.EnsureCanonicalOrder()
		if err := repos.Friendships.Create(ctx, friendship); err != nil {
			return fmt.Errorf("failed to create friendship: %w", err)
		}

		chat, _, err = ensureDirectChat(ctx, repos, actorID, requesterID)
		if err != nil {
			return fmt.Errorf("failed to ensure direct chat: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return chat, nil
}

// RejectFriendRequest removes the pending entry addressed to the actor.
func (s *relationshipService) RejectFriendRequest(ctx context.Context, actorID, requesterID uint) error {
	request, err := s.repos.FriendRequests.Find(ctx, requesterID, actorID)
	if err != nil {
		return fmt.Errorf("failed to look up friend request: %w", err)
	}
	if request == nil {
		return ErrNoSuchRequest
	}
	if err := s.repos.FriendRequests.Delete(ctx, requesterID, actorID); err != nil {
		return fmt.Errorf("failed to remove pending request: %w", err)
	}
	return nil
}

// RemoveFriend removes the friendship in both directions.
func (s *relationshipService) RemoveFriend(ctx context.Context, actorID, otherID uint) error {
	areFriends, err := s.repos.Friendships.AreUsersFriends(ctx, actorID, otherID)
	if err != nil {
		return fmt.Errorf("failed to check friendship: %w", err)
	}
	if !areFriends {
		return ErrNotFriends
	}
	if err := s.repos.Friendships.Delete(ctx, actorID, otherID); err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}
	return nil
}

// BlockUser blocks the target and severs friendship and pending requests
// between the two, in both directions, as one transaction.
func (s *relationshipService) BlockUser(ctx context.Context, actorID, targetID uint) error {
	if actorID == targetID {
		return ErrSelfReference
	}
	blocked, err := s.repos.Blocks.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return fmt.Errorf("failed to check block state: %w", err)
	}
	if blocked {
		return ErrAlreadyBlocked
	}

	return s.txManager.WithTransaction(ctx, func(repos *storage.Repositories) error {
		block := &models.Block{BlockerUserID: actorID, BlockedUserID: targetID}
		if err := repos.Blocks.Create(ctx, block); err != nil {
			return fmt.Errorf("failed to create block: %w", err)
		}
		if err := repos.Friendships.Delete(ctx, actorID, targetID); err != nil {
			return fmt.Errorf("failed to remove friendship: %w", err)
		}
		if err := repos.FriendRequests.DeleteBetween(ctx, actorID, targetID); err != nil {
			return fmt.Errorf("failed to remove pending requests: %w", err)
		}
		return nil
	})
}

// UnblockUser removes the block record only.
func (s *relationshipService) UnblockUser(ctx context.Context, actorID, targetID uint) error {
	blocked, err := s.repos.Blocks.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return fmt.Errorf("failed to check block state: %w", err)
	}
	if !blocked {
		return ErrNotBlocked
	}
	if err := s.repos.Blocks.Delete(ctx, actorID, targetID); err != nil {
		return fmt.Errorf("failed to remove block: %w", err)
	}
	return nil
}

// ListFriends retrieves the basic info of every friend of the user.
func (s *relationshipService) ListFriends(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
	friendIDs, err := s.repos.Friendships.GetFriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend IDs: %w", err)
	}
	if len(friendIDs) == 0 {
		return []*models.UserBasicInfo{}, nil
	}
	return s.repos.Users.GetMultipleBasicInfoByIDs(ctx, friendIDs)
}

// ListIncomingRequests retrieves the user's pending incoming requests with
// requester info attached.
func (s *relationshipService) ListIncomingRequests(ctx context.Context, userID uint) ([]*models.FriendRequestWithRequester, error) {
	requests, err := s.repos.FriendRequests.GetIncomingForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get incoming requests: %w", err)
	}

	result := make([]*models.FriendRequestWithRequester, 0, len(requests))
	for _, req := range requests {
		requester, err := s.repos.Users.GetBasicInfoByID(ctx, req.RequesterUserID)
		if err != nil {
			continue
		}
		result = append(result, &models.FriendRequestWithRequester{
			FriendRequest: req,
			Requester:     requester,
		})
	}
	return result, nil
}

// ListBlocked retrieves the basic info of every user blocked by the user.
func (s *relationshipService) ListBlocked(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
	blockedIDs, err := s.repos.Blocks.GetBlockedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked IDs: %w", err)
	}
	if len(blockedIDs) == 0 {
		return []*models.UserBasicInfo{}, nil
	}
	return s.repos.Users.GetMultipleBasicInfoByIDs(ctx, blockedIDs)
}
