package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"relaychat/internal/events"
	"relaychat/internal/models"
	"relaychat/internal/storage"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrNotGroup        = errors.New("chat is not a group")
	ErrEmptyMembership = errors.New("group must have at least one member")
	ErrNotMember       = errors.New("user is not a member of the chat")
)

// EventDispatcher receives committed domain events for fanout. Services
// dispatch only after the storage commit succeeded; a fanout failure never
// rolls the commit back.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev events.Event)
}

// ChatService owns chat entities, their membership and the latest-message
// pointer.
type ChatService interface {
	// EnsureDirectChat returns the direct chat for the unordered pair,
	// creating it if needed. The second result is true when the chat was
	// created by this call. Concurrent calls for the same pair observe the
	// same chat.
	EnsureDirectChat(ctx context.Context, userA, userB uint) (*models.Chat, bool, error)
	CreateGroup(ctx context.Context, name string, memberIDs []uint, adminID uint) (*models.Chat, error)
	RenameGroup(ctx context.Context, actorID, chatID uint, newName string) (*models.Chat, error)
	// AddMember is a no-op when the user already is a member; either way it
	// returns the chat with its current membership.
	AddMember(ctx context.Context, actorID, chatID, userID uint) (*models.Chat, error)
	// RemoveMember is a no-op when the user is not a member.
	RemoveMember(ctx context.Context, actorID, chatID, userID uint) (*models.Chat, error)
	// SetLatestMessage is internal: the message log calls it after a
	// committed send. Last write wins.
	SetLatestMessage(ctx context.Context, chatID uint, messageID *uint) error

	GetChat(ctx context.Context, chatID uint) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uint) ([]*models.Chat, error)
}

type chatService struct {
	repos      *storage.Repositories
	txManager  storage.TxManager
	pairLocks  *PairLocker
	dispatcher EventDispatcher
}

// NewChatService creates a new ChatService instance.
func NewChatService(repos *storage.Repositories, txManager storage.TxManager, pairLocks *PairLocker, dispatcher EventDispatcher) ChatService {
	return &chatService{
		repos:      repos,
		txManager:  txManager,
		pairLocks:  pairLocks,
		dispatcher: dispatcher,
	}
}

// displayName picks the name a chat shows for a user.
func displayName(u *models.User) string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// ensureDirectChat finds or creates the direct chat for the pair against
// the given repositories, so it can run both standalone and inside the
// accept-friend-request transaction. Callers must hold the pair lock.
//
// The unique index on the chat's pair key is the cross-process backstop:
// if a concurrent writer won the race, the duplicate-key failure is
// resolved by re-reading the winner's chat.
func ensureDirectChat(ctx context.Context, repos *storage.Repositories, userA, userB uint) (*models.Chat, bool, error) {
	existing, err := repos.Chats.FindDirectChat(ctx, userA, userB)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up direct chat: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	a, err := repos.Users.GetByID(ctx, userA)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to look up user %d: %w", userA, err)
	}
	b, err := repos.Users.GetByID(ctx, userB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to look up user %d: %w", userB, err)
	}

	pairKey := models.DirectPairKey(userA, userB)
	now := time.Now()
	chat := &models.Chat{
		Kind:    models.DirectChat,
		PairKey: &pairKey,
		Members: []models.ChatMember{
			{UserID: userA, Position: 0, Alias: displayName(a), JoinedAt: now},
			{UserID: userB, Position: 1, Alias: displayName(b), JoinedAt: now},
		},
	}
	if err := repos.Chats.Create(ctx, chat); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, findErr := repos.Chats.FindDirectChat(ctx, userA, userB)
			if findErr != nil {
				return nil, false, fmt.Errorf("failed to re-read direct chat after races: %w", findErr)
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create direct chat: %w", err)
	}
	return chat, true, nil
}

// EnsureDirectChat finds or creates the direct chat for the unordered pair.
func (s *chatService) EnsureDirectChat(ctx context.Context, userA, userB uint) (*models.Chat, bool, error) {
	if userA == userB {
		return nil, false, ErrSelfReference
	}
	unlock := s.pairLocks.Lock(userA, userB)
	defer unlock()

	return ensureDirectChat(ctx, s.repos, userA, userB)
}

// CreateGroup creates a group chat. The admin is added to the membership if
// absent, and every invited member receives a newGroupChat push.
func (s *chatService) CreateGroup(ctx context.Context, name string, memberIDs []uint, adminID uint) (*models.Chat, error) {
	if len(memberIDs) == 0 {
		return nil, ErrEmptyMembership
	}

	// Deduplicate while preserving insertion order, and make sure the
	// admin is a member.
	seen := make(map[uint]bool, len(memberIDs)+1)
	ordered := make([]uint, 0, len(memberIDs)+1)
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	if !seen[adminID] {
		ordered = append(ordered, adminID)
	}

	now := time.Now()
	chat := &models.Chat{
		Kind:    models.GroupChat,
		Name:    name,
		AdminID: &adminID,
	}
	for i, id := range ordered {
		user, err := s.repos.Users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to look up user %d: %w", id, err)
		}
		chat.Members = append(chat.Members, models.ChatMember{
			UserID:   id,
			Position: i,
			Alias:    displayName(user),
			JoinedAt: now,
		})
	}

	if err := s.repos.Chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create group chat: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:          events.GroupCreated,
			ActorID:       adminID,
			TargetUserIDs: chat.MemberIDs(),
			Name:          events.EventNewGroupChat,
			Payload: events.GroupCreatedPayload{
				ChatID:    chat.ID,
				Name:      chat.Name,
				AdminID:   adminID,
				MemberIDs: chat.MemberIDs(),
			},
			Summary: fmt.Sprintf("You were added to the group %q", chat.Name),
		})
	}
	return chat, nil
}

// RenameGroup renames a group chat and pushes the rename to the room.
func (s *chatService) RenameGroup(ctx context.Context, actorID, chatID uint, newName string) (*models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Kind != models.GroupChat {
		return nil, ErrNotGroup
	}
	if !chat.HasMember(actorID) {
		return nil, ErrNotMember
	}

	if err := s.repos.Chats.UpdateName(ctx, chatID, newName); err != nil {
		return nil, fmt.Errorf("failed to rename chat %d: %w", chatID, err)
	}
	chat.Name = newName

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.ChatRenamed,
			ActorID:   actorID,
			ChatID:    chat.ID,
			MemberIDs: chat.MemberIDs(),
			Name:      events.EventGroupChatRenamed,
			Payload:   events.ChatRenamedPayload{ChatID: chat.ID, Name: newName},
			Summary:   fmt.Sprintf("Group renamed to %q", newName),
		})
	}
	return chat, nil
}

// AddMember adds a user to a group chat. Adding an existing member is a
// successful no-op that dispatches nothing.
func (s *chatService) AddMember(ctx context.Context, actorID, chatID, userID uint) (*models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Kind != models.GroupChat {
		return nil, ErrNotGroup
	}
	if !chat.HasMember(actorID) {
		return nil, ErrNotMember
	}
	if chat.HasMember(userID) {
		return chat, nil
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	position, err := s.repos.Chats.NextMemberPosition(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute member position: %w", err)
	}
	member := &models.ChatMember{
		ChatID:   chatID,
		UserID:   userID,
		Position: position,
		Alias:    displayName(user),
		JoinedAt: time.Now(),
	}
	if err := s.repos.Chats.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to add member %d to chat %d: %w", userID, chatID, err)
	}
	chat.Members = append(chat.Members, *member)

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:          events.MemberAdded,
			ActorID:       actorID,
			ChatID:        chat.ID,
			MemberIDs:     chat.MemberIDs(),
			TargetUserIDs: []uint{userID},
			Name:          events.EventUserAddedToGroup,
			Payload:       events.MembershipPayload{ChatID: chat.ID, UserID: userID},
			Summary:       fmt.Sprintf("%s joined the group %q", displayName(user), chat.Name),
		})
	}
	return chat, nil
}

// RemoveMember removes a user from a group chat. Members may leave on their
// own; removing someone else is reserved for the admin. Removing a
// non-member is a successful no-op. If the removed user was the admin, the
// admin slot is cleared so the invariant that a set admin is always a member
// holds.
func (s *chatService) RemoveMember(ctx context.Context, actorID, chatID, userID uint) (*models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Kind != models.GroupChat {
		return nil, ErrNotGroup
	}
	if !chat.HasMember(actorID) {
		return nil, ErrNotMember
	}
	if actorID != userID && !chat.IsAdmin(actorID) {
		return nil, ErrNotAuthorized
	}
	if !chat.HasMember(userID) {
		return chat, nil
	}

	if err := s.repos.Chats.RemoveMember(ctx, chatID, userID); err != nil {
		return nil, fmt.Errorf("failed to remove member %d from chat %d: %w", userID, chatID, err)
	}
	remaining := chat.Members[:0]
	for _, m := range chat.Members {
		if m.UserID != userID {
			remaining = append(remaining, m)
		}
	}
	chat.Members = remaining

	// A group never persists with zero members: when the last one leaves,
	// the chat and its history are deleted outright.
	if len(chat.Members) == 0 {
		if err := s.repos.Chats.Delete(ctx, chatID); err != nil {
			return nil, fmt.Errorf("failed to delete empty chat %d: %w", chatID, err)
		}
		chat.AdminID = nil
	} else if chat.IsAdmin(userID) {
		if err := s.repos.Chats.ClearAdmin(ctx, chatID); err != nil {
			return nil, fmt.Errorf("failed to clear admin of chat %d: %w", chatID, err)
		}
		chat.AdminID = nil
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:          events.MemberRemoved,
			ActorID:       actorID,
			ChatID:        chat.ID,
			MemberIDs:     chat.MemberIDs(),
			TargetUserIDs: []uint{userID},
			Name:          events.EventUserRemovedFromGroup,
			Payload:       events.MembershipPayload{ChatID: chat.ID, UserID: userID},
			Summary:       fmt.Sprintf("A member left the group %q", chat.Name),
		})
	}
	return chat, nil
}

// SetLatestMessage updates the chat's latest-message pointer.
func (s *chatService) SetLatestMessage(ctx context.Context, chatID uint, messageID *uint) error {
	return s.repos.Chats.SetLatestMessage(ctx, chatID, messageID)
}

// GetChat retrieves a chat with its membership.
func (s *chatService) GetChat(ctx context.Context, chatID uint) (*models.Chat, error) {
	return s.getChat(ctx, chatID)
}

// ListChatsForUser retrieves every chat the user belongs to.
func (s *chatService) ListChatsForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	return s.repos.Chats.GetChatsForUser(ctx, userID)
}

func (s *chatService) getChat(ctx context.Context, chatID uint) (*models.Chat, error) {
	chat, err := s.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to look up chat %d: %w", chatID, err)
	}
	return chat, nil
}
