package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"relaychat/internal/events"
	"relaychat/internal/models"
	"relaychat/internal/storage"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthor       = errors.New("only the author may do this")
	ErrNotAuthorized   = errors.New("not authorized")
)

const summaryMaxRunes = 80

// MessagePage is one page of a chat's history, newest first. NextCursor is
// the ID to pass as the cursor of the following page; it is zero when no
// older messages remain.
type MessagePage struct {
	Messages   []*models.Message `json:"messages"`
	NextCursor uint              `json:"nextCursor"`
	HasMore    bool              `json:"hasMore"`
	TotalCount int64             `json:"totalCount"`
}

// MessageService owns the append-only per-chat message sequence, including
// reactions, edits and deletes.
type MessageService interface {
	// Append commits a new message, updates the chat's latest-message
	// pointer and fans the message out.
	Append(ctx context.Context, chatID, senderID uint, body string) (*models.Message, error)
	Edit(ctx context.Context, messageID uint, newBody string, actorID uint) (*models.Message, error)
	// Remove hard-deletes a message. The author may always remove their own
	// message; the group admin may remove any message in their group.
	Remove(ctx context.Context, messageID, actorID uint) error
	// ToggleReaction flips the presence of the (userID, type) pair on the
	// message; applying it twice restores the original reaction set.
	ToggleReaction(ctx context.Context, messageID, userID uint, reactionType string) (*models.Message, error)
	// Page returns messages newest first. A zero cursor starts at the
	// newest message; passing the returned NextCursor continues without
	// duplicates. The page sequence is restartable at any cursor.
	Page(ctx context.Context, chatID uint, cursor uint, limit int) (*MessagePage, error)
}

type messageService struct {
	repos      *storage.Repositories
	chats      ChatService
	dispatcher EventDispatcher
}

// NewMessageService creates a new MessageService instance.
func NewMessageService(repos *storage.Repositories, chats ChatService, dispatcher EventDispatcher) MessageService {
	return &messageService{repos: repos, chats: chats, dispatcher: dispatcher}
}

// Append validates membership, commits the message and fans it out.
func (s *messageService) Append(ctx context.Context, chatID, senderID uint, body string) (*models.Message, error) {
	chat, err := s.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to look up chat %d: %w", chatID, err)
	}
	if !chat.HasMember(senderID) {
		return nil, ErrNotMember
	}

	message := &models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
	}
	if err := s.repos.Messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	if err := s.chats.SetLatestMessage(ctx, chatID, &message.ID); err != nil {
		return nil, fmt.Errorf("failed to update latest message of chat %d: %w", chatID, err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.MessageSent,
			ActorID:   senderID,
			ChatID:    chatID,
			MemberIDs: chat.MemberIDs(),
			Name:      events.EventMessage,
			Payload: events.MessagePayload{
				ID:        message.ID,
				ChatID:    chatID,
				SenderID:  senderID,
				Body:      body,
				CreatedAt: message.CreatedAt,
			},
			Summary: summarize(senderAlias(chat, senderID), body),
		})
	}
	return message, nil
}

// Edit replaces the body of a message. Only the author may edit.
func (s *messageService) Edit(ctx context.Context, messageID uint, newBody string, actorID uint) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actorID {
		return nil, ErrNotAuthor
	}

	if err := s.repos.Messages.UpdateBody(ctx, messageID, newBody); err != nil {
		return nil, fmt.Errorf("failed to update message %d: %w", messageID, err)
	}
	message.Body = newBody

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.MessageEdited,
			ActorID:   actorID,
			ChatID:    message.ChatID,
			MemberIDs: s.memberIDs(ctx, message.ChatID),
			Name:      events.EventMessageEdited,
			Payload:   events.MessageEditedPayload{ID: messageID, Body: newBody},
			Summary:   "A message was edited",
		})
	}
	return message, nil
}

// Remove hard-deletes a message after checking the author-or-admin policy.
// If the deleted message was the chat's latest, the pointer is moved back
// to the newest remaining message.
func (s *messageService) Remove(ctx context.Context, messageID, actorID uint) error {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.repos.Chats.GetByID(ctx, message.ChatID)
	if err != nil {
		return fmt.Errorf("failed to look up chat %d: %w", message.ChatID, err)
	}
	if message.SenderID != actorID && !chat.IsAdmin(actorID) {
		return ErrNotAuthorized
	}

	if err := s.repos.Messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}

	if chat.LatestMessageID != nil && *chat.LatestMessageID == messageID {
		newest, err := s.repos.Messages.GetPageByChatID(ctx, chat.ID, 0, 1)
		if err == nil {
			var latest *uint
			if len(newest) > 0 {
				latest = &newest[0].ID
			}
			if err := s.chats.SetLatestMessage(ctx, chat.ID, latest); err != nil {
				return fmt.Errorf("failed to move latest message of chat %d: %w", chat.ID, err)
			}
		}
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.MessageDeleted,
			ActorID:   actorID,
			ChatID:    chat.ID,
			MemberIDs: chat.MemberIDs(),
			Name:      events.EventMessageDeleted,
			Payload:   events.MessageDeletedPayload{ID: messageID},
			Summary:   "A message was deleted",
		})
	}
	return nil
}

// ToggleReaction flips the (userID, type) reaction on the message and fans
// out the resulting reaction list.
func (s *messageService) ToggleReaction(ctx context.Context, messageID, userID uint, reactionType string) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.repos.Chats.GetByID(ctx, message.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up chat %d: %w", message.ChatID, err)
	}
	if !chat.HasMember(userID) {
		return nil, ErrNotMember
	}

	if message.HasReaction(userID, reactionType) {
		err = s.repos.Messages.RemoveReaction(ctx, messageID, userID, reactionType)
	} else {
		err = s.repos.Messages.AddReaction(ctx, &models.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Type:      reactionType,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle reaction on message %d: %w", messageID, err)
	}

	reactions, err := s.repos.Messages.GetReactions(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload reactions of message %d: %w", messageID, err)
	}
	message.Reactions = reactions

	if s.dispatcher != nil {
		payload := events.MessageReactedPayload{MessageID: messageID}
		for _, r := range reactions {
			payload.Reactions = append(payload.Reactions, events.ReactionPayload{UserID: r.UserID, Type: r.Type})
		}
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.ReactionToggled,
			ActorID:   userID,
			ChatID:    chat.ID,
			MemberIDs: chat.MemberIDs(),
			Name:      events.EventMessageReacted,
			Payload:   payload,
			Summary:   "Someone reacted to a message",
		})
	}
	return message, nil
}

// Page returns one page of the chat's history, newest first. Within a chat
// the order matches commit order: messages are ordered by creation time
// with the monotonic ID breaking ties, and the ID itself is the cursor.
func (s *messageService) Page(ctx context.Context, chatID uint, cursor uint, limit int) (*MessagePage, error) {
	if _, err := s.repos.Chats.GetByID(ctx, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to look up chat %d: %w", chatID, err)
	}
	if limit <= 0 {
		limit = 20
	}

	// Fetch one extra row to learn whether an older page exists.
	rows, err := s.repos.Messages.GetPageByChatID(ctx, chatID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to page messages of chat %d: %w", chatID, err)
	}
	total, err := s.repos.Messages.CountByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages of chat %d: %w", chatID, err)
	}

	page := &MessagePage{TotalCount: total}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	page.Messages = rows
	if page.HasMore && len(rows) > 0 {
		page.NextCursor = rows[len(rows)-1].ID
	}
	return page, nil
}

func (s *messageService) getMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	message, err := s.repos.Messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to look up message %d: %w", messageID, err)
	}
	return message, nil
}

func (s *messageService) memberIDs(ctx context.Context, chatID uint) []uint {
	chat, err := s.repos.Chats.GetByID(ctx, chatID)
	if err != nil {
		return nil
	}
	return chat.MemberIDs()
}

func senderAlias(chat *models.Chat, senderID uint) string {
	for _, m := range chat.Members {
		if m.UserID == senderID {
			return m.Alias
		}
	}
	return "Someone"
}

// summarize builds the short human-readable notification text for a new
// message.
func summarize(sender, body string) string {
	if utf8.RuneCountInString(body) > summaryMaxRunes {
		runes := []rune(body)
		body = string(runes[:summaryMaxRunes]) + "…"
	}
	return sender + ": " + body
}
