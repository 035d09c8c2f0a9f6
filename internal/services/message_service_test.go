package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"relaychat/internal/events"
	"relaychat/internal/models"
)

func newGroupWithUsers(t *testing.T, f *fixture) (chat *models.Chat, admin, member, outsider uint) {
	t.Helper()
	admin = f.addUser("admin")
	member = f.addUser("member")
	outsider = f.addUser("outsider")
	chat, err := f.chats.CreateGroup(context.Background(), "team", []uint{member}, admin)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return chat, admin, member, outsider
}

func TestAppendStoresAndAdvancesLatest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, _, member, outsider := newGroupWithUsers(t, f)

	if _, err := f.messages.Append(ctx, 999, member, "hi"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("unknown chat: got %v, want ErrChatNotFound", err)
	}
	if _, err := f.messages.Append(ctx, chat.ID, outsider, "hi"); !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider: got %v, want ErrNotMember", err)
	}

	first, err := f.messages.Append(ctx, chat.ID, member, "hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := f.messages.Append(ctx, chat.ID, member, "world")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("message IDs not increasing: %d then %d", first.ID, second.ID)
	}

	stored, err := f.chats.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if stored.LatestMessageID == nil || *stored.LatestMessageID != second.ID {
		t.Errorf("latest message pointer = %v, want %d", stored.LatestMessageID, second.ID)
	}

	sent := f.dispatcher.byType(events.MessageSent)
	if len(sent) != 2 {
		t.Fatalf("got %d MessageSent events, want 2", len(sent))
	}
	if sent[0].ChatID != chat.ID || sent[0].ActorID != member {
		t.Errorf("event = %+v, want chat %d actor %d", sent[0], chat.ID, member)
	}
	if sent[1].Summary == "" {
		t.Error("MessageSent event has no summary")
	}
}

func TestEditOnlyByAuthor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, admin, member, _ := newGroupWithUsers(t, f)

	msg, err := f.messages.Append(ctx, chat.ID, member, "draft")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := f.messages.Edit(ctx, msg.ID, "hijacked", admin); !errors.Is(err, ErrNotAuthor) {
		t.Errorf("edit by non-author: got %v, want ErrNotAuthor", err)
	}

	edited, err := f.messages.Edit(ctx, msg.ID, "final", member)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Body != "final" {
		t.Errorf("body = %q, want %q", edited.Body, "final")
	}

	page, err := f.messages.Page(ctx, chat.ID, 0, 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.Messages[0].Body != "final" {
		t.Errorf("stored body = %q, want %q", page.Messages[0].Body, "final")
	}
}

func TestRemoveAuthorOrAdminPolicy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, admin, member, _ := newGroupWithUsers(t, f)
	bystander := f.addUser("bystander")
	if _, err := f.chats.AddMember(ctx, admin, chat.ID, bystander); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	msg, err := f.messages.Append(ctx, chat.ID, member, "target")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := f.messages.Remove(ctx, msg.ID, bystander); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("remove by bystander: got %v, want ErrNotAuthorized", err)
	}
	if err := f.messages.Remove(ctx, msg.ID, admin); err != nil {
		t.Fatalf("remove by admin: %v", err)
	}
	if err := f.messages.Remove(ctx, msg.ID, member); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("remove deleted message: got %v, want ErrMessageNotFound", err)
	}
}

func TestRemoveLatestMovesPointerBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, _, member, _ := newGroupWithUsers(t, f)

	first, err := f.messages.Append(ctx, chat.ID, member, "one")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := f.messages.Append(ctx, chat.ID, member, "two")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := f.messages.Remove(ctx, second.ID, member); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	stored, _ := f.chats.GetChat(ctx, chat.ID)
	if stored.LatestMessageID == nil || *stored.LatestMessageID != first.ID {
		t.Errorf("latest pointer = %v, want %d", stored.LatestMessageID, first.ID)
	}

	if err := f.messages.Remove(ctx, first.ID, member); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	stored, _ = f.chats.GetChat(ctx, chat.ID)
	if stored.LatestMessageID != nil {
		t.Errorf("latest pointer = %v, want nil after last delete", *stored.LatestMessageID)
	}
}

func TestToggleReactionIsSelfInverse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, admin, member, outsider := newGroupWithUsers(t, f)

	msg, err := f.messages.Append(ctx, chat.ID, admin, "react to me")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := f.messages.ToggleReaction(ctx, msg.ID, outsider, "like"); !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider reaction: got %v, want ErrNotMember", err)
	}

	on, err := f.messages.ToggleReaction(ctx, msg.ID, member, "like")
	if err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	if !on.HasReaction(member, "like") {
		t.Error("reaction missing after first toggle")
	}

	// A second identical toggle restores the original state; different
	// users and types are independent.
	if _, err := f.messages.ToggleReaction(ctx, msg.ID, admin, "heart"); err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	off, err := f.messages.ToggleReaction(ctx, msg.ID, member, "like")
	if err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	if off.HasReaction(member, "like") {
		t.Error("reaction still present after second toggle")
	}
	if !off.HasReaction(admin, "heart") {
		t.Error("unrelated reaction was lost")
	}

	toggles := f.dispatcher.byType(events.ReactionToggled)
	if len(toggles) != 3 {
		t.Errorf("got %d ReactionToggled events, want 3", len(toggles))
	}
}

func TestPageNewestFirstWithoutDuplicates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, _, member, _ := newGroupWithUsers(t, f)

	if _, err := f.messages.Page(ctx, 999, 0, 10); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("unknown chat: got %v, want ErrChatNotFound", err)
	}

	const total = 25
	for i := 0; i < total; i++ {
		if _, err := f.messages.Append(ctx, chat.ID, member, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	seen := make(map[uint]bool)
	var cursor uint
	var pages int
	var lastID uint
	for {
		page, err := f.messages.Page(ctx, chat.ID, cursor, 10)
		if err != nil {
			t.Fatalf("Page: %v", err)
		}
		if page.TotalCount != total {
			t.Errorf("TotalCount = %d, want %d", page.TotalCount, total)
		}
		for _, m := range page.Messages {
			if seen[m.ID] {
				t.Fatalf("message %d appeared twice", m.ID)
			}
			seen[m.ID] = true
			if lastID != 0 && m.ID >= lastID {
				t.Fatalf("ordering violated: %d after %d", m.ID, lastID)
			}
			lastID = m.ID
		}
		pages++
		if !page.HasMore {
			if page.NextCursor != 0 {
				t.Errorf("NextCursor = %d on final page, want 0", page.NextCursor)
			}
			break
		}
		cursor = page.NextCursor
	}

	if pages != 3 {
		t.Errorf("walked %d pages, want 3", pages)
	}
	if len(seen) != total {
		t.Errorf("saw %d distinct messages, want %d", len(seen), total)
	}
}

func TestPageDefaultsLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	chat, _, member, _ := newGroupWithUsers(t, f)

	for i := 0; i < 25; i++ {
		if _, err := f.messages.Append(ctx, chat.ID, member, "x"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := f.messages.Page(ctx, chat.ID, 0, 0)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(page.Messages) != 20 {
		t.Errorf("default page size = %d, want 20", len(page.Messages))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
}
