package services

import (
	"context"
	"testing"

	"relaychat/internal/events"
	"relaychat/internal/models"
)

func TestStatusChangedPersistsAndTargetsFriends(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	f.addUser("carol") // not a friend, must not be targeted

	mustBefriend(t, f, alice, bob)
	f.dispatcher.events = nil

	b := NewStatusBroadcaster(f.repos.Users, f.repos.Friendships, f.dispatcher)

	b.StatusChanged(ctx, alice, true)
	user, err := f.repos.Users.GetByID(ctx, alice)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if user.Status != models.UserStatusOnline {
		t.Errorf("status = %s, want online", user.Status)
	}

	b.StatusChanged(ctx, alice, false)
	user, _ = f.repos.Users.GetByID(ctx, alice)
	if user.Status != models.UserStatusOffline {
		t.Errorf("status = %s, want offline", user.Status)
	}
	if user.LastSeenAt == nil {
		t.Error("LastSeenAt not set on going offline")
	}

	changed := f.dispatcher.byType(events.StatusChanged)
	if len(changed) != 2 {
		t.Fatalf("got %d StatusChanged events, want 2", len(changed))
	}
	for _, ev := range changed {
		if len(ev.TargetUserIDs) != 2 {
			t.Fatalf("targets = %v, want the user and their one friend", ev.TargetUserIDs)
		}
		seen := map[uint]bool{ev.TargetUserIDs[0]: true, ev.TargetUserIDs[1]: true}
		if !seen[alice] || !seen[bob] {
			t.Errorf("targets = %v, want %d and %d", ev.TargetUserIDs, alice, bob)
		}
	}
}
