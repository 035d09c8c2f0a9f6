package services

import (
	"context"
	"errors"
	"testing"

	"relaychat/internal/models"
)

func TestSendFriendRequestValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")

	if err := f.relationships.SendFriendRequest(ctx, alice, alice); !errors.Is(err, ErrSelfReference) {
		t.Errorf("self request: got %v, want ErrSelfReference", err)
	}
	if err := f.relationships.SendFriendRequest(ctx, alice, 999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown target: got %v, want ErrUserNotFound", err)
	}
}

func TestSendFriendRequestIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("repeated request should be a no-op, got %v", err)
	}

	incoming, err := f.relationships.ListIncomingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("ListIncomingRequests: %v", err)
	}
	if len(incoming) != 1 {
		t.Fatalf("got %d pending requests, want 1", len(incoming))
	}
	if incoming[0].Requester == nil || incoming[0].Requester.ID != alice {
		t.Errorf("pending request requester = %+v, want user %d", incoming[0].Requester, alice)
	}
}

func TestSendFriendRequestReverseDirectionConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	if err := f.relationships.SendFriendRequest(ctx, bob, alice); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("reverse request: got %v, want ErrAlreadyConnected", err)
	}
}

func TestAcceptEstablishesSymmetricFriendshipAndDirectChat(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	chat, err := f.relationships.AcceptFriendRequest(ctx, bob, alice)
	if err != nil {
		t.Fatalf("AcceptFriendRequest: %v", err)
	}
	if chat == nil || chat.Kind != models.DirectChat {
		t.Fatalf("accept returned %+v, want a direct chat", chat)
	}
	if !chat.HasMember(alice) || !chat.HasMember(bob) {
		t.Errorf("direct chat members = %v, want both users", chat.MemberIDs())
	}

	// The friendship is visible from both sides.
	for _, pair := range [][2]uint{{alice, bob}, {bob, alice}} {
		friends, err := f.relationships.ListFriends(ctx, pair[0])
		if err != nil {
			t.Fatalf("ListFriends(%d): %v", pair[0], err)
		}
		if len(friends) != 1 || friends[0].ID != pair[1] {
			t.Errorf("friends of %d = %+v, want exactly user %d", pair[0], friends, pair[1])
		}
	}

	// The pending request is consumed.
	incoming, _ := f.relationships.ListIncomingRequests(ctx, bob)
	if len(incoming) != 0 {
		t.Errorf("pending requests after accept = %d, want 0", len(incoming))
	}

	// Re-accepting fails, and the chat is not duplicated.
	if _, err := f.relationships.AcceptFriendRequest(ctx, bob, alice); !errors.Is(err, ErrNoSuchRequest) {
		t.Errorf("second accept: got %v, want ErrNoSuchRequest", err)
	}
	again, _, err := f.chats.EnsureDirectChat(ctx, alice, bob)
	if err != nil {
		t.Fatalf("EnsureDirectChat: %v", err)
	}
	if again.ID != chat.ID {
		t.Errorf("EnsureDirectChat returned chat %d, want existing chat %d", again.ID, chat.ID)
	}
}

func TestSendFriendRequestAfterFriendshipConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	mustBefriend(t, f, alice, bob)

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("request between friends: got %v, want ErrAlreadyConnected", err)
	}
}

func TestAcceptRollsBackWhenFriendshipCreateFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}

	f.store.failFriendshipCreate = errors.New("storage down")
	if _, err := f.relationships.AcceptFriendRequest(ctx, bob, alice); err == nil {
		t.Fatal("accept should have failed")
	}
	f.store.failFriendshipCreate = nil

	// Nothing of the partial accept may remain: the request is still
	// pending, no friendship exists and no chat was created.
	incoming, _ := f.relationships.ListIncomingRequests(ctx, bob)
	if len(incoming) != 1 {
		t.Errorf("pending requests after rollback = %d, want 1", len(incoming))
	}
	friends, _ := f.relationships.ListFriends(ctx, bob)
	if len(friends) != 0 {
		t.Errorf("friends after rollback = %d, want 0", len(friends))
	}
	if len(f.store.chats) != 0 {
		t.Errorf("chats after rollback = %d, want 0", len(f.store.chats))
	}

	// The retry succeeds cleanly.
	if _, err := f.relationships.AcceptFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
}

func TestRejectFriendRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.RejectFriendRequest(ctx, bob, alice); !errors.Is(err, ErrNoSuchRequest) {
		t.Errorf("reject without request: got %v, want ErrNoSuchRequest", err)
	}

	if err := f.relationships.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	if err := f.relationships.RejectFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("RejectFriendRequest: %v", err)
	}

	incoming, _ := f.relationships.ListIncomingRequests(ctx, bob)
	if len(incoming) != 0 {
		t.Errorf("pending requests after reject = %d, want 0", len(incoming))
	}
	friends, _ := f.relationships.ListFriends(ctx, bob)
	if len(friends) != 0 {
		t.Errorf("friends after reject = %d, want 0", len(friends))
	}
}

func TestRemoveFriendSeversBothDirections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.RemoveFriend(ctx, alice, bob); !errors.Is(err, ErrNotFriends) {
		t.Errorf("remove non-friend: got %v, want ErrNotFriends", err)
	}

	mustBefriend(t, f, alice, bob)
	if err := f.relationships.RemoveFriend(ctx, bob, alice); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	for _, id := range []uint{alice, bob} {
		friends, _ := f.relationships.ListFriends(ctx, id)
		if len(friends) != 0 {
			t.Errorf("friends of %d after removal = %d, want 0", id, len(friends))
		}
	}
}

func TestBlockSeversFriendshipAndPendingRequests(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	carol := f.addUser("carol")

	mustBefriend(t, f, alice, bob)
	if err := f.relationships.SendFriendRequest(ctx, carol, alice); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}

	if err := f.relationships.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}
	if err := f.relationships.BlockUser(ctx, alice, bob); !errors.Is(err, ErrAlreadyBlocked) {
		t.Errorf("double block: got %v, want ErrAlreadyBlocked", err)
	}

	friends, _ := f.relationships.ListFriends(ctx, bob)
	if len(friends) != 0 {
		t.Errorf("friends of blocked user = %d, want 0", len(friends))
	}
	blocked, err := f.relationships.ListBlocked(ctx, alice)
	if err != nil {
		t.Fatalf("ListBlocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != bob {
		t.Errorf("blocked set = %+v, want exactly user %d", blocked, bob)
	}

	// Blocking also clears pending requests between the pair, without
	// touching requests involving other users.
	if err := f.relationships.BlockUser(ctx, alice, carol); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}
	incoming, _ := f.relationships.ListIncomingRequests(ctx, alice)
	if len(incoming) != 0 {
		t.Errorf("pending requests after block = %d, want 0", len(incoming))
	}
}

func TestBlockedPairCannotBecomeFriends(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}

	// Neither side of the block can open a fresh request.
	if err := f.relationships.SendFriendRequest(ctx, bob, alice); !errors.Is(err, ErrBlocked) {
		t.Errorf("request from blocked user: got %v, want ErrBlocked", err)
	}
	if err := f.relationships.SendFriendRequest(ctx, alice, bob); !errors.Is(err, ErrBlocked) {
		t.Errorf("request toward blocked user: got %v, want ErrBlocked", err)
	}

	// A request that slipped in before the block must not be acceptable
	// afterwards: the blocked set and the friend set stay disjoint.
	request := &models.FriendRequest{RequesterUserID: bob, RecipientUserID: alice}
	if err := f.repos.FriendRequests.Create(ctx, request); err != nil {
		t.Fatalf("Create request: %v", err)
	}
	if _, err := f.relationships.AcceptFriendRequest(ctx, alice, bob); !errors.Is(err, ErrBlocked) {
		t.Errorf("accept across block: got %v, want ErrBlocked", err)
	}
	friends, _ := f.relationships.ListFriends(ctx, alice)
	if len(friends) != 0 {
		t.Errorf("friends after accept across block = %d, want 0", len(friends))
	}
}

func TestUnblockDoesNotRestoreFriendship(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	if err := f.relationships.UnblockUser(ctx, alice, bob); !errors.Is(err, ErrNotBlocked) {
		t.Errorf("unblock without block: got %v, want ErrNotBlocked", err)
	}

	mustBefriend(t, f, alice, bob)
	if err := f.relationships.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}
	if err := f.relationships.UnblockUser(ctx, alice, bob); err != nil {
		t.Fatalf("UnblockUser: %v", err)
	}

	blocked, _ := f.relationships.ListBlocked(ctx, alice)
	if len(blocked) != 0 {
		t.Errorf("blocked set after unblock = %d, want 0", len(blocked))
	}
	friends, _ := f.relationships.ListFriends(ctx, alice)
	if len(friends) != 0 {
		t.Errorf("friends after unblock = %d, want 0 (no restore)", len(friends))
	}
}

// mustBefriend runs the full request/accept flow between the two users.
func mustBefriend(t *testing.T, f *fixture, from, to uint) {
	t.Helper()
	ctx := context.Background()
	if err := f.relationships.SendFriendRequest(ctx, from, to); err != nil {
		t.Fatalf("SendFriendRequest(%d, %d): %v", from, to, err)
	}
	if _, err := f.relationships.AcceptFriendRequest(ctx, to, from); err != nil {
		t.Fatalf("AcceptFriendRequest(%d, %d): %v", to, from, err)
	}
}
