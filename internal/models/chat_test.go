package models

import "testing"

func TestDirectPairKeyIsOrderIndependent(t *testing.T) {
	if DirectPairKey(3, 11) != DirectPairKey(11, 3) {
		t.Errorf("pair key depends on argument order: %q vs %q", DirectPairKey(3, 11), DirectPairKey(11, 3))
	}
	if got, want := DirectPairKey(3, 11), "3:11"; got != want {
		t.Errorf("DirectPairKey(3, 11) = %q, want %q", got, want)
	}
	// Distinct pairs never collide, including ones whose concatenated
	// digits match.
	if DirectPairKey(1, 23) == DirectPairKey(12, 3) {
		t.Error("distinct pairs share a key")
	}
}

func TestChatMembershipHelpers(t *testing.T) {
	admin := uint(1)
	chat := &Chat{
		Kind:    GroupChat,
		AdminID: &admin,
		Members: []ChatMember{
			{UserID: 1, Position: 0},
			{UserID: 2, Position: 1},
		},
	}

	if !chat.HasMember(2) || chat.HasMember(3) {
		t.Error("HasMember misreports membership")
	}
	if !chat.IsAdmin(1) || chat.IsAdmin(2) {
		t.Error("IsAdmin misreports the admin")
	}
	if got := chat.MemberIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("MemberIDs = %v, want [1 2]", got)
	}

	chat.AdminID = nil
	if chat.IsAdmin(1) {
		t.Error("IsAdmin true with no admin set")
	}
}

func TestFriendshipCanonicalOrder(t *testing.T) {
	f := &Friendship{UserID1: 9, UserID2: 4}
	f.EnsureCanonicalOrder()
	if f.UserID1 != 4 || f.UserID2 != 9 {
		t.Errorf("canonical order = (%d, %d), want (4, 9)", f.UserID1, f.UserID2)
	}
	if f.Other(4) != 9 || f.Other(9) != 4 {
		t.Error("Other returns the wrong member")
	}
}
