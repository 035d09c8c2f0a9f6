package models

// Friendship represents an established friendship between two users.
// The relation is symmetric: one row covers both directions. To avoid
// duplicates and simplify lookups, UserID1 is always less than UserID2.
type Friendship struct {
	BaseModel
	UserID1 uint `gorm:"not null;uniqueIndex:idx_friendship_users" json:"userId1"`
	UserID2 uint `gorm:"not null;uniqueIndex:idx_friendship_users" json:"userId2"`
}

// EnsureCanonicalOrder sets UserID1 to the smaller ID and UserID2 to the
// larger ID. Must be called before creating a Friendship record.
func (f *Friendship) EnsureCanonicalOrder() {
	if f.UserID1 > f.UserID2 {
		f.UserID1, f.UserID2 = f.UserID2, f.UserID1
	}
}

// Other returns the member of the pair that is not userID.
func (f *Friendship) Other(userID uint) uint {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}

// FriendRequest represents a pending friend request from requester to
// recipient. Only pending requests are stored: accepting or rejecting a
// request deletes the row, so the table is exactly the union of every user's
// incoming-request set.
type FriendRequest struct {
	BaseModel
	RequesterUserID uint `gorm:"not null;uniqueIndex:idx_friend_request_pair" json:"requesterUserId"`
	RecipientUserID uint `gorm:"not null;uniqueIndex:idx_friend_request_pair" json:"recipientUserId"`
}

// FriendRequestWithRequester is a DTO that includes a pending request along
// with basic information about the user who sent it.
type FriendRequestWithRequester struct {
	FriendRequest
	Requester *UserBasicInfo `json:"requester"`
}

// Block represents a one-directional block: blocker has blocked blocked.
// Blocking is not symmetric; each user owns their own blocked set.
type Block struct {
	BaseModel
	BlockerUserID uint `gorm:"not null;uniqueIndex:idx_block_pair" json:"blockerUserId"`
	BlockedUserID uint `gorm:"not null;uniqueIndex:idx_block_pair" json:"blockedUserId"`
}
