package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"relaychat/internal/events"
	"relaychat/internal/models"
	"relaychat/internal/storage"
)

// memStore is a map-backed stand-in for the database, shared by the fake
// repositories. Stored entities are only created, replaced or deleted whole,
// so transaction rollback is a shallow snapshot of the maps.
type memStore struct {
	mu     sync.Mutex
	nextID uint

	users       map[uint]*models.User
	friendships map[string]*models.Friendship
	requests    map[string]*models.FriendRequest
	blocks      map[string]*models.Block
	chats       map[uint]*models.Chat
	messages    map[uint]*models.Message
	reactions   []*models.Reaction

	failFriendshipCreate error
	failChatCreate       error
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uint]*models.User),
		friendships: make(map[string]*models.Friendship),
		requests:    make(map[string]*models.FriendRequest),
		blocks:      make(map[string]*models.Block),
		chats:       make(map[uint]*models.Chat),
		messages:    make(map[uint]*models.Message),
	}
}

func (s *memStore) allocID() uint {
	s.nextID++
	return s.nextID
}

func pairString(a, b uint) string {
	return models.DirectPairKey(a, b)
}

func requestKey(requesterID, recipientID uint) string {
	return fmt.Sprintf("%d>%d", requesterID, recipientID)
}

type storeSnapshot struct {
	nextID      uint
	users       map[uint]*models.User
	friendships map[string]*models.Friendship
	requests    map[string]*models.FriendRequest
	blocks      map[string]*models.Block
	chats       map[uint]*models.Chat
	messages    map[uint]*models.Message
	reactions   []*models.Reaction
}

func (s *memStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		nextID:      s.nextID,
		users:       make(map[uint]*models.User, len(s.users)),
		friendships: make(map[string]*models.Friendship, len(s.friendships)),
		requests:    make(map[string]*models.FriendRequest, len(s.requests)),
		blocks:      make(map[string]*models.Block, len(s.blocks)),
		chats:       make(map[uint]*models.Chat, len(s.chats)),
		messages:    make(map[uint]*models.Message, len(s.messages)),
		reactions:   append([]*models.Reaction(nil), s.reactions...),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.friendships {
		snap.friendships[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	for k, v := range s.blocks {
		snap.blocks[k] = v
	}
	for k, v := range s.chats {
		snap.chats[k] = v
	}
	for k, v := range s.messages {
		snap.messages[k] = v
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.users = snap.users
	s.friendships = snap.friendships
	s.requests = snap.requests
	s.blocks = snap.blocks
	s.chats = snap.chats
	s.messages = snap.messages
	s.reactions = snap.reactions
}

// memUserRepository

type memUserRepository struct{ s *memStore }

func (r *memUserRepository) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username || (user.Email != "" && u.Email == user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = r.s.allocID()
	user.CreatedAt = time.Now()
	r.s.users[user.ID] = user
	return nil
}

func (r *memUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepository) Update(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *user
	r.s.users[user.ID] = &copied
	return nil
}

func (r *memUserRepository) UpdateStatus(ctx context.Context, id uint, status models.UserStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *u
	copied.Status = status
	r.s.users[id] = &copied
	return nil
}

func (r *memUserRepository) Search(ctx context.Context, query string, excludeUserID uint) ([]*models.UserBasicInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.UserBasicInfo
	for _, u := range r.s.users {
		if u.ID == excludeUserID {
			continue
		}
		if strings.Contains(u.Username, query) || strings.Contains(u.Nickname, query) {
			out = append(out, u.BasicInfo())
		}
	}
	return out, nil
}

func (r *memUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u.BasicInfo(), nil
}

func (r *memUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.UserBasicInfo, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u.BasicInfo())
		}
	}
	return out, nil
}

// memFriendshipRepository

type memFriendshipRepository struct{ s *memStore }

func (r *memFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failFriendshipCreate != nil {
		return r.s.failFriendshipCreate
	}
	key := pairString(friendship.UserID1, friendship.UserID2)
	if _, ok := r.s.friendships[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	friendship.ID = r.s.allocID()
	r.s.friendships[key] = friendship
	return nil
}

func (r *memFriendshipRepository) Delete(ctx context.Context, userID1, userID2 uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.friendships, pairString(userID1, userID2))
	return nil
}

func (r *memFriendshipRepository) AreUsersFriends(ctx context.Context, userID1, userID2 uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.friendships[pairString(userID1, userID2)]
	return ok, nil
}

func (r *memFriendshipRepository) GetFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uint
	for _, f := range r.s.friendships {
		if f.UserID1 == userID {
			out = append(out, f.UserID2)
		} else if f.UserID2 == userID {
			out = append(out, f.UserID1)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// memFriendRequestRepository

type memFriendRequestRepository struct{ s *memStore }

func (r *memFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := requestKey(request.RequesterUserID, request.RecipientUserID)
	if _, ok := r.s.requests[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	request.ID = r.s.allocID()
	request.CreatedAt = time.Now()
	r.s.requests[key] = request
	return nil
}

func (r *memFriendRequestRepository) Find(ctx context.Context, requesterID, recipientID uint) (*models.FriendRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[requestKey(requesterID, recipientID)]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (r *memFriendRequestRepository) Delete(ctx context.Context, requesterID, recipientID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.requests, requestKey(requesterID, recipientID))
	return nil
}

func (r *memFriendRequestRepository) DeleteBetween(ctx context.Context, userID1, userID2 uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.requests, requestKey(userID1, userID2))
	delete(r.s.requests, requestKey(userID2, userID1))
	return nil
}

func (r *memFriendRequestRepository) GetIncomingForUser(ctx context.Context, recipientID uint) ([]models.FriendRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FriendRequest
	for _, req := range r.s.requests {
		if req.RecipientUserID == recipientID {
			out = append(out, *req)
		}
	}
	return out, nil
}

// memBlockRepository

type memBlockRepository struct{ s *memStore }

func blockKey(blockerID, blockedID uint) string {
	return fmt.Sprintf("%d!%d", blockerID, blockedID)
}

func (r *memBlockRepository) Create(ctx context.Context, block *models.Block) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := blockKey(block.BlockerUserID, block.BlockedUserID)
	if _, ok := r.s.blocks[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	block.ID = r.s.allocID()
	r.s.blocks[key] = block
	return nil
}

func (r *memBlockRepository) Delete(ctx context.Context, blockerID, blockedID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.blocks, blockKey(blockerID, blockedID))
	return nil
}

func (r *memBlockRepository) IsBlocked(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.blocks[blockKey(blockerID, blockedID)]
	return ok, nil
}

func (r *memBlockRepository) GetBlockedIDs(ctx context.Context, blockerID uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uint
	for _, b := range r.s.blocks {
		if b.BlockerUserID == blockerID {
			out = append(out, b.BlockedUserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// memChatRepository

type memChatRepository struct{ s *memStore }

func copyChat(c *models.Chat) *models.Chat {
	copied := *c
	copied.Members = append([]models.ChatMember(nil), c.Members...)
	if c.AdminID != nil {
		adminID := *c.AdminID
		copied.AdminID = &adminID
	}
	if c.LatestMessageID != nil {
		latest := *c.LatestMessageID
		copied.LatestMessageID = &latest
	}
	return &copied
}

func (r *memChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failChatCreate != nil {
		return r.s.failChatCreate
	}
	if chat.PairKey != nil {
		for _, existing := range r.s.chats {
			if existing.PairKey != nil && *existing.PairKey == *chat.PairKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	chat.ID = r.s.allocID()
	chat.CreatedAt = time.Now()
	for i := range chat.Members {
		chat.Members[i].ID = r.s.allocID()
		chat.Members[i].ChatID = chat.ID
	}
	r.s.chats[chat.ID] = copyChat(chat)
	return nil
}

func (r *memChatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyChat(c), nil
}

func (r *memChatRepository) FindDirectChat(ctx context.Context, userA, userB uint) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := models.DirectPairKey(userA, userB)
	for _, c := range r.s.chats {
		if c.PairKey != nil && *c.PairKey == key {
			return copyChat(c), nil
		}
	}
	return nil, nil
}

func (r *memChatRepository) GetChatsForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Chat
	for _, c := range r.s.chats {
		if c.HasMember(userID) {
			out = append(out, copyChat(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memChatRepository) UpdateName(ctx context.Context, chatID uint, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Name = name
	return nil
}

func (r *memChatRepository) ClearAdmin(ctx context.Context, chatID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.AdminID = nil
	return nil
}

func (r *memChatRepository) SetLatestMessage(ctx context.Context, chatID uint, messageID *uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.LatestMessageID = messageID
	return nil
}

func (r *memChatRepository) AddMember(ctx context.Context, member *models.ChatMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[member.ChatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	member.ID = r.s.allocID()
	c.Members = append(c.Members, *member)
	return nil
}

func (r *memChatRepository) RemoveMember(ctx context.Context, chatID, userID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	remaining := c.Members[:0]
	for _, m := range c.Members {
		if m.UserID != userID {
			remaining = append(remaining, m)
		}
	}
	c.Members = remaining
	return nil
}

func (r *memChatRepository) Delete(ctx context.Context, chatID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chats[chatID]; !ok {
		return gorm.ErrRecordNotFound
	}
	deleted := make(map[uint]bool)
	for id, m := range r.s.messages {
		if m.ChatID == chatID {
			deleted[id] = true
			delete(r.s.messages, id)
		}
	}
	remaining := r.s.reactions[:0]
	for _, reaction := range r.s.reactions {
		if !deleted[reaction.MessageID] {
			remaining = append(remaining, reaction)
		}
	}
	r.s.reactions = remaining
	delete(r.s.chats, chatID)
	return nil
}

func (r *memChatRepository) NextMemberPosition(ctx context.Context, chatID uint) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	max := -1
	for _, m := range c.Members {
		if m.Position > max {
			max = m.Position
		}
	}
	return max + 1, nil
}

// memMessageRepository

type memMessageRepository struct{ s *memStore }

func (r *memMessageRepository) Create(ctx context.Context, message *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message.ID = r.s.allocID()
	message.CreatedAt = time.Now()
	copied := *message
	r.s.messages[message.ID] = &copied
	return nil
}

func (r *memMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	copied.Reactions = nil
	for _, reaction := range r.s.reactions {
		if reaction.MessageID == id {
			copied.Reactions = append(copied.Reactions, *reaction)
		}
	}
	return &copied, nil
}

func (r *memMessageRepository) UpdateBody(ctx context.Context, id uint, body string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Body = body
	return nil
}

func (r *memMessageRepository) Delete(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.messages, id)
	remaining := r.s.reactions[:0]
	for _, reaction := range r.s.reactions {
		if reaction.MessageID != id {
			remaining = append(remaining, reaction)
		}
	}
	r.s.reactions = remaining
	return nil
}

func (r *memMessageRepository) CountByChatID(ctx context.Context, chatID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) GetPageByChatID(ctx context.Context, chatID uint, beforeID uint, limit int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []*models.Message
	for _, m := range r.s.messages {
		if m.ChatID != chatID {
			continue
		}
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		copied := *m
		rows = append(rows, &copied)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *memMessageRepository) AddReaction(ctx context.Context, reaction *models.Reaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reactions {
		if existing.MessageID == reaction.MessageID && existing.UserID == reaction.UserID && existing.Type == reaction.Type {
			return gorm.ErrDuplicatedKey
		}
	}
	reaction.ID = r.s.allocID()
	copied := *reaction
	r.s.reactions = append(r.s.reactions, &copied)
	return nil
}

func (r *memMessageRepository) RemoveReaction(ctx context.Context, messageID, userID uint, reactionType string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	remaining := r.s.reactions[:0]
	for _, reaction := range r.s.reactions {
		if reaction.MessageID == messageID && reaction.UserID == userID && reaction.Type == reactionType {
			continue
		}
		remaining = append(remaining, reaction)
	}
	r.s.reactions = remaining
	return nil
}

func (r *memMessageRepository) GetReactions(ctx context.Context, messageID uint) ([]models.Reaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Reaction
	for _, reaction := range r.s.reactions {
		if reaction.MessageID == messageID {
			out = append(out, *reaction)
		}
	}
	return out, nil
}

// memTxManager snapshots the store before the callback and restores it
// when the callback fails, mirroring a rolled-back transaction.
type memTxManager struct {
	s     *memStore
	repos *storage.Repositories
}

func (m *memTxManager) WithTransaction(ctx context.Context, fn func(repos *storage.Repositories) error) error {
	snap := m.s.snapshot()
	if err := fn(m.repos); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) byType(t events.Type) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, ev := range d.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fixture wires every service against the shared in-memory store.
type fixture struct {
	store      *memStore
	repos      *storage.Repositories
	dispatcher *recordingDispatcher

	relationships RelationshipService
	chats         ChatService
	messages      MessageService
}

func newFixture() *fixture {
	store := newMemStore()
	repos := &storage.Repositories{
		Users:          &memUserRepository{s: store},
		Friendships:    &memFriendshipRepository{s: store},
		FriendRequests: &memFriendRequestRepository{s: store},
		Blocks:         &memBlockRepository{s: store},
		Chats:          &memChatRepository{s: store},
		Messages:       &memMessageRepository{s: store},
	}
	tx := &memTxManager{s: store, repos: repos}
	dispatcher := &recordingDispatcher{}
	pairLocks := NewPairLocker()

	chats := NewChatService(repos, tx, pairLocks, dispatcher)
	return &fixture{
		store:         store,
		repos:         repos,
		dispatcher:    dispatcher,
		relationships: NewRelationshipService(repos, tx, pairLocks),
		chats:         chats,
		messages:      NewMessageService(repos, chats, dispatcher),
	}
}

// addUser seeds a user and returns its ID.
func (f *fixture) addUser(username string) uint {
	u := &models.User{Username: username, PasswordHash: "x"}
	if err := f.repos.Users.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u.ID
}
