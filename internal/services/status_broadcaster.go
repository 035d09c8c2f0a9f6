package services

import (
	"context"
	"log"
	"time"

	"relaychat/internal/events"
	"relaychat/internal/models"
	"relaychat/internal/storage"
)

// StatusBroadcaster is the presence hub's status sink: it persists the new
// status on the user record and dispatches the StatusChanged event to the
// interested parties, which are the user's own sessions and their friends'.
type StatusBroadcaster struct {
	userRepo       storage.UserRepository
	friendshipRepo storage.FriendshipRepository
	dispatcher     EventDispatcher
}

// NewStatusBroadcaster creates a new StatusBroadcaster.
func NewStatusBroadcaster(userRepo storage.UserRepository, friendshipRepo storage.FriendshipRepository, dispatcher EventDispatcher) *StatusBroadcaster {
	return &StatusBroadcaster{
		userRepo:       userRepo,
		friendshipRepo: friendshipRepo,
		dispatcher:     dispatcher,
	}
}

// StatusChanged implements presence.StatusSink. Persistence failures are
// logged, not propagated: a status row that lags behind must not block the
// connection lifecycle.
func (b *StatusBroadcaster) StatusChanged(ctx context.Context, userID uint, online bool) {
	status := models.UserStatusOffline
	if online {
		status = models.UserStatusOnline
	}

	if err := b.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		log.Printf("status: failed to persist %s for user %d: %v", status, userID, err)
	}
	if !online {
		now := time.Now()
		user, err := b.userRepo.GetByID(ctx, userID)
		if err == nil {
			user.LastSeenAt = &now
			if err := b.userRepo.Update(ctx, user); err != nil {
				log.Printf("status: failed to persist last-seen for user %d: %v", userID, err)
			}
		}
	}

	targets := []uint{userID}
	friendIDs, err := b.friendshipRepo.GetFriendIDs(ctx, userID)
	if err != nil {
		log.Printf("status: failed to load friends of user %d: %v", userID, err)
	} else {
		targets = append(targets, friendIDs...)
	}

	if b.dispatcher != nil {
		b.dispatcher.Dispatch(ctx, events.Event{
			Type:          events.StatusChanged,
			ActorID:       userID,
			TargetUserIDs: targets,
			Name:          events.EventUserStatusUpdated,
			Payload:       events.StatusPayload{UserID: userID, Status: string(status)},
		})
	}
}
