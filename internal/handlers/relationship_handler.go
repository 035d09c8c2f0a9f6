package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"relaychat/internal/middleware"
	"relaychat/internal/services"
)

// RelationshipHandler handles HTTP requests for friend requests, friendships
// and blocks. Every route requires authentication; the actor of each
// operation is always the authenticated user.
type RelationshipHandler struct {
	relService services.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(rs services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relService: rs}
}

// TargetUserPayload defines the JSON body for operations aimed at another
// user.
type TargetUserPayload struct {
	UserID uint `json:"userId"`
}

func decodeTargetUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	var payload TargetUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return 0, false
	}
	defer r.Body.Close()
	if payload.UserID == 0 {
		writeJSONError(w, "missing target user ID (userId)", http.StatusBadRequest)
		return 0, false
	}
	return payload.UserID, true
}

// SendFriendRequestHandler handles POST /api/v1/friend-requests.
func (h *RelationshipHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	targetID, ok := decodeTargetUser(w, r)
	if !ok {
		return
	}

	err := h.relService.SendFriendRequest(r.Context(), actorID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSelfReference):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrUserNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrAlreadyConnected):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrBlocked):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("friend request from %d to %d failed: %v", actorID, targetID, err)
			writeJSONError(w, "could not send friend request", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "friend request sent"})
}

// AcceptFriendRequestHandler handles POST /api/v1/friend-requests/{userID}/accept,
// where {userID} is the requester whose pending request is accepted. The
// direct chat for the new friendship is returned.
func (h *RelationshipHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	requesterID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid requester ID", http.StatusBadRequest)
		return
	}

	chat, err := h.relService.AcceptFriendRequest(r.Context(), actorID, requesterID)
	if err != nil {
		if errors.Is(err, services.ErrNoSuchRequest) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		if errors.Is(err, services.ErrBlocked) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
			return
		}
		log.Printf("accepting friend request %d -> %d failed: %v", requesterID, actorID, err)
		writeJSONError(w, "could not accept friend request", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, chat)
}

// RejectFriendRequestHandler handles POST /api/v1/friend-requests/{userID}/reject.
func (h *RelationshipHandler) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	requesterID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid requester ID", http.StatusBadRequest)
		return
	}

	if err := h.relService.RejectFriendRequest(r.Context(), actorID, requesterID); err != nil {
		if errors.Is(err, services.ErrNoSuchRequest) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("rejecting friend request %d -> %d failed: %v", requesterID, actorID, err)
		writeJSONError(w, "could not reject friend request", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "friend request rejected"})
}

// ListPendingRequestsHandler handles GET /api/v1/friend-requests/pending.
func (h *RelationshipHandler) ListPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	requests, err := h.relService.ListIncomingRequests(r.Context(), actorID)
	if err != nil {
		log.Printf("listing pending requests for user %d failed: %v", actorID, err)
		writeJSONError(w, "could not list pending requests", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListFriendsHandler handles GET /api/v1/friends.
func (h *RelationshipHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	friends, err := h.relService.ListFriends(r.Context(), actorID)
	if err != nil {
		log.Printf("listing friends for user %d failed: %v", actorID, err)
		writeJSONError(w, "could not list friends", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, friends)
}

// RemoveFriendHandler handles DELETE /api/v1/friends/{userID}.
func (h *RelationshipHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	otherID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.relService.RemoveFriend(r.Context(), actorID, otherID); err != nil {
		if errors.Is(err, services.ErrNotFriends) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("removing friend %d for user %d failed: %v", otherID, actorID, err)
		writeJSONError(w, "could not remove friend", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "friend removed"})
}

// BlockUserHandler handles POST /api/v1/blocks.
func (h *RelationshipHandler) BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	targetID, ok := decodeTargetUser(w, r)
	if !ok {
		return
	}

	err := h.relService.BlockUser(r.Context(), actorID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSelfReference):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrUserNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrAlreadyBlocked):
			writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("blocking user %d by %d failed: %v", targetID, actorID, err)
			writeJSONError(w, "could not block user", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "user blocked"})
}

// UnblockUserHandler handles DELETE /api/v1/blocks/{userID}.
func (h *RelationshipHandler) UnblockUserHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	targetID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.relService.UnblockUser(r.Context(), actorID, targetID); err != nil {
		if errors.Is(err, services.ErrNotBlocked) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("unblocking user %d by %d failed: %v", targetID, actorID, err)
		writeJSONError(w, "could not unblock user", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "user unblocked"})
}

// ListBlockedHandler handles GET /api/v1/blocks.
func (h *RelationshipHandler) ListBlockedHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	blocked, err := h.relService.ListBlocked(r.Context(), actorID)
	if err != nil {
		log.Printf("listing blocked users for %d failed: %v", actorID, err)
		writeJSONError(w, "could not list blocked users", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, blocked)
}
