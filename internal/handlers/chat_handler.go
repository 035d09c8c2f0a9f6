package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"relaychat/internal/middleware"
	"relaychat/internal/services"
)

// ChatHandler handles HTTP requests for chats and group membership.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(cs services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: cs}
}

// CreateGroupPayload defines the JSON body for creating a group chat.
type CreateGroupPayload struct {
	Name      string `json:"name"`
	MemberIDs []uint `json:"memberIds"`
}

// RenamePayload defines the JSON body for renaming a group chat.
type RenamePayload struct {
	Name string `json:"name"`
}

// EnsureDirectChatHandler handles POST /api/v1/chats/direct. It returns the
// direct chat between the caller and the target user, creating it when
// missing; 201 signals a fresh chat and 200 an existing one.
func (h *ChatHandler) EnsureDirectChatHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	targetID, ok := decodeTargetUser(w, r)
	if !ok {
		return
	}

	chat, created, err := h.chatService.EnsureDirectChat(r.Context(), actorID, targetID)
	if err != nil {
		if errors.Is(err, services.ErrSelfReference) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("ensuring direct chat %d/%d failed: %v", actorID, targetID, err)
		writeJSONError(w, "could not open direct chat", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, chat)
}

// CreateGroupHandler handles POST /api/v1/chats/groups. The caller becomes
// the group admin and is always a member.
func (h *ChatHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	var payload CreateGroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	chat, err := h.chatService.CreateGroup(r.Context(), payload.Name, payload.MemberIDs, actorID)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMembership) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("creating group %q by user %d failed: %v", payload.Name, actorID, err)
		writeJSONError(w, "could not create group", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusCreated, chat)
}

// RenameGroupHandler handles PUT /api/v1/chats/{chatID}/name.
func (h *ChatHandler) RenameGroupHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	chatID, ok := pathID(r, "chatID")
	if !ok {
		writeJSONError(w, "invalid chat ID", http.StatusBadRequest)
		return
	}

	var payload RenamePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if payload.Name == "" {
		writeJSONError(w, "missing chat name", http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.RenameGroup(r.Context(), actorID, chatID, payload.Name)
	if err != nil {
		h.writeChatError(w, "renaming chat", chatID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chat)
}

// AddMemberHandler handles POST /api/v1/chats/{chatID}/members.
func (h *ChatHandler) AddMemberHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	chatID, ok := pathID(r, "chatID")
	if !ok {
		writeJSONError(w, "invalid chat ID", http.StatusBadRequest)
		return
	}
	targetID, ok := decodeTargetUser(w, r)
	if !ok {
		return
	}

	chat, err := h.chatService.AddMember(r.Context(), actorID, chatID, targetID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.writeChatError(w, "adding member to chat", chatID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chat)
}

// RemoveMemberHandler handles DELETE /api/v1/chats/{chatID}/members/{userID}.
func (h *ChatHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	chatID, ok := pathID(r, "chatID")
	if !ok {
		writeJSONError(w, "invalid chat ID", http.StatusBadRequest)
		return
	}
	targetID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.RemoveMember(r.Context(), actorID, chatID, targetID)
	if err != nil {
		h.writeChatError(w, "removing member from chat", chatID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chat)
}

// ListChatsHandler handles GET /api/v1/chats.
func (h *ChatHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	chats, err := h.chatService.ListChatsForUser(r.Context(), actorID)
	if err != nil {
		log.Printf("listing chats for user %d failed: %v", actorID, err)
		writeJSONError(w, "could not list chats", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, chats)
}

// GetChatHandler handles GET /api/v1/chats/{chatID}. Only members may view a
// chat.
func (h *ChatHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	chatID, ok := pathID(r, "chatID")
	if !ok {
		writeJSONError(w, "invalid chat ID", http.StatusBadRequest)
		return
	}

	chat, err := h.chatService.GetChat(r.Context(), chatID)
	if err != nil {
		h.writeChatError(w, "fetching chat", chatID, actorID, err)
		return
	}
	if !chat.HasMember(actorID) {
		writeJSONError(w, services.ErrNotMember.Error(), http.StatusForbidden)
		return
	}
	writeJSONResponse(w, http.StatusOK, chat)
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, action string, chatID, actorID uint, err error) {
	switch {
	case errors.Is(err, services.ErrChatNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotGroup):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotMember), errors.Is(err, services.ErrNotAuthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("%s %d by user %d failed: %v", action, chatID, actorID, err)
		writeJSONError(w, "chat operation failed", http.StatusInternalServerError)
	}
}
