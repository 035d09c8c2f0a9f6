package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"relaychat/internal/middleware"
	"relaychat/internal/services"
)

// MessageHandler handles HTTP requests for messages and reactions.
type MessageHandler struct {
	messageService services.MessageService
	chatService    services.ChatService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(ms services.MessageService, cs services.ChatService) *MessageHandler {
	return &MessageHandler{messageService: ms, chatService: cs}
}

// SendMessagePayload defines the JSON body for sending a message.
type SendMessagePayload struct {
	Body string `json:"body"`
}

// EditMessagePayload defines the JSON body for editing a message.
type EditMessagePayload struct {
	Body string `json:"body"`
}

// ReactionTogglePayload defines the JSON body for toggling a reaction.
type ReactionTogglePayload struct {
	Type string `json:"type"`
}

// SendMessageHandler handles POST /api/v1/chats/{chatID}/messages.
func (h *MessageHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
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

	var payload SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if payload.Body == "" {
		writeJSONError(w, "missing message body", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.Append(r.Context(), chatID, actorID, payload.Body)
	if err != nil {
		h.writeMessageError(w, "sending message to chat", chatID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}

// GetMessagesHandler handles GET /api/v1/chats/{chatID}/messages, with
// optional cursor and limit query parameters. Pages run newest first; the
// response carries the cursor for the next older page.
func (h *MessageHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
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
		h.writeMessageError(w, "fetching chat", chatID, actorID, err)
		return
	}
	if !chat.HasMember(actorID) {
		writeJSONError(w, services.ErrNotMember.Error(), http.StatusForbidden)
		return
	}

	cursor := queryUint(r, "cursor", 0)
	limit := int(queryUint(r, "limit", 0))

	page, err := h.messageService.Page(r.Context(), chatID, cursor, limit)
	if err != nil {
		h.writeMessageError(w, "paging messages of chat", chatID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

// EditMessageHandler handles PUT /api/v1/messages/{messageID}.
func (h *MessageHandler) EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeJSONError(w, "invalid message ID", http.StatusBadRequest)
		return
	}

	var payload EditMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if payload.Body == "" {
		writeJSONError(w, "missing message body", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.Edit(r.Context(), messageID, payload.Body, actorID)
	if err != nil {
		h.writeMessageError(w, "editing message", messageID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, msg)
}

// DeleteMessageHandler handles DELETE /api/v1/messages/{messageID}.
func (h *MessageHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeJSONError(w, "invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.messageService.Remove(r.Context(), messageID, actorID); err != nil {
		h.writeMessageError(w, "deleting message", messageID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// ToggleReactionHandler handles POST /api/v1/messages/{messageID}/reactions.
// Toggling the same reaction twice restores the original state.
func (h *MessageHandler) ToggleReactionHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}
	messageID, ok := pathID(r, "messageID")
	if !ok {
		writeJSONError(w, "invalid message ID", http.StatusBadRequest)
		return
	}

	var payload ReactionTogglePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if payload.Type == "" {
		writeJSONError(w, "missing reaction type", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.ToggleReaction(r.Context(), messageID, actorID, payload.Type)
	if err != nil {
		h.writeMessageError(w, "toggling reaction on message", messageID, actorID, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, msg)
}

func (h *MessageHandler) writeMessageError(w http.ResponseWriter, action string, id, actorID uint, err error) {
	switch {
	case errors.Is(err, services.ErrChatNotFound), errors.Is(err, services.ErrMessageNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotMember), errors.Is(err, services.ErrNotAuthor), errors.Is(err, services.ErrNotAuthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("%s %d by user %d failed: %v", action, id, actorID, err)
		writeJSONError(w, "message operation failed", http.StatusInternalServerError)
	}
}
