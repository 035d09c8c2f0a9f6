package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/presence"
	"relaychat/internal/services"
	ws "relaychat/internal/websocket"
)

// WebSocketHandler upgrades HTTP requests to websocket connections and binds
// each connection to a presence session.
type WebSocketHandler struct {
	wsHub       *ws.Hub
	presenceHub *presence.Hub
	chatService services.ChatService
	cfg         config.Config
	blacklist   auth.TokenBlacklist
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHub *ws.Hub, presenceHub *presence.Hub, cs services.ChatService, cfg config.Config, blacklist auth.TokenBlacklist) *WebSocketHandler {
	return &WebSocketHandler{
		wsHub:       wsHub,
		presenceHub: presenceHub,
		chatService: cs,
		cfg:         cfg,
		blacklist:   blacklist,
	}
}

// ServeWS handles GET /ws?token=... Anonymous connections are rejected; the
// token is the same JWT the HTTP API uses. Each accepted connection becomes
// one presence session, torn down when the connection closes for any reason.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing authentication token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("websocket connection rejected: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	sessionID := h.presenceHub.Connect(r.Context(), userID)
	onClose := func() {
		h.presenceHub.Disconnect(context.Background(), sessionID)
	}

	err = ws.ServeConnection(h.wsHub, sessionID, userID, h.handleFrame, onClose, w, r, h.cfg.WebSocket)
	if err != nil {
		// The upgrade failed, so the readPump cleanup will never run.
		h.presenceHub.Disconnect(context.Background(), sessionID)
		log.Printf("websocket upgrade for user %d failed: %v", userID, err)
	}
}

// handleFrame processes join and leave frames. A join is only honored for
// chats the user is a member of; everything a joined session then receives
// comes through room fanout.
func (h *WebSocketHandler) handleFrame(ctx context.Context, sessionID string, userID uint, frame ws.ClientFrame) error {
	switch frame.Action {
	case "join":
		chat, err := h.chatService.GetChat(ctx, frame.ChatID)
		if err != nil {
			if errors.Is(err, services.ErrChatNotFound) {
				return err
			}
			return fmt.Errorf("loading chat %d: %w", frame.ChatID, err)
		}
		if !chat.HasMember(userID) {
			return services.ErrNotMember
		}
		return h.presenceHub.JoinRoom(ctx, sessionID, frame.ChatID)
	case "leave":
		return h.presenceHub.LeaveRoom(ctx, sessionID, frame.ChatID)
	default:
		return fmt.Errorf("unknown action %q", frame.Action)
	}
}
