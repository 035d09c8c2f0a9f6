package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/middleware"
)

// Handlers bundles every HTTP handler the server mounts.
type Handlers struct {
	Auth         *AuthHandler
	User         *UserHandler
	Relationship *RelationshipHandler
	Chat         *ChatHandler
	Message      *MessageHandler
	WS           *WebSocketHandler
}

// NewRouter builds the full route table. Routes under /api/v1 require a
// valid bearer token; /auth and the websocket endpoint manage their own
// authentication.
func NewRouter(h Handlers, cfg config.Config, blacklist auth.TokenBlacklist) *mux.Router {
	r := mux.NewRouter()

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Auth.RegisterHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.Auth.LoginHandler).Methods(http.MethodPost)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(func(next http.Handler) http.Handler {
		return middleware.AuthMiddleware(next, cfg.Auth, blacklist)
	})

	apiRouter.HandleFunc("/auth/logout", h.Auth.LogoutHandler).Methods(http.MethodPost)

	apiRouter.HandleFunc("/users/me", h.User.GetMyProfileHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", h.User.UpdateMyProfileHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/search", h.User.SearchUsersHandler).Methods(http.MethodGet)

	apiRouter.HandleFunc("/friends", h.Relationship.ListFriendsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{userID:[0-9]+}", h.Relationship.RemoveFriendHandler).Methods(http.MethodDelete)

	frRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	frRouter.HandleFunc("", h.Relationship.SendFriendRequestHandler).Methods(http.MethodPost)
	frRouter.HandleFunc("/pending", h.Relationship.ListPendingRequestsHandler).Methods(http.MethodGet)
	frRouter.HandleFunc("/{userID:[0-9]+}/accept", h.Relationship.AcceptFriendRequestHandler).Methods(http.MethodPost)
	frRouter.HandleFunc("/{userID:[0-9]+}/reject", h.Relationship.RejectFriendRequestHandler).Methods(http.MethodPost)

	apiRouter.HandleFunc("/blocks", h.Relationship.BlockUserHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/blocks", h.Relationship.ListBlockedHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/blocks/{userID:[0-9]+}", h.Relationship.UnblockUserHandler).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/chats", h.Chat.ListChatsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats/direct", h.Chat.EnsureDirectChatHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/groups", h.Chat.CreateGroupHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}", h.Chat.GetChatHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}/name", h.Chat.RenameGroupHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}/members", h.Chat.AddMemberHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}/members/{userID:[0-9]+}", h.Chat.RemoveMemberHandler).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}/messages", h.Message.SendMessageHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/chats/{chatID:[0-9]+}/messages", h.Message.GetMessagesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/{messageID:[0-9]+}", h.Message.EditMessageHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/messages/{messageID:[0-9]+}", h.Message.DeleteMessageHandler).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/messages/{messageID:[0-9]+}/reactions", h.Message.ToggleReactionHandler).Methods(http.MethodPost)

	// Public profile view.
	r.HandleFunc("/users/{userID:[0-9]+}", h.User.GetUserProfileHandler).Methods(http.MethodGet)

	r.HandleFunc(cfg.Server.WebSocketPath, h.WS.ServeWS).Methods(http.MethodGet)

	return r
}
