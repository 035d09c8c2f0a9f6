package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"relaychat/internal/middleware"
	"relaychat/internal/services"
)

// UserHandler handles HTTP requests for user profiles and search.
type UserHandler struct {
	userService services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us services.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// UpdateProfilePayload defines the expected JSON body for profile updates.
// Empty fields are left unchanged.
type UpdateProfilePayload struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	Bio       string `json:"bio"`
}

// GetMyProfileHandler handles GET /api/v1/users/me.
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("fetching profile for user %d failed: %v", userID, err)
		writeJSONError(w, "could not fetch profile", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileHandler handles PUT /api/v1/users/me.
func (h *UserHandler) UpdateMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	var payload UpdateProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.userService.UpdateUserProfile(r.Context(), userID, payload.Nickname, payload.AvatarURL, payload.Bio)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("updating profile for user %d failed: %v", userID, err)
		writeJSONError(w, "could not update profile", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetUserProfileHandler handles GET /users/{userID}, the public profile view.
func (h *UserHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("fetching profile for user %d failed: %v", userID, err)
		writeJSONError(w, "could not fetch profile", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user.BasicInfo())
}

// SearchUsersHandler handles GET /api/v1/users/search?q=...
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "could not identify user", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSONError(w, "missing search query (q)", http.StatusBadRequest)
		return
	}

	results, err := h.userService.SearchUsers(r.Context(), query, userID)
	if err != nil {
		log.Printf("user search %q failed: %v", query, err)
		writeJSONError(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, results)
}
