package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/services"
)

// AuthHandler handles registration, login and logout requests.
type AuthHandler struct {
	authService services.AuthService
	authCfg     config.AuthConfig
	blacklist   auth.TokenBlacklist
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(as services.AuthService, authCfg config.AuthConfig, blacklist auth.TokenBlacklist) *AuthHandler {
	return &AuthHandler{authService: as, authCfg: authCfg, blacklist: blacklist}
}

// RegisterPayload defines the expected JSON body for registration.
type RegisterPayload struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginPayload defines the expected JSON body for login.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

// RegisterHandler handles POST /auth/register.
func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.Username == "" || payload.Password == "" {
		writeJSONError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Register(r.Context(), payload.Username, payload.Nickname, payload.Email, payload.Phone, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserAlreadyExists) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("registration for %q failed: %v", payload.Username, err)
		writeJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusCreated, user)
}

// LoginHandler handles POST /auth/login. The username field also accepts an
// email address.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	token, user, err := h.authService.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeJSONError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		log.Printf("login for %q failed: %v", payload.Username, err)
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// LogoutHandler handles POST /api/v1/auth/logout. The route sits behind the
// auth middleware, so the bearer token is known to be valid; its jti is
// blacklisted until the token's original expiry.
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := h.bearerClaims(r)
	if err != nil {
		writeJSONError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if err := h.authService.Logout(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		log.Printf("logout for user %d failed: %v", claims.UserID, err)
		writeJSONError(w, "logout failed", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) bearerClaims(r *http.Request) (*auth.Claims, error) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, errors.New("invalid authorization header")
	}
	return auth.ValidateToken(r.Context(), parts[1], h.authCfg.JWTSecretKey, h.blacklist)
}
