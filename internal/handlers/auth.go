package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/metrics"
	"github.com/mohitverma010602/just-chat/internal/models"
)

const refreshTokenCookie = "refreshToken"

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body. Username or email plus
// password.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// TokenResponse carries a fresh token pair. The same tokens are also set as
// httpOnly cookies for browser clients.
type TokenResponse struct {
	User         *models.User `json:"user,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// Register handles user registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidUsername(req.Username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-30 characters (letters, digits, . _ -)")
		return
	}
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 6 {
		h.Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	fullName := sanitizeName(req.FullName)
	if fullName == "" {
		h.Error(w, http.StatusBadRequest, "full_name is required")
		return
	}

	if existing, err := h.store.GetUserByUsername(r.Context(), req.Username); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	} else if existing != nil {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}
	if existing, err := h.store.GetUserByEmail(r.Context(), req.Email); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	} else if existing != nil {
		h.Error(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	// Role is always "user" at registration; elevation is an operator action.
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	h.JSON(w, http.StatusCreated, user)
}

// Login authenticates by username or email and issues a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if (req.Username == "" && req.Email == "") || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "username/email and password are required")
		return
	}

	var user *models.User
	var err error
	if req.Username != "" {
		user, err = h.store.GetUserByUsername(r.Context(), req.Username)
	} else {
		user, err = h.store.GetUserByEmail(r.Context(), req.Email)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueTokens(w, r, user, true)
}

// Refresh rotates a refresh token into a fresh token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokenString := refreshCredentialFromRequest(r)
	if tokenString == "" {
		h.Error(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	userID, tokenID, err := h.tokens.ParseRefreshToken(tokenString)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if h.redis != nil && !h.redis.IsRefreshTokenValid(r.Context(), userID.String(), tokenID) {
		h.Error(w, http.StatusUnauthorized, "refresh token revoked")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// Rotation: the presented token dies with this exchange.
	if h.redis != nil {
		_ = h.redis.RevokeRefreshToken(r.Context(), userID.String(), tokenID)
	}

	h.issueTokens(w, r, user, false)
}

// Logout revokes the presented refresh token and clears auth cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if tokenString := refreshCredentialFromRequest(r); tokenString != "" && h.redis != nil {
		if userID, tokenID, err := h.tokens.ParseRefreshToken(tokenString); err == nil {
			_ = h.redis.RevokeRefreshToken(r.Context(), userID.String(), tokenID)
		}
	}

	h.clearAuthCookies(w)
	h.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// issueTokens generates a token pair, allowlists the refresh token, and
// writes both cookie and JSON responses.
func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, user *models.User, includeUser bool) {
	accessToken, err := h.tokens.GenerateAccessToken(user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	refreshToken, tokenID, err := h.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	if h.redis != nil {
		if err := h.redis.StoreRefreshToken(r.Context(), user.ID.String(), tokenID, h.cfg.RefreshTokenTTL); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to store session")
			return
		}
	}

	secure := !h.cfg.IsDevelopment()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.cfg.AccessTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(h.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	resp := TokenResponse{AccessToken: accessToken, RefreshToken: refreshToken}
	if includeUser {
		user.Online = h.registry.IsOnline(user.ID.String())
		resp.User = user
	}
	h.JSON(w, http.StatusOK, resp)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	secure := !h.cfg.IsDevelopment()
	http.SetCookie(w, &http.Cookie{
		Name: auth.AccessTokenCookie, Value: "", Path: "/",
		MaxAge: -1, HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshTokenCookie, Value: "", Path: "/api/v1/auth",
		MaxAge: -1, HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
}

// refreshCredentialFromRequest reads the refresh token from the cookie or a
// JSON body {"refresh_token": "..."}.
func refreshCredentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}
