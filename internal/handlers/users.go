package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohitverma010602/just-chat/internal/api/middleware"
)

// ProfileResponse represents a user profile in API responses.
type ProfileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar,omitempty"`
	About    string `json:"about,omitempty"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen,omitempty"`
	JoinedAt string `json:"joined_at"`
}

// Me returns the authenticated user's own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.profile(w, r, identity.UserID)
}

// GetUser returns a user's public profile, including derived presence.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}
	h.profile(w, r, id)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	// Presence is derived from the registry, never from a stored flag.
	online := h.registry.IsOnline(user.ID.String())

	resp := ProfileResponse{
		ID:       user.ID.String(),
		Username: user.Username,
		FullName: user.FullName,
		Role:     string(user.Role),
		Avatar:   user.Avatar,
		About:    user.About,
		Online:   online,
		JoinedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !online && h.redis != nil {
		if lastSeen, err := h.redis.LastSeen(r.Context(), user.ID.String()); err == nil && !lastSeen.IsZero() {
			resp.LastSeen = lastSeen.UTC().Format(time.RFC3339)
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
