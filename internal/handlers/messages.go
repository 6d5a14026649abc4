package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohitverma010602/just-chat/internal/api/middleware"
	"github.com/mohitverma010602/just-chat/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryResponse represents a page of conversation history, newest first.
type HistoryResponse struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// History returns the conversation between the authenticated user and a
// peer, newest first. This is the store-and-forward read path: messages that
// could not be pushed while the user was offline reappear here with status
// "sent".
//
// Query parameters: limit (default 50, max 200) and before (RFC 3339), for
// paging further back.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peerID, err := uuid.Parse(chi.URLParam(r, "peerID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid peer ID format")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		before, err = time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid before timestamp, want RFC 3339")
			return
		}
	}

	messages, err := h.store.History(r.Context(), identity.UserID.String(), peerID.String(), limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		Messages: messages,
		HasMore:  len(messages) == limit,
	})
}
