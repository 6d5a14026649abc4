package handlers

import (
	"net/http"
)

// StatsResponse represents platform statistics for operators.
type StatsResponse struct {
	TotalUsers      int64 `json:"total_users"`
	TotalMessages   int64 `json:"total_messages"`
	OnlineUsers     int   `json:"online_users"`
	LiveConnections int   `json:"live_connections"`
}

// Stats returns platform statistics. Admin only.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.store.CountUsers(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	totalMessages, err := h.store.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:      totalUsers,
		TotalMessages:   totalMessages,
		OnlineUsers:     h.registry.OnlineCount(),
		LiveConnections: h.registry.ConnectionCount(),
	})
}
