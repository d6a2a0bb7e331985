package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/service"
)

// RegisterPlayer creates a player with default ratings
func (h *Handler) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterPlayerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.service.RegisterPlayer(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register player", err)
		return
	}
	h.writeCreated(w, p)
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPlayer(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeServiceError(w, "get player", err)
		return
	}
	h.writeSuccess(w, p)
}

// ListNotifications returns a player's inbox
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	items, err := h.service.ListNotifications(r.Context(), chi.URLParam(r, "playerID"), unread, limit)
	if err != nil {
		h.writeServiceError(w, "list notifications", err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	h.writeSuccess(w, items)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")
	if err := h.service.MarkNotificationRead(r.Context(), id); err != nil {
		h.writeServiceError(w, "mark notification read", err)
		return
	}
	h.writeSuccess(w, map[string]string{"notification_id": id, "status": "read"})
}

// GetLeaderboard returns the top players of a time control
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	tc := domain.TimeControl(chi.URLParam(r, "timeControl"))

	entries, err := h.service.Leaderboard(r.Context(), tc, limit)
	if err != nil {
		h.writeServiceError(w, "leaderboard", err)
		return
	}
	if entries == nil {
		entries = []domain.RatingEntry{}
	}
	h.writeSuccess(w, map[string]interface{}{
		"time_control": tc,
		"entries":      entries,
	})
}

// GetPlayerRank returns one player's position on a leaderboard
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	tc := domain.TimeControl(chi.URLParam(r, "timeControl"))
	entry, err := h.service.PlayerRank(r.Context(), tc, chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeServiceError(w, "player rank", err)
		return
	}
	h.writeSuccess(w, entry)
}

// PreviewPairings computes pairings for caller-supplied entrants
func (h *Handler) PreviewPairings(w http.ResponseWriter, r *http.Request) {
	var req service.PreviewRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	pairings, err := h.service.PreviewPairings(req)
	if err != nil {
		h.writeServiceError(w, "preview pairings", err)
		return
	}
	h.writeSuccess(w, pairings)
}
