package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/validation"
)

// CreateTournament handles tournament creation
func (h *Handler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTournamentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	t, err := h.service.CreateTournament(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create tournament", err)
		return
	}
	h.writeCreated(w, t)
}

// ListTournaments returns tournaments, filtered by ?status=
func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := h.service.ListTournaments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, "list tournaments", err)
		return
	}
	if tournaments == nil {
		tournaments = []domain.Tournament{}
	}
	h.writeSuccess(w, tournaments)
}

// JoinTournament adds a player by join code
func (h *Handler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	var req domain.JoinTournamentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	participant, err := h.service.JoinByCode(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "join tournament", err)
		return
	}
	h.writeCreated(w, participant)
}

// GetTournament returns a tournament and its participants
func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "get tournament", err)
		return
	}
	h.writeSuccess(w, details)
}

// StartTournament creates the first round
func (h *Handler) StartTournament(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.StartTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "start tournament", err)
		return
	}
	h.writeSuccess(w, result)
}

// CancelTournament stops a tournament
func (h *Handler) CancelTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.CancelTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "cancel tournament", err)
		return
	}
	h.writeSuccess(w, t)
}

// AdvanceTournament re-runs the round check
func (h *Handler) AdvanceTournament(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.AdvanceTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "advance tournament", err)
		return
	}
	h.writeSuccess(w, result)
}

// ListMatches returns a tournament's matches, optionally for one ?round=
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	round, err := intQuery(r, "round", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	matches, err := h.service.ListMatches(r.Context(), chi.URLParam(r, "tournamentID"), round)
	if err != nil {
		h.writeServiceError(w, "list matches", err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	h.writeSuccess(w, matches)
}

// GetStandings returns the score table
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.Standings(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		h.writeServiceError(w, "standings", err)
		return
	}
	h.writeSuccess(w, table)
}

// GetMatch returns one match
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeServiceError(w, "get match", err)
		return
	}
	h.writeSuccess(w, m)
}

// ReportResult records the end of a game
func (h *Handler) ReportResult(w http.ResponseWriter, r *http.Request) {
	var outcome domain.GameOutcome
	if err := decodeJSON(r, &outcome); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	matchID := chi.URLParam(r, "matchID")
	if outcome.MatchID == "" {
		outcome.MatchID = matchID
	}
	if outcome.MatchID != matchID {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: match_id does not match the URL", domain.ErrInvalidRequest))
		return
	}
	if err := validation.Struct(&outcome); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.service.ReportResult(r.Context(), outcome)
	if err != nil {
		h.writeServiceError(w, "report result", err)
		return
	}
	h.writeSuccess(w, report)
}
