package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/events"
	"github.com/chess-tournaments/internal/memory"
	"github.com/chess-tournaments/internal/progression"
	"github.com/chess-tournaments/internal/service"
	"github.com/chess-tournaments/internal/websocket"
)

type testAPI struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	fanout := events.NewFanout(logger, events.NewInboxSink(store), hub)
	engine := progression.NewEngine(store, fanout, logger).WithSeed(7)
	cfg := &config.TournamentConfig{
		CodeLength:                6,
		CodeAttempts:              5,
		DefaultMaxParticipants:    8,
		DefaultTimeControlMinutes: 5,
	}
	limits := &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}
	svc := service.NewTournamentService(store, store, engine, fanout, cfg, limits, logger)

	h := NewHandler(svc, hub, logger)
	h.AddReadinessCheck("storage", store)
	return &testAPI{t: t, handler: h, router: h.Router()}
}

// do sends a request and decodes the envelope; data is decoded into out when non-nil
func (a *testAPI) do(method, path string, body interface{}, out interface{}) (int, APIResponse) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		a.t.Fatalf("%s %s: decoding %q: %v", method, path, rec.Body.String(), err)
	}
	if out != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			a.t.Fatalf("%s %s: decoding data: %v", method, path, err)
		}
	}
	return rec.Code, APIResponse{Success: raw.Success, Error: raw.Error}
}

func (a *testAPI) mustDo(method, path string, body interface{}, wantStatus int, out interface{}) {
	a.t.Helper()
	if status, resp := a.do(method, path, body, out); status != wantStatus {
		a.t.Fatalf("%s %s = %d (%s), want %d", method, path, status, resp.Error, wantStatus)
	}
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t)
	var data map[string]string
	api.mustDo(http.MethodGet, "/health", nil, http.StatusOK, &data)
	if data["status"] != "healthy" {
		t.Errorf("status = %q", data["status"])
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyCheck(t *testing.T) {
	api := newTestAPI(t)
	api.mustDo(http.MethodGet, "/ready", nil, http.StatusOK, nil)

	api.handler.AddReadinessCheck("redis", downPinger{})
	var data map[string]string
	api.mustDo(http.MethodGet, "/ready", nil, http.StatusServiceUnavailable, &data)
	if data["redis"] != "unavailable" || data["storage"] != "ok" {
		t.Errorf("readiness = %v", data)
	}
}

func TestTournamentFlow(t *testing.T) {
	api := newTestAPI(t)

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		api.mustDo(http.MethodPost, "/api/v1/players", domain.RegisterPlayerRequest{ID: id, Username: id}, http.StatusCreated, nil)
	}
	api.mustDo(http.MethodPost, "/api/v1/players", domain.RegisterPlayerRequest{ID: "alice", Username: "alice"}, http.StatusConflict, nil)

	var tour domain.Tournament
	api.mustDo(http.MethodPost, "/api/v1/tournaments", domain.CreateTournamentRequest{
		Name:          "Club Knockout",
		CreatedBy:     "alice",
		Format:        "elimination",
		PairingSystem: "rating",
	}, http.StatusCreated, &tour)
	if tour.Code == "" || tour.Status != domain.StatusUpcoming {
		t.Fatalf("created tournament = %+v", tour)
	}

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		api.mustDo(http.MethodPost, "/api/v1/tournaments/join", domain.JoinTournamentRequest{Code: tour.Code, PlayerID: id}, http.StatusCreated, nil)
	}
	api.mustDo(http.MethodPost, "/api/v1/tournaments/join", domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "bob"}, http.StatusConflict, nil)

	base := "/api/v1/tournaments/" + tour.ID
	var started domain.ProgressionResult
	api.mustDo(http.MethodPost, base+"/start", nil, http.StatusOK, &started)
	if started.MatchesCreated != 2 {
		t.Fatalf("start = %+v, want 2 matches", started)
	}
	api.mustDo(http.MethodPost, base+"/start", nil, http.StatusConflict, nil)

	var round1 []domain.Match
	api.mustDo(http.MethodGet, base+"/matches?round=1", nil, http.StatusOK, &round1)
	if len(round1) != 2 {
		t.Fatalf("round 1 has %d matches", len(round1))
	}

	for _, m := range round1 {
		var report domain.ReportOutcome
		api.mustDo(http.MethodPost, "/api/v1/matches/"+m.ID+"/result", map[string]string{"result": "white_win"}, http.StatusOK, &report)
		if report.MatchID != m.ID || report.Ratings == nil {
			t.Errorf("report = %+v", report)
		}
	}

	var final []domain.Match
	api.mustDo(http.MethodGet, base+"/matches?round=2", nil, http.StatusOK, &final)
	if len(final) != 1 {
		t.Fatalf("final round has %d matches", len(final))
	}
	var report domain.ReportOutcome
	api.mustDo(http.MethodPost, "/api/v1/matches/"+final[0].ID+"/result", domain.GameOutcome{MatchID: final[0].ID, Result: domain.ResultBlackWin}, http.StatusOK, &report)
	if report.Progression == nil || !report.Progression.TournamentComplete {
		t.Errorf("final report = %+v", report)
	}

	var details struct {
		Status       domain.TournamentStatus `json:"status"`
		Participants []domain.Participant    `json:"participants"`
	}
	api.mustDo(http.MethodGet, base, nil, http.StatusOK, &details)
	if details.Status != domain.StatusCompleted || len(details.Participants) != 4 {
		t.Errorf("details = %+v", details)
	}

	var table []domain.Standing
	api.mustDo(http.MethodGet, base+"/standings", nil, http.StatusOK, &table)
	if len(table) != 4 || table[0].PlayerID != final[0].BlackPlayerID {
		t.Errorf("standings = %+v, want %s first", table, final[0].BlackPlayerID)
	}

	var inbox []domain.Notification
	api.mustDo(http.MethodGet, "/api/v1/players/alice/notifications?unread=true", nil, http.StatusOK, &inbox)
	if len(inbox) == 0 {
		t.Fatal("alice has no notifications")
	}
	api.mustDo(http.MethodPost, "/api/v1/notifications/"+inbox[0].ID+"/read", nil, http.StatusOK, nil)
	var after []domain.Notification
	api.mustDo(http.MethodGet, "/api/v1/players/alice/notifications?unread=true", nil, http.StatusOK, &after)
	if len(after) != len(inbox)-1 {
		t.Errorf("unread after marking = %d, want %d", len(after), len(inbox)-1)
	}

	var board struct {
		Entries []domain.RatingEntry `json:"entries"`
	}
	api.mustDo(http.MethodGet, "/api/v1/leaderboards/blitz?limit=2", nil, http.StatusOK, &board)
	if len(board.Entries) != 2 || board.Entries[0].Rating <= board.Entries[1].Rating {
		t.Errorf("leaderboard = %+v", board.Entries)
	}
	var rank domain.RatingEntry
	api.mustDo(http.MethodGet, "/api/v1/leaderboards/blitz/players/"+board.Entries[0].PlayerID, nil, http.StatusOK, &rank)
	if rank.Rank != 1 {
		t.Errorf("rank = %+v, want 1", rank)
	}
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	api.mustDo(http.MethodPost, "/api/v1/players", domain.RegisterPlayerRequest{ID: "p1", Username: "player-one"}, http.StatusCreated, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown tournament", http.MethodGet, "/api/v1/tournaments/nope", nil, http.StatusNotFound},
		{"unknown match", http.MethodGet, "/api/v1/matches/nope", nil, http.StatusNotFound},
		{"unknown player", http.MethodGet, "/api/v1/players/nope", nil, http.StatusNotFound},
		{"unknown code", http.MethodPost, "/api/v1/tournaments/join", domain.JoinTournamentRequest{Code: "123456", PlayerID: "p1"}, http.StatusNotFound},
		{"bad code", http.MethodPost, "/api/v1/tournaments/join", domain.JoinTournamentRequest{Code: "12", PlayerID: "p1"}, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/api/v1/tournaments", domain.CreateTournamentRequest{CreatedBy: "p1", Format: "swiss"}, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/v1/tournaments?status=paused", nil, http.StatusBadRequest},
		{"bad round", http.MethodGet, "/api/v1/tournaments/x/matches?round=first", nil, http.StatusBadRequest},
		{"bad time control", http.MethodGet, "/api/v1/leaderboards/chess960", nil, http.StatusBadRequest},
		{"mismatched match id", http.MethodPost, "/api/v1/matches/m1/result", domain.GameOutcome{MatchID: "m2", Result: domain.ResultDraw}, http.StatusBadRequest},
		{"unknown result", http.MethodPost, "/api/v1/matches/m1/result", map[string]string{"result": "abandoned"}, http.StatusBadRequest},
		{"result for unknown match", http.MethodPost, "/api/v1/matches/m1/result", map[string]string{"result": "draw"}, http.StatusNotFound},
		{"unknown notification", http.MethodPost, "/api/v1/notifications/n1/read", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, resp := api.do(tt.method, tt.path, tt.body, nil); status != tt.want {
				t.Errorf("%s %s = %d (%s), want %d", tt.method, tt.path, status, resp.Error, tt.want)
			} else if resp.Success || resp.Error == "" {
				t.Errorf("envelope = %+v, want an error", resp)
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tournaments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

type stubLimiter struct {
	keys []string
	err  error
}

func (l *stubLimiter) Allow(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return l.err
}

func TestResultRateLimit(t *testing.T) {
	api := newTestAPI(t)
	limiter := &stubLimiter{err: domain.ErrRateLimited}
	api.handler.SetRateLimiter(limiter)

	api.mustDo(http.MethodPost, "/api/v1/matches/m1/result", map[string]string{"result": "draw"}, http.StatusTooManyRequests, nil)
	if len(limiter.keys) != 1 || limiter.keys[0] != "results:192.0.2.1" {
		t.Errorf("limiter keys = %v", limiter.keys)
	}

	// reads are not limited
	api.mustDo(http.MethodGet, "/api/v1/matches/m1", nil, http.StatusNotFound, nil)
	if len(limiter.keys) != 1 {
		t.Errorf("GET consulted the limiter")
	}

	// a broken limiter lets requests through
	limiter.err = errors.New("redis: connection refused")
	api.mustDo(http.MethodPost, "/api/v1/matches/m1/result", map[string]string{"result": "draw"}, http.StatusNotFound, nil)
}

func TestPreviewPairingsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]interface{}{
		"mode": "rating",
		"entrants": []map[string]interface{}{
			{"player_id": "a", "rating": 2100},
			{"player_id": "b", "rating": 1900},
			{"player_id": "c", "rating": 2000},
		},
	}
	var pairings []struct {
		White string `json:"white"`
		Black string `json:"black"`
	}
	api.mustDo(http.MethodPost, "/api/v1/pairings/preview", body, http.StatusOK, &pairings)
	if len(pairings) != 2 {
		t.Fatalf("pairings = %+v, want a board and a bye", pairings)
	}

	api.mustDo(http.MethodPost, "/api/v1/pairings/preview", map[string]interface{}{"mode": "ladder", "entrants": body["entrants"]}, http.StatusBadRequest, nil)
}

func TestWebSocketStats(t *testing.T) {
	api := newTestAPI(t)
	var data map[string]int
	api.mustDo(http.MethodGet, "/api/v1/ws/stats", nil, http.StatusOK, &data)
	if data["total_connections"] != 0 {
		t.Errorf("stats = %v", data)
	}
}
