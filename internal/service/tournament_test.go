package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/events"
	"github.com/chess-tournaments/internal/memory"
	"github.com/chess-tournaments/internal/pairing"
	"github.com/chess-tournaments/internal/progression"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	rec   *recorder
	svc   *TournamentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	rec := &recorder{}
	fanout := events.NewFanout(logger, rec, events.NewInboxSink(store))
	engine := progression.NewEngine(store, fanout, logger).WithSeed(1)
	cfg := &config.TournamentConfig{
		CodeLength:                6,
		CodeAttempts:              5,
		DefaultMaxParticipants:    8,
		DefaultTimeControlMinutes: 5,
	}
	limits := &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}
	return &harness{
		t:     t,
		ctx:   context.Background(),
		store: store,
		rec:   rec,
		svc:   NewTournamentService(store, store, engine, fanout, cfg, limits, logger),
	}
}

func (h *harness) player(id string, blitz int) {
	h.t.Helper()
	p := domain.NewPlayer(id, "user-"+id)
	p.SetRating(domain.TimeControlBlitz, blitz)
	if err := h.store.CreatePlayer(h.ctx, p); err != nil {
		h.t.Fatalf("CreatePlayer() error = %v", err)
	}
}

// open creates a rating-paired tournament and joins the given players in order
func (h *harness) open(format string, allowByes bool, ids ...string) *domain.Tournament {
	h.t.Helper()
	t, err := h.svc.CreateTournament(h.ctx, domain.CreateTournamentRequest{
		Name:          "Weekly " + format,
		CreatedBy:     ids[0],
		Format:        format,
		PairingSystem: "rating",
		AllowByes:     &allowByes,
	})
	if err != nil {
		h.t.Fatalf("CreateTournament() error = %v", err)
	}
	for _, id := range ids {
		if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: t.Code, PlayerID: id}); err != nil {
			h.t.Fatalf("JoinByCode(%s) error = %v", id, err)
		}
	}
	return t
}

func (h *harness) report(matchID string, result domain.MatchResult, winner string) *domain.ReportOutcome {
	h.t.Helper()
	out, err := h.svc.ReportResult(h.ctx, domain.GameOutcome{MatchID: matchID, Result: result, WinnerID: winner})
	if err != nil {
		h.t.Fatalf("ReportResult() error = %v", err)
	}
	return out
}

func (h *harness) matches(tid string, round int) []domain.Match {
	h.t.Helper()
	ms, err := h.svc.ListMatches(h.ctx, tid, round)
	if err != nil {
		h.t.Fatalf("ListMatches() error = %v", err)
	}
	return ms
}

func (h *harness) fourPlayers() {
	h.player("A", 2000)
	h.player("B", 1900)
	h.player("C", 1800)
	h.player("D", 1700)
}

func TestCreateTournament(t *testing.T) {
	h := newHarness(t)
	h.player("host", 1500)

	tour, err := h.svc.CreateTournament(h.ctx, domain.CreateTournamentRequest{
		Name:         "  Friday Blitz ",
		CreatedBy:    "host",
		Format:       "swiss",
		CreatorPlays: true,
	})
	if err != nil {
		t.Fatalf("CreateTournament() error = %v", err)
	}
	if len(tour.Code) != 6 || tour.Code[0] == '0' {
		t.Errorf("code = %q, want 6 digits without a leading zero", tour.Code)
	}
	for _, c := range tour.Code {
		if c < '0' || c > '9' {
			t.Fatalf("code %q is not numeric", tour.Code)
		}
	}
	if tour.Name != "Friday Blitz" || tour.Status != domain.StatusUpcoming || tour.CurrentRound != 1 {
		t.Errorf("tournament = %+v", tour)
	}
	if tour.TimeControl != domain.TimeControlBlitz || tour.MaxParticipants != 8 || !tour.AllowByes {
		t.Errorf("defaults not applied: %+v", tour)
	}
	if tour.PairingSystem != domain.PairingRandom {
		t.Errorf("pairing system = %q, want random", tour.PairingSystem)
	}

	details, err := h.svc.GetTournament(h.ctx, tour.ID)
	if err != nil {
		t.Fatalf("GetTournament() error = %v", err)
	}
	if len(details.Participants) != 1 || details.Participants[0].PlayerID != "host" || details.Participants[0].Seed != 1 {
		t.Errorf("participants = %+v, want host seeded first", details.Participants)
	}
	if details.CurrentParticipants != 1 {
		t.Errorf("current participants = %d", details.CurrentParticipants)
	}
}

func TestCreateTournamentRejects(t *testing.T) {
	h := newHarness(t)
	h.player("host", 1500)

	tests := []struct {
		name    string
		req     domain.CreateTournamentRequest
		wantErr error
	}{
		{"unknown format", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "ladder"}, domain.ErrInvalidFormat},
		{"puzzle clock", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "swiss", TimeControl: "puzzle"}, domain.ErrInvalidTimeControl},
		{"unknown creator", domain.CreateTournamentRequest{Name: "x", CreatedBy: "ghost", Format: "swiss"}, domain.ErrPlayerNotFound},
		{"single seat", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "swiss", MaxParticipants: 1}, domain.ErrInvalidRequest},
		{"bullet clock too long", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "swiss", TimeControl: "bullet", TimeControlMinutes: 45}, domain.ErrInvalidTimeControl},
		{"blitz increment pushes past ten minutes", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "swiss", TimeControl: "blitz", TimeControlMinutes: 8, IncrementSeconds: 10}, domain.ErrInvalidTimeControl},
		{"rapid clock too short", domain.CreateTournamentRequest{Name: "x", CreatedBy: "host", Format: "swiss", TimeControl: "rapid", TimeControlMinutes: 5}, domain.ErrInvalidTimeControl},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateTournament(h.ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateTournament() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateTournamentClock(t *testing.T) {
	h := newHarness(t)
	h.player("host", 1500)

	tests := []struct {
		name        string
		tc          string
		minutes     int
		wantMinutes int
	}{
		{"rapid with its own clock", "rapid", 15, 15},
		{"rapid without a clock gets a rapid default", "rapid", 0, 15},
		{"blitz keeps the configured default", "blitz", 0, 5},
		{"daily accepts any clock", "daily", 1440, 1440},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tour, err := h.svc.CreateTournament(h.ctx, domain.CreateTournamentRequest{
				Name:               "Clock check",
				CreatedBy:          "host",
				Format:             "swiss",
				TimeControl:        tt.tc,
				TimeControlMinutes: tt.minutes,
			})
			if err != nil {
				t.Fatalf("CreateTournament() error = %v", err)
			}
			if string(tour.TimeControl) != tt.tc || tour.TimeControlMinutes != tt.wantMinutes {
				t.Errorf("clock = %s %d, want %s %d", tour.TimeControl, tour.TimeControlMinutes, tt.tc, tt.wantMinutes)
			}
		})
	}
}

func TestManualPairingKeepsSeedOrder(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()

	tour, err := h.svc.CreateTournament(h.ctx, domain.CreateTournamentRequest{
		Name:          "Seeded knockout",
		CreatedBy:     "A",
		Format:        "elimination",
		PairingSystem: "manual",
	})
	if err != nil {
		t.Fatalf("CreateTournament() error = %v", err)
	}
	for _, id := range []string{"C", "A", "D", "B"} {
		if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: id}); err != nil {
			t.Fatalf("JoinByCode(%s) error = %v", id, err)
		}
	}
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}

	ms := h.matches(tour.ID, 1)
	if len(ms) != 2 {
		t.Fatalf("round 1 has %d matches", len(ms))
	}
	got := ms[0].WhitePlayerID + ms[0].BlackPlayerID + " " + ms[1].WhitePlayerID + ms[1].BlackPlayerID
	if got != "CA DB" {
		t.Errorf("round 1 = %s, want join order CA DB", got)
	}
}

func TestJoinByCode(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	h.player("E", 1600)

	tour, err := h.svc.CreateTournament(h.ctx, domain.CreateTournamentRequest{
		Name: "Small", CreatedBy: "A", Format: "elimination", MaxParticipants: 2,
	})
	if err != nil {
		t.Fatalf("CreateTournament() error = %v", err)
	}

	if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: "000000", PlayerID: "A"}); !errors.Is(err, domain.ErrInvalidCode) {
		t.Errorf("unknown code error = %v", err)
	}
	if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "ghost"}); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Errorf("unknown player error = %v", err)
	}

	p, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "A"})
	if err != nil || p.Seed != 1 {
		t.Fatalf("first join = %+v, %v", p, err)
	}
	if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "A"}); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Errorf("duplicate join error = %v", err)
	}
	p, err = h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "B"})
	if err != nil || p.Seed != 2 {
		t.Fatalf("second join = %+v, %v", p, err)
	}
	if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: tour.Code, PlayerID: "C"}); !errors.Is(err, domain.ErrTournamentFull) {
		t.Errorf("join when full error = %v", err)
	}

	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	other := h.open("swiss", true, "D", "E")
	if _, err := h.svc.StartTournament(h.ctx, other.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	if _, err := h.svc.JoinByCode(h.ctx, domain.JoinTournamentRequest{Code: other.Code, PlayerID: "C"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("join after start error = %v", err)
	}
}

func TestEliminationThroughResults(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("elimination", true, "A", "B", "C", "D")

	start, err := h.svc.StartTournament(h.ctx, tour.ID)
	if err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	if start.MatchesCreated != 2 {
		t.Fatalf("start = %+v", start)
	}
	first := h.matches(tour.ID, 1)

	out := h.report(first[0].ID, domain.ResultWhiteWin, "")
	if out.Ratings == nil || out.Ratings.Winner.PlayerID != "A" {
		t.Fatalf("ratings = %+v, want A as winner", out.Ratings)
	}
	if out.Progression == nil || out.Progression.RoundComplete {
		t.Fatalf("progression after first result = %+v", out.Progression)
	}

	out = h.report(first[1].ID, domain.ResultWhiteWin, "")
	if out.Progression == nil || !out.Progression.RoundComplete || out.Progression.MatchesCreated != 1 {
		t.Fatalf("progression after round = %+v", out.Progression)
	}

	final := h.matches(tour.ID, 2)
	if len(final) != 1 || final[0].WhitePlayerID != "A" || final[0].BlackPlayerID != "C" {
		t.Fatalf("round 2 = %+v, want A vs C", final)
	}

	out = h.report(final[0].ID, domain.ResultBlackWin, "")
	if out.Progression == nil || !out.Progression.TournamentComplete || out.Progression.WinnerID != "C" {
		t.Fatalf("final progression = %+v", out.Progression)
	}

	details, _ := h.svc.GetTournament(h.ctx, tour.ID)
	if details.Status != domain.StatusCompleted {
		t.Errorf("status = %s", details.Status)
	}
	if h.rec.count(domain.EventRatingsUpdated) != 6 {
		t.Errorf("ratings_updated events = %d, want 6", h.rec.count(domain.EventRatingsUpdated))
	}

	c, _ := h.svc.GetPlayer(h.ctx, "C")
	if c.Wins != 2 || c.MatchesPlayed != 2 {
		t.Errorf("C = %+v, want 2 wins", c)
	}
	m, _ := h.svc.GetMatch(h.ctx, final[0].ID)
	if m.BlackEloAfter <= m.BlackEloBefore || m.WhiteEloAfter >= m.WhiteEloBefore {
		t.Errorf("snapshots = white %d->%d black %d->%d", m.WhiteEloBefore, m.WhiteEloAfter, m.BlackEloBefore, m.BlackEloAfter)
	}

	inbox, err := h.svc.ListNotifications(h.ctx, "B", false, 0)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	// start, round 2, end
	if len(inbox) != 3 || inbox[0].Type != domain.NotificationTournamentEnd {
		t.Errorf("inbox for B = %+v", inbox)
	}
}

func TestReportResultTwiceDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("swiss", true, "A", "B", "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	m := h.matches(tour.ID, 1)[0]

	h.report(m.ID, domain.ResultWhiteWin, "")
	again := h.report(m.ID, domain.ResultBlackWin, "")
	if !again.AlreadyFinal || again.Ratings != nil {
		t.Fatalf("second report = %+v, want already final", again)
	}

	a, _ := h.svc.GetPlayer(h.ctx, m.WhitePlayerID)
	if a.MatchesPlayed != 1 || a.Wins != 1 {
		t.Errorf("white = %+v, want one win", a)
	}
	stored, _ := h.svc.GetMatch(h.ctx, m.ID)
	if stored.Result != domain.ResultWhiteWin {
		t.Errorf("result overwritten to %s", stored.Result)
	}
}

func TestEliminationDrawSchedulesReplay(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("elimination", true, "A", "B", "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	m := h.matches(tour.ID, 1)[0]

	out := h.report(m.ID, domain.ResultDraw, "")
	if !out.ReplayRequired || out.Ratings != nil || out.Progression != nil {
		t.Fatalf("draw outcome = %+v, want replay only", out)
	}
	stored, _ := h.svc.GetMatch(h.ctx, m.ID)
	if stored.Status != domain.MatchScheduled || stored.ReplayCount != 1 || stored.Result != "" {
		t.Errorf("match after draw = %+v", stored)
	}
	a, _ := h.svc.GetPlayer(h.ctx, "A")
	if a.MatchesPlayed != 0 || a.Rating(domain.TimeControlBlitz) != 2000 {
		t.Errorf("draw changed ratings: %+v", a)
	}
	if h.rec.count(domain.EventMatchReplay) != 1 {
		t.Errorf("match_replay events = %d", h.rec.count(domain.EventMatchReplay))
	}

	// the replay is decided normally
	out = h.report(m.ID, domain.ResultBlackWin, "")
	if out.Ratings == nil || out.Ratings.Winner.PlayerID != "B" {
		t.Errorf("replay outcome = %+v", out)
	}
}

func TestSwissDrawIsScored(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("swiss", true, "A", "B", "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	first := h.matches(tour.ID, 1)

	out := h.report(first[0].ID, domain.ResultDraw, "")
	if out.ReplayRequired || out.Ratings == nil || !out.Ratings.IsDraw {
		t.Fatalf("swiss draw = %+v", out)
	}
	h.report(first[1].ID, domain.ResultWhiteWin, "")

	table, err := h.svc.Standings(h.ctx, tour.ID)
	if err != nil {
		t.Fatalf("Standings() error = %v", err)
	}
	if table[0].PlayerID != "C" || table[0].Score != 1 {
		t.Errorf("leader = %+v, want C on 1 point", table[0])
	}
	scores := map[string]float64{}
	for _, row := range table {
		scores[row.PlayerID] = row.Score
	}
	if scores["A"] != 0.5 || scores["B"] != 0.5 || scores["D"] != 0 {
		t.Errorf("scores = %v", scores)
	}
	if len(h.matches(tour.ID, 2)) != 2 {
		t.Errorf("round 2 not paired")
	}
}

func TestForfeit(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("swiss", true, "A", "B", "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	m := h.matches(tour.ID, 1)[0]

	_, err := h.svc.ReportResult(h.ctx, domain.GameOutcome{MatchID: m.ID, Result: domain.ResultForfeit})
	if !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("forfeit without winner error = %v", err)
	}
	_, err = h.svc.ReportResult(h.ctx, domain.GameOutcome{MatchID: m.ID, Result: domain.ResultForfeit, WinnerID: "C"})
	if !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("forfeit to a player not seated error = %v", err)
	}

	out := h.report(m.ID, domain.ResultForfeit, m.BlackPlayerID)
	if out.Ratings == nil || out.Ratings.Winner.PlayerID != m.BlackPlayerID {
		t.Fatalf("forfeit outcome = %+v", out)
	}
	stored, _ := h.svc.GetMatch(h.ctx, m.ID)
	if stored.Status != domain.MatchCompleted || stored.WinnerID != m.BlackPlayerID {
		t.Errorf("match = %+v", stored)
	}
}

func TestCancelTournament(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	tour := h.open("swiss", true, "A", "B", "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, tour.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}
	m := h.matches(tour.ID, 1)[0]

	cancelled, err := h.svc.CancelTournament(h.ctx, tour.ID)
	if err != nil || cancelled.Status != domain.StatusCancelled || cancelled.EndedAt == nil {
		t.Fatalf("CancelTournament() = %+v, %v", cancelled, err)
	}
	if _, err := h.svc.CancelTournament(h.ctx, tour.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second cancel error = %v", err)
	}
	if _, err := h.svc.ReportResult(h.ctx, domain.GameOutcome{MatchID: m.ID, Result: domain.ResultWhiteWin}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("result in cancelled tournament error = %v", err)
	}
	res, err := h.svc.AdvanceTournament(h.ctx, tour.ID)
	if err != nil || res.MatchesCreated != 0 {
		t.Errorf("AdvanceTournament() = %+v, %v", res, err)
	}
}

func TestListTournaments(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()
	started := h.open("swiss", true, "A", "B")
	h.open("elimination", true, "C", "D")
	if _, err := h.svc.StartTournament(h.ctx, started.ID); err != nil {
		t.Fatalf("StartTournament() error = %v", err)
	}

	all, _ := h.svc.ListTournaments(h.ctx, "")
	live, _ := h.svc.ListTournaments(h.ctx, "in_progress")
	if len(all) != 2 || len(live) != 1 || live[0].ID != started.ID {
		t.Errorf("all = %d, live = %+v", len(all), live)
	}
	if _, err := h.svc.ListTournaments(h.ctx, "paused"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("unknown status error = %v", err)
	}
}

func TestLeaderboardFromStorage(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()

	top, err := h.svc.Leaderboard(h.ctx, domain.TimeControlBlitz, 2)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(top) != 2 || top[0].PlayerID != "A" || top[0].Rank != 1 || top[1].PlayerID != "B" || top[1].Rating != 1900 {
		t.Errorf("top = %+v", top)
	}
	if _, err := h.svc.Leaderboard(h.ctx, "hyper", 5); !errors.Is(err, domain.ErrInvalidTimeControl) {
		t.Errorf("unknown class error = %v", err)
	}
}

func TestLeaderboardTiesShareRank(t *testing.T) {
	h := newHarness(t)
	h.player("A", 2000)
	h.player("B", 1900)
	h.player("C", 1900)
	h.player("D", 1700)

	top, err := h.svc.Leaderboard(h.ctx, domain.TimeControlBlitz, 10)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	var ranks []int64
	for _, e := range top {
		ranks = append(ranks, e.Rank)
	}
	if len(ranks) != 4 || ranks[0] != 1 || ranks[1] != 2 || ranks[2] != 2 || ranks[3] != 4 {
		t.Errorf("ranks = %v, want [1 2 2 4]", ranks)
	}

	got, err := h.svc.PlayerRank(h.ctx, domain.TimeControlBlitz, "C")
	if err != nil {
		t.Fatalf("PlayerRank() error = %v", err)
	}
	if got.Rank != 2 {
		t.Errorf("rank of C = %d, want 2", got.Rank)
	}
}

type fixedBoard struct{ entries []domain.RatingEntry }

func (b fixedBoard) Top(context.Context, domain.TimeControl, int) ([]domain.RatingEntry, error) {
	return b.entries, nil
}

func (b fixedBoard) PlayerRank(_ context.Context, _ domain.TimeControl, playerID string) (*domain.RatingEntry, error) {
	for _, e := range b.entries {
		if e.PlayerID == playerID {
			return &e, nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}

func TestLeaderboardPrefersBoard(t *testing.T) {
	h := newHarness(t)
	h.svc.SetRatingBoard(fixedBoard{entries: []domain.RatingEntry{{Rank: 1, PlayerID: "cached", Rating: 2500}}})

	top, err := h.svc.Leaderboard(h.ctx, domain.TimeControlRapid, 0)
	if err != nil || len(top) != 1 || top[0].PlayerID != "cached" {
		t.Errorf("Leaderboard() = %+v, %v", top, err)
	}
}

func TestPlayerRank(t *testing.T) {
	h := newHarness(t)
	h.fourPlayers()

	got, err := h.svc.PlayerRank(h.ctx, domain.TimeControlBlitz, "C")
	if err != nil {
		t.Fatalf("PlayerRank() error = %v", err)
	}
	if got.Rank != 3 || got.Rating != 1800 || got.Username != "user-C" {
		t.Errorf("rank of C = %+v", got)
	}
	if _, err := h.svc.PlayerRank(h.ctx, domain.TimeControlBlitz, "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Errorf("unknown player error = %v", err)
	}

	h.svc.SetRatingBoard(fixedBoard{})
	if _, err := h.svc.PlayerRank(h.ctx, domain.TimeControlBlitz, "C"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Errorf("board miss error = %v", err)
	}
}

func TestRegisterPlayer(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.RegisterPlayer(h.ctx, domain.RegisterPlayerRequest{ID: "p1", Username: "magnus"})
	if err != nil {
		t.Fatalf("RegisterPlayer() error = %v", err)
	}
	if !p.IsProvisional || p.Rating(domain.TimeControlDaily) != domain.DefaultRating {
		t.Errorf("player = %+v", p)
	}
	if _, err := h.svc.RegisterPlayer(h.ctx, domain.RegisterPlayerRequest{ID: "p1", Username: "again"}); !errors.Is(err, domain.ErrPlayerExists) {
		t.Errorf("duplicate register error = %v", err)
	}
	generated, err := h.svc.RegisterPlayer(h.ctx, domain.RegisterPlayerRequest{Username: "hikaru"})
	if err != nil || generated.ID == "" {
		t.Errorf("RegisterPlayer() without id = %+v, %v", generated, err)
	}
}

func TestPreviewPairings(t *testing.T) {
	h := newHarness(t)
	seed := int64(3)
	req := PreviewRequest{
		Mode: "bracket",
		Seed: &seed,
	}
	for _, id := range []string{"w0", "w1", "w2", "w3"} {
		req.Entrants = append(req.Entrants, pairing.Entrant{PlayerID: id, Rating: 1500})
	}
	got, err := h.svc.PreviewPairings(req)
	if err != nil {
		t.Fatalf("PreviewPairings() error = %v", err)
	}
	if len(got) != 2 || got[0].White != "w0" || got[0].Black != "w3" {
		t.Errorf("pairings = %+v", got)
	}
	if _, err := h.svc.PreviewPairings(PreviewRequest{Mode: "ladder", Entrants: req.Entrants}); !errors.Is(err, domain.ErrInvalidPairingMode) {
		t.Errorf("unknown mode error = %v", err)
	}
}
