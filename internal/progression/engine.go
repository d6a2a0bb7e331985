// Package progression runs the tournament round state machine: it detects when a
// round is finished, pairs the next round and decides when a tournament is over.
package progression

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/events"
	"github.com/chess-tournaments/internal/pairing"
)

// Engine advances tournaments. Every entry point runs in one repository
// transaction holding the tournament row, so concurrent callers never create a
// round twice, and events are dispatched only once that transaction commits.
type Engine struct {
	repo       domain.Repository
	dispatcher events.Dispatcher
	logger     *slog.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewEngine creates a progression engine
func NewEngine(repo domain.Repository, dispatcher events.Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed fixes the random source used for random first-round pairings
func (e *Engine) WithSeed(seed int64) *Engine {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
	return e
}

// OnMatchCompleted checks the round the match belongs to and advances the
// tournament when that round is finished. Calling it again for a round that has
// already been advanced reports round_complete with nothing created.
func (e *Engine) OnMatchCompleted(ctx context.Context, tournamentID, matchID string) (*domain.ProgressionResult, error) {
	m, err := e.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	if m.TournamentID != tournamentID {
		return nil, fmt.Errorf("%w: match %s is not part of tournament %s", domain.ErrInvalidRequest, matchID, tournamentID)
	}
	return e.check(ctx, tournamentID, m.RoundNumber)
}

// Advance checks the tournament's current round; the sweep worker calls it
func (e *Engine) Advance(ctx context.Context, tournamentID string) (*domain.ProgressionResult, error) {
	return e.check(ctx, tournamentID, 0)
}

// round carries the state one transaction works on
type round struct {
	tx           domain.Repository
	tournament   *domain.Tournament
	participants []domain.Participant
	index        map[string]int
	dirty        map[string]bool
	events       []domain.Event
}

func (e *Engine) load(ctx context.Context, tx domain.Repository, t *domain.Tournament) (*round, error) {
	participants, err := tx.ListParticipants(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	r := &round{
		tx:           tx,
		tournament:   t,
		participants: participants,
		index:        make(map[string]int, len(participants)),
		dirty:        make(map[string]bool),
	}
	for i, p := range participants {
		r.index[p.PlayerID] = i
	}
	return r, nil
}

func (r *round) participant(playerID string) *domain.Participant {
	i, ok := r.index[playerID]
	if !ok {
		return nil
	}
	r.dirty[playerID] = true
	return &r.participants[i]
}

func (r *round) playerIDs() []string {
	ids := make([]string, len(r.participants))
	for i, p := range r.participants {
		ids[i] = p.PlayerID
	}
	return ids
}

// flush writes back every participant touched during the transaction
func (r *round) flush(ctx context.Context) error {
	for i := range r.participants {
		p := &r.participants[i]
		if !r.dirty[p.PlayerID] {
			continue
		}
		if err := r.tx.UpdateParticipant(ctx, p); err != nil {
			return fmt.Errorf("updating participant %s: %w", p.PlayerID, err)
		}
	}
	return nil
}

func (e *Engine) check(ctx context.Context, tournamentID string, roundNumber int) (*domain.ProgressionResult, error) {
	var (
		result  *domain.ProgressionResult
		pending []domain.Event
	)

	err := e.repo.InTx(ctx, func(tx domain.Repository) error {
		pending = nil

		t, err := tx.LockTournament(ctx, tournamentID)
		if err != nil {
			return fmt.Errorf("locking tournament: %w", err)
		}

		if t.Status != domain.StatusInProgress {
			result = &domain.ProgressionResult{
				RoundComplete:      true,
				TournamentComplete: t.Status == domain.StatusCompleted,
				CurrentRound:       t.CurrentRound,
				Message:            fmt.Sprintf("tournament is %s", t.Status),
			}
			return nil
		}
		if roundNumber > 0 && roundNumber < t.CurrentRound {
			result = &domain.ProgressionResult{
				RoundComplete: true,
				CurrentRound:  t.CurrentRound,
				Message:       fmt.Sprintf("round %d already advanced", roundNumber),
			}
			return nil
		}

		matches, err := tx.ListMatches(ctx, t.ID, t.CurrentRound)
		if err != nil {
			return fmt.Errorf("listing round matches: %w", err)
		}
		completed := 0
		for _, m := range matches {
			if m.Status.Finished() {
				completed++
			}
		}
		if completed < len(matches) {
			result = &domain.ProgressionResult{
				CurrentRound: t.CurrentRound,
				Completed:    completed,
				Total:        len(matches),
				Message:      fmt.Sprintf("waiting for %d of %d matches", len(matches)-completed, len(matches)),
			}
			return nil
		}

		r, err := e.load(ctx, tx, t)
		if err != nil {
			return err
		}

		switch t.Format {
		case domain.FormatElimination:
			result, err = e.advanceElimination(ctx, r, matches)
		case domain.FormatRoundRobin:
			result, err = e.advanceRoundRobin(ctx, r)
		case domain.FormatSwiss:
			result, err = e.advanceSwiss(ctx, r)
		default:
			e.logger.Warn("unknown tournament format, completing", "tournament_id", t.ID, "format", t.Format)
			result, err = e.complete(ctx, r, "")
		}
		if err != nil {
			return err
		}
		if err := r.flush(ctx); err != nil {
			return err
		}

		result.RoundComplete = true
		result.Completed = completed
		result.Total = len(matches)
		pending = r.events
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("round checked",
		"tournament_id", tournamentID,
		"round", result.CurrentRound,
		"round_complete", result.RoundComplete,
		"tournament_complete", result.TournamentComplete,
		"matches_created", result.MatchesCreated,
	)
	e.dispatcher.Dispatch(ctx, pending...)
	return result, nil
}

func (e *Engine) advanceElimination(ctx context.Context, r *round, matches []domain.Match) (*domain.ProgressionResult, error) {
	t := r.tournament

	var winners []string
	for _, m := range matches {
		if m.WinnerID == "" {
			e.logger.Warn("finished elimination match has no winner", "tournament_id", t.ID, "match_id", m.ID)
			continue
		}
		winners = append(winners, m.WinnerID)
	}
	var sitting []string
	for _, p := range r.participants {
		if p.HadBye(t.CurrentRound) && !p.IsEliminated {
			sitting = append(sitting, p.PlayerID)
		}
	}
	if t.AllowByes {
		winners = append(winners, sitting...)
	}

	// everyone who played this round or sat out without advancing is done
	placement := len(winners) + 1
	eliminate := func(id string) {
		if p := r.participant(id); p != nil {
			p.IsEliminated = true
			p.Placement = placement
		}
	}
	for _, m := range matches {
		if loser := m.LoserID(); loser != "" {
			eliminate(loser)
		}
	}
	if !t.AllowByes {
		for _, id := range sitting {
			eliminate(id)
		}
	}

	if len(winners) <= 1 {
		champion := ""
		if len(winners) == 1 {
			champion = winners[0]
			if p := r.participant(champion); p != nil {
				p.Placement = 1
			}
		}
		return e.complete(ctx, r, champion)
	}

	next := t.CurrentRound + 1
	players, err := r.tx.GetPlayers(ctx, winners)
	if err != nil {
		return nil, fmt.Errorf("loading round winners: %w", err)
	}
	pairings, err := pairing.Generate(entrantsFor(winners, players, t.TimeControl), pairing.ModeBracket, pairing.Options{})
	if err != nil {
		return nil, fmt.Errorf("pairing round %d: %w", next, err)
	}
	created, err := e.openRound(ctx, r, next, pairings, players)
	if err != nil {
		return nil, err
	}

	return &domain.ProgressionResult{
		CurrentRound:   next,
		NextRound:      next,
		MatchesCreated: created,
		Message:        fmt.Sprintf("round %d created with %d matches", next, created),
	}, nil
}

func (e *Engine) advanceRoundRobin(ctx context.Context, r *round) (*domain.ProgressionResult, error) {
	t := r.tournament
	total := pairing.RoundRobinRounds(len(r.participants))
	if t.CurrentRound >= total {
		all, err := r.tx.ListMatches(ctx, t.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("listing matches: %w", err)
		}
		return e.complete(ctx, r, e.rank(r, all))
	}

	next := t.CurrentRound + 1
	scheduled, err := r.tx.ListMatches(ctx, t.ID, next)
	if err != nil {
		return nil, fmt.Errorf("listing round %d matches: %w", next, err)
	}

	t.CurrentRound = next
	if err := r.tx.UpdateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("advancing round: %w", err)
	}

	views := make([]domain.PairingView, 0, len(scheduled)+1)
	for _, m := range scheduled {
		views = append(views, domain.PairingView{MatchID: m.ID, WhitePlayerID: m.WhitePlayerID, BlackPlayerID: m.BlackPlayerID})
	}
	for _, p := range r.participants {
		if p.HadBye(next) {
			views = append(views, domain.PairingView{WhitePlayerID: p.PlayerID, Bye: true})
		}
	}
	r.events = append(r.events, roundEvent(domain.EventRoundAdvanced, t, next, views, r.playerIDs()))

	return &domain.ProgressionResult{
		CurrentRound: next,
		NextRound:    next,
		Message:      fmt.Sprintf("round %d of %d started", next, total),
	}, nil
}

func (e *Engine) advanceSwiss(ctx context.Context, r *round) (*domain.ProgressionResult, error) {
	t := r.tournament
	maxRounds := t.MaxRounds
	if maxRounds <= 0 {
		maxRounds = pairing.SwissRounds(len(r.participants))
	}

	history, err := r.tx.ListMatches(ctx, t.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing match history: %w", err)
	}
	if t.CurrentRound >= maxRounds {
		return e.complete(ctx, r, e.rank(r, history))
	}

	next := t.CurrentRound + 1
	ids := r.playerIDs()
	players, err := r.tx.GetPlayers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading players: %w", err)
	}
	byes := make(map[string]int, len(r.participants))
	for _, p := range r.participants {
		byes[p.PlayerID] = len(p.ByeRounds)
	}

	pairings, err := pairing.Generate(entrantsFor(ids, players, t.TimeControl), pairing.ModeSwiss, pairing.Options{
		History: history,
		Byes:    byes,
	})
	if err != nil {
		return nil, fmt.Errorf("pairing round %d: %w", next, err)
	}
	created, err := e.openRound(ctx, r, next, pairings, players)
	if err != nil {
		return nil, err
	}

	return &domain.ProgressionResult{
		CurrentRound:   next,
		NextRound:      next,
		MatchesCreated: created,
		Message:        fmt.Sprintf("round %d of %d created with %d matches", next, maxRounds, created),
	}, nil
}

// rank records final placements from the standings and returns the leader
func (e *Engine) rank(r *round, matches []domain.Match) string {
	table := Standings(r.tournament.Format, r.participants, matches)
	for _, row := range table {
		if p := r.participant(row.PlayerID); p != nil {
			p.Placement = row.Rank
		}
	}
	if len(table) == 0 {
		return ""
	}
	return table[0].PlayerID
}

// openRound persists the matches of a new round, records byes and moves the round counter
func (e *Engine) openRound(ctx context.Context, r *round, number int, pairings []pairing.Pairing, players map[string]*domain.Player) (int, error) {
	t := r.tournament
	now := time.Now()

	matches := make([]domain.Match, 0, len(pairings))
	views := make([]domain.PairingView, 0, len(pairings))
	for _, pr := range pairings {
		if pr.IsBye() {
			if p := r.participant(pr.White); p != nil {
				p.ByeRounds = append(p.ByeRounds, number)
			}
			views = append(views, domain.PairingView{WhitePlayerID: pr.White, Bye: true})
			e.logger.Debug("bye awarded", "tournament_id", t.ID, "round", number, "player_id", pr.White)
			continue
		}
		m := newMatch(t, number, pr, players, now)
		matches = append(matches, m)
		views = append(views, domain.PairingView{MatchID: m.ID, WhitePlayerID: m.WhitePlayerID, BlackPlayerID: m.BlackPlayerID})
	}

	if len(matches) > 0 {
		if err := r.tx.CreateMatches(ctx, matches); err != nil {
			return 0, fmt.Errorf("creating round %d matches: %w", number, err)
		}
	}

	t.CurrentRound = number
	if err := r.tx.UpdateTournament(ctx, t); err != nil {
		return 0, fmt.Errorf("advancing round: %w", err)
	}

	r.events = append(r.events, roundEvent(domain.EventRoundAdvanced, t, number, views, r.playerIDs()))
	return len(matches), nil
}

func (e *Engine) complete(ctx context.Context, r *round, winnerID string) (*domain.ProgressionResult, error) {
	t := r.tournament
	now := time.Now()
	t.Status = domain.StatusCompleted
	t.EndedAt = &now
	if err := r.tx.UpdateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("completing tournament: %w", err)
	}

	r.events = append(r.events, domain.NewEvent(domain.EventTournamentCompleted, t.ID, domain.TournamentCompleted{
		TournamentID:   t.ID,
		TournamentName: t.Name,
		WinnerID:       winnerID,
		Participants:   r.playerIDs(),
	}))

	msg := "tournament completed"
	if winnerID != "" {
		msg = fmt.Sprintf("tournament completed, winner %s", winnerID)
	}
	return &domain.ProgressionResult{
		TournamentComplete: true,
		CurrentRound:       t.CurrentRound,
		WinnerID:           winnerID,
		Message:            msg,
	}, nil
}

func newMatch(t *domain.Tournament, number int, pr pairing.Pairing, players map[string]*domain.Player, now time.Time) domain.Match {
	return domain.Match{
		ID:             uuid.NewString(),
		TournamentID:   t.ID,
		WhitePlayerID:  pr.White,
		BlackPlayerID:  pr.Black,
		RoundNumber:    number,
		Status:         domain.MatchScheduled,
		WhiteEloBefore: ratingOf(players[pr.White], t.TimeControl),
		BlackEloBefore: ratingOf(players[pr.Black], t.TimeControl),
		TimeControl:    t.TimeControl,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func ratingOf(p *domain.Player, tc domain.TimeControl) int {
	if p == nil {
		return domain.DefaultRating
	}
	return p.Rating(tc)
}

func entrantsFor(ids []string, players map[string]*domain.Player, tc domain.TimeControl) []pairing.Entrant {
	out := make([]pairing.Entrant, len(ids))
	for i, id := range ids {
		out[i] = pairing.Entrant{PlayerID: id, Rating: ratingOf(players[id], tc)}
	}
	return out
}

func roundEvent(typ domain.EventType, t *domain.Tournament, number int, views []domain.PairingView, participants []string) domain.Event {
	return domain.NewEvent(typ, t.ID, domain.RoundAdvanced{
		TournamentID:   t.ID,
		TournamentName: t.Name,
		RoundNumber:    number,
		Pairings:       views,
		Participants:   participants,
	})
}
