package progression

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/pairing"
)

// MinParticipants is the smallest field a tournament can start with
const MinParticipants = 2

// Start moves an upcoming tournament into play and creates its first round.
// Round robin schedules are generated in full here; later rounds only move the
// counter.
func (e *Engine) Start(ctx context.Context, tournamentID string) (*domain.ProgressionResult, error) {
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
		if t.Status != domain.StatusUpcoming {
			return fmt.Errorf("%w: tournament is %s", domain.ErrInvalidState, t.Status)
		}

		r, err := e.load(ctx, tx, t)
		if err != nil {
			return err
		}
		if len(r.participants) < MinParticipants {
			return fmt.Errorf("%w: %d joined", domain.ErrNotEnoughPlayers, len(r.participants))
		}
		sort.SliceStable(r.participants, func(i, j int) bool {
			return r.participants[i].Seed < r.participants[j].Seed
		})
		for i, p := range r.participants {
			r.index[p.PlayerID] = i
		}

		ids := r.playerIDs()
		players, err := tx.GetPlayers(ctx, ids)
		if err != nil {
			return fmt.Errorf("loading players: %w", err)
		}
		entrants := entrantsFor(ids, players, t.TimeControl)

		now := time.Now()
		t.Status = domain.StatusInProgress
		t.StartedAt = &now
		if t.Format == domain.FormatSwiss && t.MaxRounds <= 0 {
			t.MaxRounds = pairing.SwissRounds(len(entrants))
		}

		var created int
		switch t.Format {
		case domain.FormatRoundRobin:
			created, err = e.openSchedule(ctx, r, entrants, players)
		case domain.FormatSwiss:
			created, err = e.openFirstRound(ctx, r, entrants, players, pairing.ModeSwiss)
		case domain.FormatElimination:
			created, err = e.openFirstRound(ctx, r, entrants, players, pairing.ModeFor(t.PairingSystem))
		default:
			err = fmt.Errorf("%w: %q", domain.ErrInvalidFormat, t.Format)
		}
		if err != nil {
			return err
		}
		if err := r.flush(ctx); err != nil {
			return err
		}

		result = &domain.ProgressionResult{
			CurrentRound:   1,
			NextRound:      1,
			MatchesCreated: created,
			Message:        fmt.Sprintf("tournament started with %d players", len(entrants)),
		}
		pending = r.events
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("tournament started",
		"tournament_id", tournamentID,
		"matches_created", result.MatchesCreated,
	)
	e.dispatcher.Dispatch(ctx, pending...)
	return result, nil
}

func (e *Engine) openFirstRound(ctx context.Context, r *round, entrants []pairing.Entrant, players map[string]*domain.Player, mode pairing.Mode) (int, error) {
	e.randMu.Lock()
	pairings, err := pairing.Generate(entrants, mode, pairing.Options{Rand: e.rand})
	e.randMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("pairing round 1: %w", err)
	}

	created, err := e.openRound(ctx, r, 1, pairings, players)
	if err != nil {
		return 0, err
	}
	e.retag(r)
	return created, nil
}

// openSchedule creates every round of a round robin at once
func (e *Engine) openSchedule(ctx context.Context, r *round, entrants []pairing.Entrant, players map[string]*domain.Player) (int, error) {
	t := r.tournament
	schedule, err := pairing.RoundRobin(entrants)
	if err != nil {
		return 0, fmt.Errorf("building schedule: %w", err)
	}

	now := time.Now()
	var matches []domain.Match
	var first []domain.PairingView
	for i, pairings := range schedule {
		number := i + 1
		for _, pr := range pairings {
			var view domain.PairingView
			if pr.IsBye() {
				if p := r.participant(pr.White); p != nil {
					p.ByeRounds = append(p.ByeRounds, number)
				}
				view = domain.PairingView{WhitePlayerID: pr.White, Bye: true}
			} else {
				m := newMatch(t, number, pr, players, now)
				matches = append(matches, m)
				view = domain.PairingView{MatchID: m.ID, WhitePlayerID: m.WhitePlayerID, BlackPlayerID: m.BlackPlayerID}
			}
			if number == 1 {
				first = append(first, view)
			}
		}
	}

	if err := r.tx.CreateMatches(ctx, matches); err != nil {
		return 0, fmt.Errorf("creating schedule: %w", err)
	}
	t.CurrentRound = 1
	if err := r.tx.UpdateTournament(ctx, t); err != nil {
		return 0, fmt.Errorf("starting tournament: %w", err)
	}

	r.events = append(r.events, roundEvent(domain.EventTournamentStarted, t, 1, first, r.playerIDs()))
	return len(matches), nil
}

// retag turns the round event emitted by openRound into the start announcement
func (e *Engine) retag(r *round) {
	for i := range r.events {
		if r.events[i].Type == domain.EventRoundAdvanced {
			r.events[i].Type = domain.EventTournamentStarted
		}
	}
}
