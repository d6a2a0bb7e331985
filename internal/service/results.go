package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/rating"
)

// ReportResult is the single funnel every game ending goes through, whether it
// came from checkmate, resignation, an agreed draw, a timeout or a forfeit.
//
// The match is moved to completed at most once; a second report for the same
// match returns AlreadyFinal and touches nothing. A draw in an elimination
// tournament sends the match back to scheduled for a replay and leaves ratings
// alone. Otherwise ratings are updated once, and the round check runs. Failures
// after the result has been stored are logged rather than returned: the result
// stands and the sweep worker retries the round check.
func (s *TournamentService) ReportResult(ctx context.Context, outcome domain.GameOutcome) (*domain.ReportOutcome, error) {
	report := &domain.ReportOutcome{MatchID: outcome.MatchID}

	var (
		final   *domain.Match
		pending []domain.Event
	)
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		pending = nil
		report.AlreadyFinal = false
		report.ReplayRequired = false

		m, err := tx.LockMatch(ctx, outcome.MatchID)
		if err != nil {
			return fmt.Errorf("locking match: %w", err)
		}
		if m.Status.Finished() {
			report.AlreadyFinal = true
			return nil
		}
		winnerID, err := outcome.Resolve(m)
		if err != nil {
			return err
		}

		if m.TournamentID != "" {
			t, err := tx.GetTournament(ctx, m.TournamentID)
			if err != nil {
				return fmt.Errorf("getting tournament: %w", err)
			}
			if t.Status != domain.StatusInProgress {
				return fmt.Errorf("%w: tournament is %s", domain.ErrInvalidState, t.Status)
			}
			if outcome.IsDraw() && t.Format == domain.FormatElimination {
				m.Status = domain.MatchScheduled
				m.Result = ""
				m.WinnerID = ""
				m.ReplayCount++
				if err := tx.UpdateMatch(ctx, m); err != nil {
					return fmt.Errorf("resetting match for replay: %w", err)
				}
				report.ReplayRequired = true
				pending = append(pending, domain.NewEvent(domain.EventMatchReplay, t.ID, domain.MatchReplay{
					MatchID:       m.ID,
					WhitePlayerID: m.WhitePlayerID,
					BlackPlayerID: m.BlackPlayerID,
					RoundNumber:   m.RoundNumber,
				}))
				return nil
			}
		}

		now := time.Now()
		m.Status = domain.MatchCompleted
		m.Result = outcome.Result
		m.WinnerID = winnerID
		m.PGN = outcome.PGN
		m.MoveCount = outcome.MoveCount
		m.CompletedAt = &now
		if err := tx.UpdateMatch(ctx, m); err != nil {
			return fmt.Errorf("completing match: %w", err)
		}
		final = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.AlreadyFinal {
		s.logger.Info("result already recorded", "match_id", outcome.MatchID)
		return report, nil
	}
	if report.ReplayRequired {
		s.logger.Info("elimination draw, replay scheduled", "match_id", outcome.MatchID)
		s.dispatcher.Dispatch(ctx, pending...)
		return report, nil
	}

	s.logger.Info("match completed",
		"match_id", final.ID,
		"tournament_id", final.TournamentID,
		"result", final.Result,
		"ending", outcome.Ending,
	)

	delta, err := s.applyRatings(ctx, final)
	if err != nil {
		s.logger.Error("failed to update ratings", "match_id", final.ID, "error", err)
	} else {
		report.Ratings = delta
		s.dispatcher.Dispatch(ctx, delta.Events(final.ID)...)
	}

	if final.TournamentID != "" {
		progress, err := s.engine.OnMatchCompleted(ctx, final.TournamentID, final.ID)
		if err != nil {
			s.logger.Error("failed to check round completion",
				"tournament_id", final.TournamentID,
				"match_id", final.ID,
				"error", err,
			)
		} else {
			report.Progression = progress
		}
	}

	return report, nil
}

// applyRatings updates both players and the match snapshots in one transaction
func (s *TournamentService) applyRatings(ctx context.Context, m *domain.Match) (*domain.RatingDelta, error) {
	tc := m.TimeControl
	if tc == "" {
		tc = domain.TimeControlBlitz
	}

	var delta *domain.RatingDelta
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		players, err := tx.LockPlayers(ctx, []string{m.WhitePlayerID, m.BlackPlayerID})
		if err != nil {
			return fmt.Errorf("locking players: %w", err)
		}
		white, black := players[m.WhitePlayerID], players[m.BlackPlayerID]

		winner, loser := white, black
		if m.WinnerID == m.BlackPlayerID {
			winner, loser = black, white
		}
		delta, err = rating.Update(winner, loser, m.Result == domain.ResultDraw, tc)
		if err != nil {
			return fmt.Errorf("computing ratings: %w", err)
		}
		if err := tx.UpdatePlayers(ctx, white, black); err != nil {
			return fmt.Errorf("storing ratings: %w", err)
		}

		current, err := tx.LockMatch(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("locking match: %w", err)
		}
		whiteChange, blackChange := delta.Winner, delta.Loser
		if winner.ID != white.ID {
			whiteChange, blackChange = delta.Loser, delta.Winner
		}
		current.WhiteEloBefore = whiteChange.OldRating
		current.BlackEloBefore = blackChange.OldRating
		current.WhiteEloAfter = whiteChange.NewRating
		current.BlackEloAfter = blackChange.NewRating
		if err := tx.UpdateMatch(ctx, current); err != nil {
			return fmt.Errorf("storing rating snapshots: %w", err)
		}
		*m = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ratings updated",
		"match_id", m.ID,
		"time_control", tc,
		"winner_id", delta.Winner.PlayerID,
		"winner_delta", delta.Winner.Delta,
		"loser_id", delta.Loser.PlayerID,
		"loser_delta", delta.Loser.Delta,
	)
	return delta, nil
}
