package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chess-tournaments/internal/domain"
)

const matchColumns = `id, COALESCE(tournament_id, ''), white_player_id, black_player_id, round_number,
	status, result, winner_id, white_elo_before, black_elo_before, white_elo_after, black_elo_after,
	time_control, pgn, move_count, replay_count, completed_at, created_at, updated_at`

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.WhitePlayerID,
		&m.BlackPlayerID,
		&m.RoundNumber,
		&m.Status,
		&m.Result,
		&m.WinnerID,
		&m.WhiteEloBefore,
		&m.BlackEloBefore,
		&m.WhiteEloAfter,
		&m.BlackEloAfter,
		&m.TimeControl,
		&m.PGN,
		&m.MoveCount,
		&m.ReplayCount,
		&m.CompletedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LockMatch selects the match row FOR UPDATE
func (r *Repository) LockMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	m, err := scanMatch(r.q.QueryRow(ctx, query, matchID))
	if err != nil {
		return nil, notFound(err, domain.ErrMatchNotFound)
	}
	return m, nil
}

func (r *Repository) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.q.QueryRow(ctx, query, matchID))
	if err != nil {
		return nil, notFound(err, domain.ErrMatchNotFound)
	}
	return m, nil
}

// ListMatches returns matches in creation order; round 0 selects every round
func (r *Repository) ListMatches(ctx context.Context, tournamentID string, round int) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE tournament_id = $1 AND ($2 = 0 OR round_number = $2)
		ORDER BY round_number, seq`
	rows, err := r.q.Query(ctx, query, tournamentID, round)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CreateMatches inserts a round of matches in one batch
func (r *Repository) CreateMatches(ctx context.Context, matches []domain.Match) error {
	if len(matches) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO matches (id, tournament_id, white_player_id, black_player_id, round_number, status,
			white_elo_before, black_elo_before, time_control, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, m := range matches {
		batch.Queue(query,
			m.ID,
			m.TournamentID,
			m.WhitePlayerID,
			m.BlackPlayerID,
			m.RoundNumber,
			string(m.Status),
			m.WhiteEloBefore,
			m.BlackEloBefore,
			string(m.TimeControl),
			m.CreatedAt,
			m.UpdatedAt,
		)
	}

	br := r.q.SendBatch(ctx, batch)
	defer br.Close()

	for range matches {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate match id", domain.ErrInvalidRequest)
			}
			return fmt.Errorf("batch creating matches: %w", err)
		}
	}
	return nil
}

func (r *Repository) UpdateMatch(ctx context.Context, m *domain.Match) error {
	query := `
		UPDATE matches SET
			status = $2, result = $3, winner_id = $4,
			white_elo_before = $5, black_elo_before = $6, white_elo_after = $7, black_elo_after = $8,
			pgn = $9, move_count = $10, replay_count = $11, completed_at = $12, updated_at = $13
		WHERE id = $1
	`
	m.UpdatedAt = time.Now()
	result, err := r.q.Exec(ctx, query,
		m.ID,
		string(m.Status),
		string(m.Result),
		m.WinnerID,
		m.WhiteEloBefore,
		m.BlackEloBefore,
		m.WhiteEloAfter,
		m.BlackEloAfter,
		m.PGN,
		m.MoveCount,
		m.ReplayCount,
		m.CompletedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}
