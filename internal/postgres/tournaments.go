package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chess-tournaments/internal/domain"
)

const tournamentColumns = `id, code, name, description, created_by, format, status, current_round,
	max_participants, current_participants, pairing_system, time_control, time_control_minutes,
	increment_seconds, max_rounds, allow_byes, started_at, ended_at, created_at, updated_at`

func scanTournament(row pgx.Row) (*domain.Tournament, error) {
	var t domain.Tournament
	err := row.Scan(
		&t.ID,
		&t.Code,
		&t.Name,
		&t.Description,
		&t.CreatedBy,
		&t.Format,
		&t.Status,
		&t.CurrentRound,
		&t.MaxParticipants,
		&t.CurrentParticipants,
		&t.PairingSystem,
		&t.TimeControl,
		&t.TimeControlMinutes,
		&t.IncrementSeconds,
		&t.MaxRounds,
		&t.AllowByes,
		&t.StartedAt,
		&t.EndedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LockTournament selects the tournament row FOR UPDATE
func (r *Repository) LockTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	t, err := scanTournament(r.q.QueryRow(ctx, query, tournamentID))
	if err != nil {
		return nil, notFound(err, domain.ErrTournamentNotFound)
	}
	return t, nil
}

// GetTournament retrieves a tournament by ID
func (r *Repository) GetTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	t, err := scanTournament(r.q.QueryRow(ctx, query, tournamentID))
	if err != nil {
		return nil, notFound(err, domain.ErrTournamentNotFound)
	}
	return t, nil
}

// GetTournamentByCode retrieves a tournament by its join code
func (r *Repository) GetTournamentByCode(ctx context.Context, code string) (*domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE code = $1`
	t, err := scanTournament(r.q.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFound(err, domain.ErrTournamentNotFound)
	}
	return t, nil
}

func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tournaments WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking code existence: %w", err)
	}
	return exists, nil
}

// ListTournaments returns tournaments newest first; an empty status selects all
func (r *Repository) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id`
	rows, err := r.q.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing tournaments: %w", err)
	}
	defer rows.Close()

	var out []domain.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tournament: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Repository) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	query := `
		INSERT INTO tournaments (` + tournamentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.q.Exec(ctx, query,
		t.ID,
		t.Code,
		t.Name,
		t.Description,
		t.CreatedBy,
		string(t.Format),
		string(t.Status),
		t.CurrentRound,
		t.MaxParticipants,
		t.CurrentParticipants,
		string(t.PairingSystem),
		string(t.TimeControl),
		t.TimeControlMinutes,
		t.IncrementSeconds,
		t.MaxRounds,
		t.AllowByes,
		t.StartedAt,
		t.EndedAt,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: code %s already in use", domain.ErrInvalidRequest, t.Code)
		}
		return fmt.Errorf("creating tournament: %w", err)
	}
	return nil
}

func (r *Repository) UpdateTournament(ctx context.Context, t *domain.Tournament) error {
	query := `
		UPDATE tournaments SET
			name = $2, description = $3, status = $4, current_round = $5,
			max_participants = $6, current_participants = $7, max_rounds = $8,
			allow_byes = $9, started_at = $10, ended_at = $11, updated_at = $12
		WHERE id = $1
	`
	t.UpdatedAt = time.Now()
	result, err := r.q.Exec(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		string(t.Status),
		t.CurrentRound,
		t.MaxParticipants,
		t.CurrentParticipants,
		t.MaxRounds,
		t.AllowByes,
		t.StartedAt,
		t.EndedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating tournament: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTournamentNotFound
	}
	return nil
}

// ListParticipants returns participants in join order
func (r *Repository) ListParticipants(ctx context.Context, tournamentID string) ([]domain.Participant, error) {
	query := `
		SELECT tournament_id, player_id, seed, is_eliminated, placement, bye_rounds, joined_at
		FROM tournament_participants
		WHERE tournament_id = $1
		ORDER BY joined_at, seed
	`
	rows, err := r.q.Query(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		err := rows.Scan(
			&p.TournamentID,
			&p.PlayerID,
			&p.Seed,
			&p.IsEliminated,
			&p.Placement,
			&p.ByeRounds,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) AddParticipant(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO tournament_participants (tournament_id, player_id, seed, is_eliminated, placement, bye_rounds, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.Exec(ctx, query,
		p.TournamentID,
		p.PlayerID,
		p.Seed,
		p.IsEliminated,
		p.Placement,
		byeRounds(p.ByeRounds),
		p.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

func (r *Repository) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	query := `
		UPDATE tournament_participants
		SET is_eliminated = $3, placement = $4, bye_rounds = $5
		WHERE tournament_id = $1 AND player_id = $2
	`
	result, err := r.q.Exec(ctx, query,
		p.TournamentID,
		p.PlayerID,
		p.IsEliminated,
		p.Placement,
		byeRounds(p.ByeRounds),
	)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is not in tournament %s", domain.ErrPlayerNotFound, p.PlayerID, p.TournamentID)
	}
	return nil
}

// byeRounds keeps the column NOT NULL
func byeRounds(rounds []int) []int {
	if rounds == nil {
		return []int{}
	}
	return rounds
}
