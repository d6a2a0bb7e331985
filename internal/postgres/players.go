package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chess-tournaments/internal/domain"
)

const playerColumns = `id, username, ratings, wins, losses, draws, matches_played, is_provisional, created_at, updated_at`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var (
		p       domain.Player
		ratings []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Username,
		&ratings,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.MatchesPlayed,
		&p.IsProvisional,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ratings, &p.Ratings); err != nil {
		return nil, fmt.Errorf("decoding ratings of %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	p, err := scanPlayer(r.q.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, notFound(err, domain.ErrPlayerNotFound)
	}
	return p, nil
}

// GetPlayers returns the players that exist; unknown ids are left out
func (r *Repository) GetPlayers(ctx context.Context, playerIDs []string) (map[string]*domain.Player, error) {
	return r.selectPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ANY($1)`, playerIDs)
}

// LockPlayers selects the rows FOR UPDATE in id order so concurrent games sharing a player cannot deadlock
func (r *Repository) LockPlayers(ctx context.Context, playerIDs []string) (map[string]*domain.Player, error) {
	ids := append([]string(nil), playerIDs...)
	sort.Strings(ids)

	players, err := r.selectPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := players[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
		}
	}
	return players, nil
}

func (r *Repository) selectPlayers(ctx context.Context, query string, ids []string) (map[string]*domain.Player, error) {
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("getting players: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Player, len(ids))
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repository) CreatePlayer(ctx context.Context, p *domain.Player) error {
	ratings, err := json.Marshal(p.Ratings)
	if err != nil {
		return fmt.Errorf("marshaling ratings: %w", err)
	}

	query := `
		INSERT INTO players (` + playerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.q.Exec(ctx, query,
		p.ID,
		p.Username,
		ratings,
		p.Wins,
		p.Losses,
		p.Draws,
		p.MatchesPlayed,
		p.IsProvisional,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPlayerExists
		}
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// UpdatePlayers writes ratings and counters for each player
func (r *Repository) UpdatePlayers(ctx context.Context, players ...*domain.Player) error {
	query := `
		UPDATE players SET
			ratings = $2, wins = $3, losses = $4, draws = $5,
			matches_played = $6, is_provisional = $7, updated_at = $8
		WHERE id = $1
	`
	now := time.Now()
	for _, p := range players {
		ratings, err := json.Marshal(p.Ratings)
		if err != nil {
			return fmt.Errorf("marshaling ratings: %w", err)
		}
		p.UpdatedAt = now
		result, err := r.q.Exec(ctx, query,
			p.ID,
			ratings,
			p.Wins,
			p.Losses,
			p.Draws,
			p.MatchesPlayed,
			p.IsProvisional,
			p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating player %s: %w", p.ID, err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, p.ID)
		}
	}
	return nil
}

// ListPlayers retrieves every player (for leaderboard rebuilds)
func (r *Repository) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.q.Query(ctx, `SELECT `+playerColumns+` FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var out []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
