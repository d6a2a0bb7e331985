package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chess-tournaments/internal/domain"
)

// CreateNotifications inserts inbox entries in one batch
func (r *Repository) CreateNotifications(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO notifications (id, player_id, type, title, message, tournament_id, match_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, n := range notifications {
		batch.Queue(query,
			n.ID,
			n.PlayerID,
			string(n.Type),
			n.Title,
			n.Message,
			n.TournamentID,
			n.MatchID,
			n.IsRead,
			n.CreatedAt,
		)
	}

	br := r.q.SendBatch(ctx, batch)
	defer br.Close()

	for range notifications {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch creating notifications: %w", err)
		}
	}
	return nil
}

// ListNotifications returns a player's inbox newest first
func (r *Repository) ListNotifications(ctx context.Context, playerID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `
		SELECT id, player_id, type, title, message, tournament_id, match_id, is_read, created_at, read_at
		FROM notifications
		WHERE player_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.q.Query(ctx, query, playerID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID,
			&n.PlayerID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.TournamentID,
			&n.MatchID,
			&n.IsRead,
			&n.CreatedAt,
			&n.ReadAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) MarkNotificationRead(ctx context.Context, notificationID string) error {
	query := `UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $2) WHERE id = $1`
	result, err := r.q.Exec(ctx, query, notificationID, time.Now())
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
