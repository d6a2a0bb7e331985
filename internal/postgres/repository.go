package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	q      querier
	inTx   bool
	logger *slog.Logger
}

var (
	_ domain.Repository        = (*Repository)(nil)
	_ domain.NotificationStore = (*Repository)(nil)
)

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		q:      pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InTx runs fn inside a transaction. Nested calls join the outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&Repository{pool: r.pool, q: tx, inTx: true, logger: r.logger}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(64) NOT NULL,
			ratings JSONB NOT NULL DEFAULT '{}',
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			draws INT NOT NULL DEFAULT 0,
			matches_played INT NOT NULL DEFAULT 0,
			is_provisional BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tournaments (
			id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(12) NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by VARCHAR(64) NOT NULL REFERENCES players(id),
			format VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			current_round INT NOT NULL DEFAULT 1,
			max_participants INT NOT NULL,
			current_participants INT NOT NULL DEFAULT 0,
			pairing_system VARCHAR(20) NOT NULL DEFAULT 'random',
			time_control VARCHAR(20) NOT NULL,
			time_control_minutes INT NOT NULL,
			increment_seconds INT NOT NULL DEFAULT 0,
			max_rounds INT NOT NULL DEFAULT 0,
			allow_byes BOOLEAN NOT NULL DEFAULT TRUE,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tournament_participants (
			tournament_id VARCHAR(64) NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			seed INT NOT NULL,
			is_eliminated BOOLEAN NOT NULL DEFAULT FALSE,
			placement INT NOT NULL DEFAULT 0,
			bye_rounds INT[] NOT NULL DEFAULT '{}',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tournament_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			seq BIGSERIAL,
			id VARCHAR(64) PRIMARY KEY,
			tournament_id VARCHAR(64) REFERENCES tournaments(id) ON DELETE CASCADE,
			white_player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			black_player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			round_number INT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			result VARCHAR(20) NOT NULL DEFAULT '',
			winner_id VARCHAR(64) NOT NULL DEFAULT '',
			white_elo_before INT NOT NULL DEFAULT 0,
			black_elo_before INT NOT NULL DEFAULT 0,
			white_elo_after INT NOT NULL DEFAULT 0,
			black_elo_after INT NOT NULL DEFAULT 0,
			time_control VARCHAR(20) NOT NULL DEFAULT '',
			pgn TEXT NOT NULL DEFAULT '',
			move_count INT NOT NULL DEFAULT 0,
			replay_count INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL,
			tournament_id VARCHAR(64) NOT NULL DEFAULT '',
			match_id VARCHAR(64) NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			read_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tournaments_status ON tournaments(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_round ON matches(tournament_id, round_number, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_inbox ON notifications(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.q.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
