package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
)

// Advancer re-runs the round check for in-progress tournaments
type Advancer interface {
	ListTournaments(ctx context.Context, status string) ([]domain.Tournament, error)
	AdvanceTournament(ctx context.Context, tournamentID string) (*domain.ProgressionResult, error)
}

// PlayerLister reads every player from storage
type PlayerLister interface {
	ListPlayers(ctx context.Context) ([]domain.Player, error)
}

// BoardRebuilder replaces the ranked rating sets with storage contents
type BoardRebuilder interface {
	Rebuild(ctx context.Context, players []domain.Player) error
}

// SweepWorker periodically advances rounds whose completion was missed,
// e.g. when the process died between committing a result and advancing
type SweepWorker struct {
	advancer Advancer
	config   *config.SweepConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(advancer Advancer, cfg *config.SweepConfig, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		advancer: advancer,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sweep
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sweep worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sweep and waits for the current cycle
func (w *SweepWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sweep worker stopped")
	return nil
}

func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// SweepStats summarises one sweep cycle
type SweepStats struct {
	Checked  int
	Advanced int
	Finished int
	Errors   int
}

// sweep runs the round check on every in-progress tournament
func (w *SweepWorker) sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	startTime := time.Now()

	tournaments, err := w.advancer.ListTournaments(ctx, string(domain.StatusInProgress))
	if err != nil {
		w.logger.Error("failed to list tournaments for sweep", "error", err)
		stats.Errors++
		return stats
	}

	for _, t := range tournaments {
		stats.Checked++
		result, err := w.advancer.AdvanceTournament(ctx, t.ID)
		if err != nil {
			w.logger.Error("failed to advance tournament",
				"tournament_id", t.ID,
				"error", err,
			)
			stats.Errors++
			continue
		}
		if result.TournamentComplete {
			stats.Finished++
		} else if result.RoundComplete {
			stats.Advanced++
		}
	}

	if stats.Advanced > 0 || stats.Finished > 0 || stats.Errors > 0 {
		w.logger.Info("sweep cycle completed",
			"duration", time.Since(startTime),
			"checked", stats.Checked,
			"advanced", stats.Advanced,
			"finished", stats.Finished,
			"errors", stats.Errors,
		)
	}
	return stats
}

// IsRunning returns whether the worker is currently running
func (w *SweepWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sweep cycle
func (w *SweepWorker) RunOnce(ctx context.Context) SweepStats {
	return w.sweep(ctx)
}

// RebuildBoards loads every player from storage into the ranked rating sets.
// Run at startup so the board recovers after Redis loses its data.
func RebuildBoards(ctx context.Context, players PlayerLister, board BoardRebuilder, logger *slog.Logger) error {
	startTime := time.Now()
	all, err := players.ListPlayers(ctx)
	if err != nil {
		return err
	}
	if err := board.Rebuild(ctx, all); err != nil {
		return err
	}
	logger.Info("rebuilt rating boards from storage",
		"players", len(all),
		"duration", time.Since(startTime),
	)
	return nil
}
