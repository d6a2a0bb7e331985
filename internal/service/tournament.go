package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/events"
	"github.com/chess-tournaments/internal/progression"
)

// RatingBoard serves ranked rating lists per time control
type RatingBoard interface {
	Top(ctx context.Context, tc domain.TimeControl, limit int) ([]domain.RatingEntry, error)
	PlayerRank(ctx context.Context, tc domain.TimeControl, playerID string) (*domain.RatingEntry, error)
}

// TournamentService is the entry point for every tournament and result operation
type TournamentService struct {
	repo          domain.Repository
	notifications domain.NotificationStore
	engine        *progression.Engine
	dispatcher    events.Dispatcher
	board         RatingBoard
	config        *config.TournamentConfig
	limits        *config.LeaderboardConfig
	logger        *slog.Logger
}

// NewTournamentService creates a new tournament service
func NewTournamentService(
	repo domain.Repository,
	notifications domain.NotificationStore,
	engine *progression.Engine,
	dispatcher events.Dispatcher,
	cfg *config.TournamentConfig,
	limits *config.LeaderboardConfig,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		repo:          repo,
		notifications: notifications,
		engine:        engine,
		dispatcher:    dispatcher,
		config:        cfg,
		limits:        limits,
		logger:        logger,
	}
}

// SetRatingBoard plugs in a ranked board; without one leaderboards are computed from storage
func (s *TournamentService) SetRatingBoard(board RatingBoard) {
	s.board = board
}

// TournamentDetails is a tournament with its field
type TournamentDetails struct {
	*domain.Tournament
	Participants []domain.Participant `json:"participants"`
}

// CreateTournament validates the request, allocates a join code and stores the tournament
func (s *TournamentService) CreateTournament(ctx context.Context, req domain.CreateTournamentRequest) (*domain.Tournament, error) {
	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}

	minutes := req.TimeControlMinutes
	if minutes <= 0 {
		minutes = s.config.DefaultTimeControlMinutes
	}
	tc := domain.TimeControlForMinutes(minutes)
	if req.TimeControl != "" {
		if tc, err = domain.ParseTimeControl(req.TimeControl); err != nil {
			return nil, err
		}
		if !tc.IsGameClass() {
			return nil, fmt.Errorf("%w: tournaments cannot be played as %s", domain.ErrInvalidTimeControl, tc)
		}
		if req.TimeControlMinutes <= 0 && tc.CheckClock(minutes, req.IncrementSeconds) != nil {
			minutes = tc.TypicalMinutes()
		}
		if err := tc.CheckClock(minutes, req.IncrementSeconds); err != nil {
			return nil, err
		}
	}

	maxParticipants := req.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = s.config.DefaultMaxParticipants
	}
	if maxParticipants < progression.MinParticipants {
		return nil, fmt.Errorf("%w: max participants must be at least %d", domain.ErrInvalidRequest, progression.MinParticipants)
	}

	maxRounds := req.MaxRounds
	if maxRounds <= 0 && format == domain.FormatSwiss {
		maxRounds = s.config.DefaultSwissRounds
	}
	allowByes := s.config.ByesAllowed()
	if req.AllowByes != nil {
		allowByes = *req.AllowByes
	}

	if _, err := s.repo.GetPlayer(ctx, req.CreatedBy); err != nil {
		return nil, fmt.Errorf("getting creator: %w", err)
	}

	now := time.Now()
	t := &domain.Tournament{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		CreatedBy:          req.CreatedBy,
		Format:             format,
		Status:             domain.StatusUpcoming,
		CurrentRound:       1,
		MaxParticipants:    maxParticipants,
		PairingSystem:      domain.ParsePairingSystem(req.PairingSystem),
		TimeControl:        tc,
		TimeControlMinutes: minutes,
		IncrementSeconds:   req.IncrementSeconds,
		MaxRounds:          maxRounds,
		AllowByes:          allowByes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		code, err := s.allocateCode(ctx, tx)
		if err != nil {
			return err
		}
		t.Code = code

		if req.CreatorPlays {
			t.CurrentParticipants = 1
		}
		if err := tx.CreateTournament(ctx, t); err != nil {
			return fmt.Errorf("creating tournament: %w", err)
		}
		if req.CreatorPlays {
			if err := tx.AddParticipant(ctx, &domain.Participant{
				TournamentID: t.ID,
				PlayerID:     req.CreatedBy,
				Seed:         1,
				JoinedAt:     now,
			}); err != nil {
				return fmt.Errorf("adding creator: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament created",
		"tournament_id", t.ID,
		"format", t.Format,
		"code", t.Code,
	)
	return t, nil
}

func (s *TournamentService) allocateCode(ctx context.Context, tx domain.Repository) (string, error) {
	for attempt := 0; attempt < s.config.CodeAttempts; attempt++ {
		code, err := newCode(s.config.CodeLength)
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		exists, err := tx.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

// newCode returns a random numeric code with no leading zero
func newCode(length int) (string, error) {
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, low).String(), nil
}

// JoinByCode adds a player to the upcoming tournament the code belongs to
func (s *TournamentService) JoinByCode(ctx context.Context, req domain.JoinTournamentRequest) (*domain.Participant, error) {
	if _, err := s.repo.GetPlayer(ctx, req.PlayerID); err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}

	found, err := s.repo.GetTournamentByCode(ctx, strings.TrimSpace(req.Code))
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, domain.ErrInvalidCode
		}
		return nil, fmt.Errorf("looking up code: %w", err)
	}

	var participant *domain.Participant
	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		t, err := tx.LockTournament(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("locking tournament: %w", err)
		}
		if t.Status != domain.StatusUpcoming {
			return fmt.Errorf("%w: tournament is %s", domain.ErrInvalidState, t.Status)
		}
		if t.IsFull() {
			return domain.ErrTournamentFull
		}

		participant = &domain.Participant{
			TournamentID: t.ID,
			PlayerID:     req.PlayerID,
			Seed:         t.CurrentParticipants + 1,
			JoinedAt:     time.Now(),
		}
		if err := tx.AddParticipant(ctx, participant); err != nil {
			return err
		}
		t.CurrentParticipants++
		return tx.UpdateTournament(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("player joined tournament",
		"tournament_id", participant.TournamentID,
		"player_id", participant.PlayerID,
		"seed", participant.Seed,
	)
	return participant, nil
}

// StartTournament generates the first round
func (s *TournamentService) StartTournament(ctx context.Context, tournamentID string) (*domain.ProgressionResult, error) {
	return s.engine.Start(ctx, tournamentID)
}

// AdvanceTournament re-runs the round check for a tournament
func (s *TournamentService) AdvanceTournament(ctx context.Context, tournamentID string) (*domain.ProgressionResult, error) {
	return s.engine.Advance(ctx, tournamentID)
}

// CancelTournament stops a tournament that has not finished
func (s *TournamentService) CancelTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	var cancelled *domain.Tournament
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		t, err := tx.LockTournament(ctx, tournamentID)
		if err != nil {
			return fmt.Errorf("locking tournament: %w", err)
		}
		if t.Status.Terminal() {
			return fmt.Errorf("%w: tournament is %s", domain.ErrInvalidState, t.Status)
		}
		now := time.Now()
		t.Status = domain.StatusCancelled
		t.EndedAt = &now
		if err := tx.UpdateTournament(ctx, t); err != nil {
			return fmt.Errorf("cancelling tournament: %w", err)
		}
		cancelled = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament cancelled", "tournament_id", tournamentID)
	return cancelled, nil
}

// GetTournament returns a tournament and its participants
func (s *TournamentService) GetTournament(ctx context.Context, tournamentID string) (*TournamentDetails, error) {
	t, err := s.repo.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return &TournamentDetails{Tournament: t, Participants: participants}, nil
}

// ListTournaments returns tournaments, optionally filtered by status
func (s *TournamentService) ListTournaments(ctx context.Context, status string) ([]domain.Tournament, error) {
	st := domain.TournamentStatus(status)
	switch st {
	case "", domain.StatusUpcoming, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}
	return s.repo.ListTournaments(ctx, st)
}

// ListMatches returns a tournament's matches; round 0 returns all rounds
func (s *TournamentService) ListMatches(ctx context.Context, tournamentID string, round int) ([]domain.Match, error) {
	if round < 0 {
		return nil, fmt.Errorf("%w: round must not be negative", domain.ErrInvalidRequest)
	}
	if _, err := s.repo.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.repo.ListMatches(ctx, tournamentID, round)
}

// GetMatch returns a single match
func (s *TournamentService) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	return s.repo.GetMatch(ctx, matchID)
}

// Standings returns the score table of a tournament
func (s *TournamentService) Standings(ctx context.Context, tournamentID string) ([]domain.Standing, error) {
	t, err := s.repo.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	matches, err := s.repo.ListMatches(ctx, tournamentID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return progression.Standings(t.Format, participants, matches), nil
}
