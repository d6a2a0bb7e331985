package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/pairing"
)

const defaultInboxLimit = 50

// RegisterPlayer creates a player with every rating class at the default
func (s *TournamentService) RegisterPlayer(ctx context.Context, req domain.RegisterPlayerRequest) (*domain.Player, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.NewPlayer(id, strings.TrimSpace(req.Username))
	if err := s.repo.CreatePlayer(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("player registered", "player_id", p.ID)
	return p, nil
}

// GetPlayer returns a player with ratings and counters
func (s *TournamentService) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	return s.repo.GetPlayer(ctx, playerID)
}

// Leaderboard returns the top rated players for a time control
func (s *TournamentService) Leaderboard(ctx context.Context, tc domain.TimeControl, limit int) ([]domain.RatingEntry, error) {
	if !tc.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimeControl, tc)
	}
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}

	if s.board != nil {
		entries, err := s.board.Top(ctx, tc, limit)
		if err == nil {
			return entries, nil
		}
		s.logger.Warn("rating board unavailable, reading storage", "time_control", tc, "error", err)
	}

	players, err := s.repo.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Rating(tc) > players[j].Rating(tc)
	})
	if len(players) > limit {
		players = players[:limit]
	}
	entries := make([]domain.RatingEntry, len(players))
	for i, p := range players {
		entries[i] = domain.RatingEntry{
			PlayerID: p.ID,
			Rating:   int64(p.Rating(tc)),
			Username: p.Username,
		}
	}
	domain.RankEntries(entries, 0)
	return entries, nil
}

// PlayerRank returns a player's position on a time-control leaderboard
func (s *TournamentService) PlayerRank(ctx context.Context, tc domain.TimeControl, playerID string) (*domain.RatingEntry, error) {
	if !tc.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimeControl, tc)
	}

	if s.board != nil {
		entry, err := s.board.PlayerRank(ctx, tc, playerID)
		if err == nil || domain.IsNotFoundError(err) {
			return entry, err
		}
		s.logger.Warn("rating board unavailable, reading storage", "time_control", tc, "error", err)
	}

	player, err := s.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	players, err := s.repo.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	rating := player.Rating(tc)
	rank := int64(1)
	for _, p := range players {
		if p.Rating(tc) > rating {
			rank++
		}
	}
	return &domain.RatingEntry{
		Rank:     rank,
		PlayerID: player.ID,
		Rating:   int64(rating),
		Username: player.Username,
	}, nil
}

// ListNotifications returns a player's inbox, newest first
func (s *TournamentService) ListNotifications(ctx context.Context, playerID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > defaultInboxLimit {
		limit = defaultInboxLimit
	}
	return s.notifications.ListNotifications(ctx, playerID, unreadOnly, limit)
}

// MarkNotificationRead flags an inbox entry as read
func (s *TournamentService) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return s.notifications.MarkNotificationRead(ctx, notificationID)
}

// PreviewRequest asks for pairings without touching any tournament
type PreviewRequest struct {
	Mode     string            `json:"mode" validate:"required,oneof=random rating swiss bracket seeded"`
	Entrants []pairing.Entrant `json:"entrants" validate:"required,min=2,dive"`
	History  []domain.Match    `json:"history,omitempty"`
	Byes     map[string]int    `json:"byes,omitempty"`
	Seed     *int64            `json:"seed,omitempty"`
}

// PreviewPairings runs the pairing generator on caller-supplied data
func (s *TournamentService) PreviewPairings(req PreviewRequest) ([]pairing.Pairing, error) {
	mode, err := pairing.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	opts := pairing.Options{History: req.History, Byes: req.Byes}
	if req.Seed != nil {
		opts.Rand = rand.New(rand.NewSource(*req.Seed))
	}
	return pairing.Generate(req.Entrants, mode, opts)
}
