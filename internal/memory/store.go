// Package memory provides an in-process implementation of the tournament
// repository. It backs the "memory" storage driver and the package tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chess-tournaments/internal/domain"
)

type state struct {
	tournaments   map[string]domain.Tournament
	participants  map[string][]domain.Participant
	matches       map[string]domain.Match
	matchOrder    []string
	players       map[string]*domain.Player
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		tournaments:  make(map[string]domain.Tournament),
		participants: make(map[string][]domain.Participant),
		matches:      make(map[string]domain.Match),
		players:      make(map[string]*domain.Player),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, t := range s.tournaments {
		c.tournaments[id] = t
	}
	for id, ps := range s.participants {
		c.participants[id] = cloneParticipants(ps)
	}
	for id, m := range s.matches {
		c.matches[id] = m
	}
	c.matchOrder = slices.Clone(s.matchOrder)
	for id, p := range s.players {
		c.players[id] = p.Clone()
	}
	c.notifications = slices.Clone(s.notifications)
	return c
}

func cloneParticipants(ps []domain.Participant) []domain.Participant {
	out := make([]domain.Participant, len(ps))
	for i, p := range ps {
		p.ByeRounds = slices.Clone(p.ByeRounds)
		out[i] = p
	}
	return out
}

type db struct {
	// txMu serialises transactions and writes made outside of one
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

// Store is an in-memory domain.Repository and domain.NotificationStore.
// A transaction works on a private copy of the data that replaces the
// shared copy on commit, so other readers only see committed state.
type Store struct {
	db *db
	// work is the transaction's copy; nil outside a transaction
	work *state
}

var (
	_ domain.Repository        = (*Store)(nil)
	_ domain.NotificationStore = (*Store)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{db: &db{data: newState()}}
}

// InTx runs fn with every other transaction excluded; an error discards its writes
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	if s.work != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	s.db.mu.RLock()
	work := s.db.data.clone()
	s.db.mu.RUnlock()

	if err := fn(&Store{db: s.db, work: work}); err != nil {
		return err
	}

	s.db.mu.Lock()
	s.db.data = work
	s.db.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(st *state) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return fn(s.db.data)
}

func (s *Store) write(fn func(st *state) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

// LockTournament returns the tournament; exclusivity comes from the enclosing InTx
func (s *Store) LockTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	return s.GetTournament(ctx, tournamentID)
}

func (s *Store) GetTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	var out *domain.Tournament
	err := s.read(func(st *state) error {
		t, ok := st.tournaments[tournamentID]
		if !ok {
			return domain.ErrTournamentNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (s *Store) GetTournamentByCode(ctx context.Context, code string) (*domain.Tournament, error) {
	var out *domain.Tournament
	err := s.read(func(st *state) error {
		for _, t := range st.tournaments {
			if t.Code == code {
				out = &t
				return nil
			}
		}
		return domain.ErrTournamentNotFound
	})
	return out, err
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.GetTournamentByCode(ctx, code)
	if err == domain.ErrTournamentNotFound {
		return false, nil
	}
	return err == nil, err
}

// ListTournaments returns tournaments newest first; an empty status selects all
func (s *Store) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error) {
	var out []domain.Tournament
	err := s.read(func(st *state) error {
		for _, t := range st.tournaments {
			if status == "" || t.Status == status {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (s *Store) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	return s.write(func(st *state) error {
		if _, ok := st.tournaments[t.ID]; ok {
			return fmt.Errorf("%w: tournament %s already exists", domain.ErrInvalidRequest, t.ID)
		}
		st.tournaments[t.ID] = *t
		return nil
	})
}

func (s *Store) UpdateTournament(ctx context.Context, t *domain.Tournament) error {
	return s.write(func(st *state) error {
		if _, ok := st.tournaments[t.ID]; !ok {
			return domain.ErrTournamentNotFound
		}
		t.UpdatedAt = time.Now()
		st.tournaments[t.ID] = *t
		return nil
	})
}

// ListParticipants returns participants in join order
func (s *Store) ListParticipants(ctx context.Context, tournamentID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.read(func(st *state) error {
		out = cloneParticipants(st.participants[tournamentID])
		return nil
	})
	return out, err
}

func (s *Store) AddParticipant(ctx context.Context, p *domain.Participant) error {
	return s.write(func(st *state) error {
		if _, ok := st.tournaments[p.TournamentID]; !ok {
			return domain.ErrTournamentNotFound
		}
		for _, existing := range st.participants[p.TournamentID] {
			if existing.PlayerID == p.PlayerID {
				return domain.ErrAlreadyJoined
			}
		}
		c := *p
		c.ByeRounds = slices.Clone(p.ByeRounds)
		st.participants[p.TournamentID] = append(st.participants[p.TournamentID], c)
		return nil
	})
}

func (s *Store) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	return s.write(func(st *state) error {
		ps := st.participants[p.TournamentID]
		for i := range ps {
			if ps[i].PlayerID == p.PlayerID {
				c := *p
				c.ByeRounds = slices.Clone(p.ByeRounds)
				ps[i] = c
				return nil
			}
		}
		return fmt.Errorf("%w: %s is not in tournament %s", domain.ErrPlayerNotFound, p.PlayerID, p.TournamentID)
	})
}

// LockMatch returns the match; exclusivity comes from the enclosing InTx
func (s *Store) LockMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	return s.GetMatch(ctx, matchID)
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	var out *domain.Match
	err := s.read(func(st *state) error {
		m, ok := st.matches[matchID]
		if !ok {
			return domain.ErrMatchNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

// ListMatches returns matches in creation order; round 0 selects every round
func (s *Store) ListMatches(ctx context.Context, tournamentID string, round int) ([]domain.Match, error) {
	var out []domain.Match
	err := s.read(func(st *state) error {
		for _, id := range st.matchOrder {
			m := st.matches[id]
			if m.TournamentID != tournamentID {
				continue
			}
			if round != 0 && m.RoundNumber != round {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RoundNumber < out[j].RoundNumber
	})
	return out, err
}

func (s *Store) CreateMatches(ctx context.Context, matches []domain.Match) error {
	return s.write(func(st *state) error {
		for _, m := range matches {
			if _, ok := st.matches[m.ID]; ok {
				return fmt.Errorf("%w: match %s already exists", domain.ErrInvalidRequest, m.ID)
			}
		}
		for _, m := range matches {
			st.matches[m.ID] = m
			st.matchOrder = append(st.matchOrder, m.ID)
		}
		return nil
	})
}

func (s *Store) UpdateMatch(ctx context.Context, m *domain.Match) error {
	return s.write(func(st *state) error {
		if _, ok := st.matches[m.ID]; !ok {
			return domain.ErrMatchNotFound
		}
		m.UpdatedAt = time.Now()
		st.matches[m.ID] = *m
		return nil
	})
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var out *domain.Player
	err := s.read(func(st *state) error {
		p, ok := st.players[playerID]
		if !ok {
			return domain.ErrPlayerNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// GetPlayers returns the players that exist; unknown ids are left out
func (s *Store) GetPlayers(ctx context.Context, playerIDs []string) (map[string]*domain.Player, error) {
	out := make(map[string]*domain.Player, len(playerIDs))
	err := s.read(func(st *state) error {
		for _, id := range playerIDs {
			if p, ok := st.players[id]; ok {
				out[id] = p.Clone()
			}
		}
		return nil
	})
	return out, err
}

// LockPlayers returns every requested player or ErrPlayerNotFound
func (s *Store) LockPlayers(ctx context.Context, playerIDs []string) (map[string]*domain.Player, error) {
	players, err := s.GetPlayers(ctx, playerIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range playerIDs {
		if _, ok := players[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
		}
	}
	return players, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	return s.write(func(st *state) error {
		if _, ok := st.players[p.ID]; ok {
			return domain.ErrPlayerExists
		}
		st.players[p.ID] = p.Clone()
		return nil
	})
}

func (s *Store) UpdatePlayers(ctx context.Context, players ...*domain.Player) error {
	return s.write(func(st *state) error {
		for _, p := range players {
			if _, ok := st.players[p.ID]; !ok {
				return fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, p.ID)
			}
		}
		for _, p := range players {
			st.players[p.ID] = p.Clone()
		}
		return nil
	})
}

// ListPlayers returns every player ordered by id
func (s *Store) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	var out []domain.Player
	err := s.read(func(st *state) error {
		for _, p := range st.players {
			out = append(out, *p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) CreateNotifications(ctx context.Context, notifications []domain.Notification) error {
	return s.write(func(st *state) error {
		st.notifications = append(st.notifications, notifications...)
		return nil
	})
}

// ListNotifications returns a player's inbox newest first
func (s *Store) ListNotifications(ctx context.Context, playerID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := s.read(func(st *state) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.PlayerID != playerID || (unreadOnly && n.IsRead) {
				continue
			}
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return s.write(func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].ID == notificationID {
				if !st.notifications[i].IsRead {
					now := time.Now()
					st.notifications[i].IsRead = true
					st.notifications[i].ReadAt = &now
				}
				return nil
			}
		}
		return domain.ErrNotificationNotFound
	})
}

// Ping always succeeds; it lets the store stand in wherever readiness is probed
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
