package domain

import "context"

// Repository is the storage contract the tournament core runs against.
// Implementations must make InTx atomic and LockTournament exclusive for the
// lifetime of the enclosing transaction.
type Repository interface {
	// InTx runs fn inside a transaction; fn receives a repository bound to it
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// LockTournament loads a tournament and holds it until the transaction ends
	LockTournament(ctx context.Context, tournamentID string) (*Tournament, error)
	GetTournament(ctx context.Context, tournamentID string) (*Tournament, error)
	GetTournamentByCode(ctx context.Context, code string) (*Tournament, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListTournaments(ctx context.Context, status TournamentStatus) ([]Tournament, error)
	CreateTournament(ctx context.Context, t *Tournament) error
	UpdateTournament(ctx context.Context, t *Tournament) error

	ListParticipants(ctx context.Context, tournamentID string) ([]Participant, error)
	AddParticipant(ctx context.Context, p *Participant) error
	UpdateParticipant(ctx context.Context, p *Participant) error

	// LockMatch loads a match and holds it until the transaction ends
	LockMatch(ctx context.Context, matchID string) (*Match, error)
	GetMatch(ctx context.Context, matchID string) (*Match, error)
	// ListMatches returns matches of a tournament; round 0 selects every round
	ListMatches(ctx context.Context, tournamentID string, round int) ([]Match, error)
	CreateMatches(ctx context.Context, matches []Match) error
	UpdateMatch(ctx context.Context, m *Match) error

	GetPlayer(ctx context.Context, playerID string) (*Player, error)
	GetPlayers(ctx context.Context, playerIDs []string) (map[string]*Player, error)
	// LockPlayers loads players and holds them until the transaction ends
	LockPlayers(ctx context.Context, playerIDs []string) (map[string]*Player, error)
	CreatePlayer(ctx context.Context, p *Player) error
	UpdatePlayers(ctx context.Context, players ...*Player) error
	ListPlayers(ctx context.Context) ([]Player, error)
}

// NotificationStore persists player inbox entries
type NotificationStore interface {
	CreateNotifications(ctx context.Context, notifications []Notification) error
	ListNotifications(ctx context.Context, playerID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
}
