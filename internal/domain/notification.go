package domain

import "time"

// NotificationType categorises inbox entries
type NotificationType string

const (
	NotificationTournamentStart NotificationType = "tournament_start"
	NotificationNewRound        NotificationType = "new_round"
	NotificationTournamentEnd   NotificationType = "tournament_end"
	NotificationMatchReplay     NotificationType = "match_replay"
)

// Notification is a persisted inbox entry for a player
type Notification struct {
	ID           string           `json:"id"`
	PlayerID     string           `json:"player_id"`
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	TournamentID string           `json:"tournament_id,omitempty"`
	MatchID      string           `json:"match_id,omitempty"`
	IsRead       bool             `json:"is_read"`
	CreatedAt    time.Time        `json:"created_at"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
}
