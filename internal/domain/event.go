package domain

import "time"

// EventType names a progression or rating event
type EventType string

const (
	EventTournamentStarted   EventType = "tournament_started"
	EventRoundAdvanced       EventType = "round_advanced"
	EventTournamentCompleted EventType = "tournament_completed"
	EventRatingsUpdated      EventType = "ratings_updated"
	EventMatchReplay         EventType = "match_replay"
)

// Event is emitted by the core after its state change has committed
type Event struct {
	Type         EventType   `json:"type"`
	TournamentID string      `json:"tournament_id,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Data         interface{} `json:"data"`
}

// PairingView is a pairing as seen by subscribers
type PairingView struct {
	MatchID       string `json:"match_id,omitempty"`
	WhitePlayerID string `json:"white_player_id"`
	BlackPlayerID string `json:"black_player_id,omitempty"`
	Bye           bool   `json:"bye,omitempty"`
}

// RoundAdvanced is the payload of EventRoundAdvanced and EventTournamentStarted
type RoundAdvanced struct {
	TournamentID   string        `json:"tournament_id"`
	TournamentName string        `json:"tournament_name"`
	RoundNumber    int           `json:"round_number"`
	Pairings       []PairingView `json:"pairings"`
	Participants   []string      `json:"participants"`
}

// TournamentCompleted is the payload of EventTournamentCompleted
type TournamentCompleted struct {
	TournamentID   string   `json:"tournament_id"`
	TournamentName string   `json:"tournament_name"`
	WinnerID       string   `json:"winner_id,omitempty"`
	Participants   []string `json:"participants"`
}

// RatingsUpdated is the payload of EventRatingsUpdated, one per player
type RatingsUpdated struct {
	PlayerID    string      `json:"player_id"`
	TimeControl TimeControl `json:"time_control"`
	OldRating   int         `json:"old_rating"`
	NewRating   int         `json:"new_rating"`
	General     int         `json:"general_rating"`
	MatchID     string      `json:"match_id,omitempty"`
}

// MatchReplay is the payload of EventMatchReplay
type MatchReplay struct {
	MatchID       string `json:"match_id"`
	WhitePlayerID string `json:"white_player_id"`
	BlackPlayerID string `json:"black_player_id"`
	RoundNumber   int    `json:"round_number"`
}

// NewEvent stamps an event with the current time
func NewEvent(t EventType, tournamentID string, data interface{}) Event {
	return Event{
		Type:         t,
		TournamentID: tournamentID,
		Timestamp:    time.Now(),
		Data:         data,
	}
}

// RatingChange is one side of a rating update
type RatingChange struct {
	PlayerID   string `json:"player_id"`
	OldRating  int    `json:"old_rating"`
	NewRating  int    `json:"new_rating"`
	Delta      int    `json:"delta"`
	KFactor    int    `json:"k_factor"`
	OldGeneral int    `json:"old_general"`
	NewGeneral int    `json:"new_general"`
}

// RatingDelta is the result of updating both players after a game
type RatingDelta struct {
	TimeControl TimeControl  `json:"time_control"`
	IsDraw      bool         `json:"is_draw"`
	Winner      RatingChange `json:"winner"`
	Loser       RatingChange `json:"loser"`
}

// Events converts the delta into one ratings_updated event per player
func (d *RatingDelta) Events(matchID string) []Event {
	out := make([]Event, 0, 2)
	for _, c := range []RatingChange{d.Winner, d.Loser} {
		out = append(out, NewEvent(EventRatingsUpdated, "", RatingsUpdated{
			PlayerID:    c.PlayerID,
			TimeControl: d.TimeControl,
			OldRating:   c.OldRating,
			NewRating:   c.NewRating,
			General:     c.NewGeneral,
			MatchID:     matchID,
		}))
	}
	return out
}

// ProgressionResult reports what a round check did
type ProgressionResult struct {
	RoundComplete      bool   `json:"round_complete"`
	TournamentComplete bool   `json:"tournament_complete"`
	CurrentRound       int    `json:"current_round"`
	NextRound          int    `json:"next_round,omitempty"`
	MatchesCreated     int    `json:"matches_created"`
	Completed          int    `json:"completed"`
	Total              int    `json:"total"`
	WinnerID           string `json:"winner_id,omitempty"`
	Message            string `json:"message"`
}
