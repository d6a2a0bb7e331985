package domain

import (
	"fmt"
	"slices"
	"time"
)

// Format is the competition structure of a tournament
type Format string

const (
	FormatElimination Format = "elimination"
	FormatRoundRobin  Format = "round_robin"
	FormatSwiss       Format = "swiss"
)

// ParseFormat converts a string into a Format
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatElimination, FormatRoundRobin, FormatSwiss:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// TournamentStatus is the lifecycle state of a tournament
type TournamentStatus string

const (
	StatusUpcoming   TournamentStatus = "upcoming"
	StatusInProgress TournamentStatus = "in_progress"
	StatusCompleted  TournamentStatus = "completed"
	StatusCancelled  TournamentStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PairingSystem selects how first-round opponents are chosen
type PairingSystem string

const (
	PairingRandom PairingSystem = "random"
	PairingRating PairingSystem = "rating"
	PairingSwiss  PairingSystem = "swiss"
	PairingManual PairingSystem = "manual"
)

// ParsePairingSystem converts a string into a PairingSystem; unknown values fall back to random
func ParsePairingSystem(s string) PairingSystem {
	switch p := PairingSystem(s); p {
	case PairingRandom, PairingRating, PairingSwiss, PairingManual:
		return p
	}
	return PairingRandom
}

// Tournament represents a tournament and its progression state
type Tournament struct {
	ID                  string           `json:"id"`
	Code                string           `json:"code"`
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	CreatedBy           string           `json:"created_by"`
	Format              Format           `json:"format"`
	Status              TournamentStatus `json:"status"`
	CurrentRound        int              `json:"current_round"`
	MaxParticipants     int              `json:"max_participants"`
	CurrentParticipants int              `json:"current_participants"`
	PairingSystem       PairingSystem    `json:"pairing_system"`
	TimeControl         TimeControl      `json:"time_control"`
	TimeControlMinutes  int              `json:"time_control_minutes"`
	IncrementSeconds    int              `json:"increment_seconds"`
	MaxRounds           int              `json:"max_rounds,omitempty"`
	AllowByes           bool             `json:"allow_byes"`
	StartedAt           *time.Time       `json:"started_at,omitempty"`
	EndedAt             *time.Time       `json:"ended_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsFull reports whether the participant limit has been reached
func (t *Tournament) IsFull() bool {
	return t.CurrentParticipants >= t.MaxParticipants
}

// Participant links a player to a tournament
type Participant struct {
	TournamentID string    `json:"tournament_id"`
	PlayerID     string    `json:"player_id"`
	Seed         int       `json:"seed"`
	IsEliminated bool      `json:"is_eliminated"`
	Placement    int       `json:"placement,omitempty"`
	ByeRounds    []int     `json:"bye_rounds,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
}

// HadBye reports whether the participant was awarded a bye in the given round
func (p *Participant) HadBye(round int) bool {
	return slices.Contains(p.ByeRounds, round)
}

// CreateTournamentRequest represents a request to create a new tournament
type CreateTournamentRequest struct {
	Name               string `json:"name" validate:"required,min=3,max=100"`
	Description        string `json:"description,omitempty" validate:"max=2000"`
	CreatedBy          string `json:"created_by" validate:"required"`
	Format             string `json:"format" validate:"required,oneof=elimination round_robin swiss"`
	PairingSystem      string `json:"pairing_system,omitempty" validate:"omitempty,oneof=random rating swiss manual"`
	MaxParticipants    int    `json:"max_participants,omitempty" validate:"omitempty,min=2,max=1024"`
	TimeControlMinutes int    `json:"time_control_minutes,omitempty" validate:"omitempty,min=1,max=20160"`
	IncrementSeconds   int    `json:"increment_seconds,omitempty" validate:"omitempty,min=0,max=180"`
	TimeControl        string `json:"time_control,omitempty" validate:"omitempty,oneof=bullet blitz rapid daily"`
	MaxRounds          int    `json:"max_rounds,omitempty" validate:"omitempty,min=1,max=64"`
	AllowByes          *bool  `json:"allow_byes,omitempty"`
	CreatorPlays       bool   `json:"creator_plays"`
}

// JoinTournamentRequest represents a request to join by code
type JoinTournamentRequest struct {
	Code     string `json:"code" validate:"required,len=6,numeric"`
	PlayerID string `json:"player_id" validate:"required"`
}

// Standing is one row of a tournament score table
type Standing struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Score    float64 `json:"score"`
	Wins     int     `json:"wins"`
	Draws    int     `json:"draws"`
	Losses   int     `json:"losses"`
	Byes     int     `json:"byes"`
}
