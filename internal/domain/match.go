package domain

import (
	"fmt"
	"time"
)

// MatchStatus is the lifecycle state of a match
type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchForfeited  MatchStatus = "forfeited"
)

// Finished reports whether the match counts towards round completion
func (s MatchStatus) Finished() bool {
	return s == MatchCompleted || s == MatchForfeited
}

// MatchResult is the recorded outcome of a match
type MatchResult string

const (
	ResultWhiteWin MatchResult = "white_win"
	ResultBlackWin MatchResult = "black_win"
	ResultDraw     MatchResult = "draw"
	ResultForfeit  MatchResult = "forfeit"
)

// Match represents a single game between two players
type Match struct {
	ID             string      `json:"id"`
	TournamentID   string      `json:"tournament_id,omitempty"`
	WhitePlayerID  string      `json:"white_player_id"`
	BlackPlayerID  string      `json:"black_player_id"`
	RoundNumber    int         `json:"round_number"`
	Status         MatchStatus `json:"status"`
	Result         MatchResult `json:"result,omitempty"`
	WinnerID       string      `json:"winner_id,omitempty"`
	WhiteEloBefore int         `json:"white_elo_before,omitempty"`
	BlackEloBefore int         `json:"black_elo_before,omitempty"`
	WhiteEloAfter  int         `json:"white_elo_after,omitempty"`
	BlackEloAfter  int         `json:"black_elo_after,omitempty"`
	TimeControl    TimeControl `json:"time_control,omitempty"`
	PGN            string      `json:"pgn,omitempty"`
	MoveCount      int         `json:"move_count,omitempty"`
	ReplayCount    int         `json:"replay_count,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Involves reports whether the player sits at the board
func (m *Match) Involves(playerID string) bool {
	return m.WhitePlayerID == playerID || m.BlackPlayerID == playerID
}

// Opponent returns the other player of the match
func (m *Match) Opponent(playerID string) string {
	if m.WhitePlayerID == playerID {
		return m.BlackPlayerID
	}
	return m.WhitePlayerID
}

// LoserID returns the losing player, or "" for a draw or unfinished match
func (m *Match) LoserID() string {
	if m.WinnerID == "" {
		return ""
	}
	return m.Opponent(m.WinnerID)
}

// Points returns the tournament score earned by a player in this match
func (m *Match) Points(playerID string) float64 {
	if !m.Status.Finished() || !m.Involves(playerID) {
		return 0
	}
	switch {
	case m.Result == ResultDraw:
		return 0.5
	case m.WinnerID == playerID:
		return 1
	}
	return 0
}

// GameEnding describes how a live game concluded
type GameEnding string

const (
	EndingCheckmate   GameEnding = "checkmate"
	EndingResignation GameEnding = "resignation"
	EndingTimeout     GameEnding = "timeout"
	EndingAgreement   GameEnding = "agreement"
	EndingStalemate   GameEnding = "stalemate"
	EndingRepetition  GameEnding = "repetition"
	EndingForfeit     GameEnding = "forfeit"
)

// GameOutcome is the report a game layer sends when a game ends
type GameOutcome struct {
	MatchID   string      `json:"match_id" validate:"required"`
	Result    MatchResult `json:"result" validate:"required,oneof=white_win black_win draw forfeit"`
	Ending    GameEnding  `json:"ending,omitempty" validate:"omitempty,oneof=checkmate resignation timeout agreement stalemate repetition forfeit"`
	WinnerID  string      `json:"winner_id,omitempty"`
	PGN       string      `json:"pgn,omitempty"`
	MoveCount int         `json:"move_count,omitempty" validate:"min=0"`
}

// IsDraw reports whether the outcome carries no winner
func (o GameOutcome) IsDraw() bool {
	return o.Result == ResultDraw
}

// Resolve returns the winner of the outcome for the given match
func (o GameOutcome) Resolve(m *Match) (string, error) {
	switch o.Result {
	case ResultWhiteWin:
		return m.WhitePlayerID, nil
	case ResultBlackWin:
		return m.BlackPlayerID, nil
	case ResultDraw:
		return "", nil
	case ResultForfeit:
		if o.WinnerID == "" || !m.Involves(o.WinnerID) {
			return "", fmt.Errorf("%w: forfeit requires a winner seated in the match", ErrInvalidResult)
		}
		return o.WinnerID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResult, o.Result)
}

// ReportOutcome is returned by the result funnel
type ReportOutcome struct {
	MatchID        string             `json:"match_id"`
	ReplayRequired bool               `json:"replay_required"`
	AlreadyFinal   bool               `json:"already_final,omitempty"`
	Ratings        *RatingDelta       `json:"ratings,omitempty"`
	Progression    *ProgressionResult `json:"progression,omitempty"`
}
