package domain

import (
	"fmt"
	"time"
)

// TimeControl identifies the clock class a rating belongs to
type TimeControl string

const (
	TimeControlBullet  TimeControl = "bullet"
	TimeControlBlitz   TimeControl = "blitz"
	TimeControlRapid   TimeControl = "rapid"
	TimeControlDaily   TimeControl = "daily"
	TimeControlPuzzle  TimeControl = "puzzle"
	TimeControlGeneral TimeControl = "general"
)

const (
	// DefaultRating is the rating every class starts at
	DefaultRating = 1200

	// ProvisionalMatches is the number of rated matches after which a player stops being provisional
	ProvisionalMatches = 5
)

// GameTimeControls are the classes that rated games are played under
var GameTimeControls = []TimeControl{
	TimeControlBullet,
	TimeControlBlitz,
	TimeControlRapid,
	TimeControlDaily,
}

// AllTimeControls lists every rating class a player carries
var AllTimeControls = []TimeControl{
	TimeControlBullet,
	TimeControlBlitz,
	TimeControlRapid,
	TimeControlDaily,
	TimeControlPuzzle,
	TimeControlGeneral,
}

// IsGameClass reports whether games can be rated under this class
func (tc TimeControl) IsGameClass() bool {
	switch tc {
	case TimeControlBullet, TimeControlBlitz, TimeControlRapid, TimeControlDaily:
		return true
	}
	return false
}

// Valid reports whether tc is a known rating class
func (tc TimeControl) Valid() bool {
	return tc.IsGameClass() || tc == TimeControlPuzzle || tc == TimeControlGeneral
}

// ParseTimeControl converts a string into a TimeControl
func ParseTimeControl(s string) (TimeControl, error) {
	tc := TimeControl(s)
	if !tc.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeControl, s)
	}
	return tc, nil
}

// clockLimits bounds the estimated game length, in minutes, of each timed class
var clockLimits = map[TimeControl]struct{ min, max float64 }{
	TimeControlBullet: {0, 3},
	TimeControlBlitz:  {3, 10},
	TimeControlRapid:  {10, 60},
}

// typicalMinutes is the base clock used when a class is chosen without one
var typicalMinutes = map[TimeControl]int{
	TimeControlBullet: 1,
	TimeControlBlitz:  5,
	TimeControlRapid:  15,
}

// EstimatedMinutes is the base clock plus the increment over 20 moves per side
func EstimatedMinutes(minutes, incrementSeconds int) float64 {
	return float64(minutes) + float64(incrementSeconds)*20/60
}

// CheckClock reports whether a clock belongs to the class. Daily accepts any clock.
func (tc TimeControl) CheckClock(minutes, incrementSeconds int) error {
	limits, ok := clockLimits[tc]
	if !ok {
		if tc == TimeControlDaily {
			return nil
		}
		return fmt.Errorf("%w: %s has no clock", ErrInvalidTimeControl, tc)
	}
	total := EstimatedMinutes(minutes, incrementSeconds)
	if total < limits.min || total > limits.max {
		return fmt.Errorf("%w: %d+%d is not %s (%.0f-%.0f minutes)",
			ErrInvalidTimeControl, minutes, incrementSeconds, tc, limits.min, limits.max)
	}
	return nil
}

// TypicalMinutes returns a base clock that fits the class, or 0 for daily
func (tc TimeControl) TypicalMinutes() int {
	return typicalMinutes[tc]
}

// TimeControlForMinutes classifies a base clock in minutes
func TimeControlForMinutes(minutes int) TimeControl {
	switch {
	case minutes <= 3:
		return TimeControlBullet
	case minutes <= 10:
		return TimeControlBlitz
	default:
		return TimeControlRapid
	}
}

// Player represents a player in the system
type Player struct {
	ID            string              `json:"id"`
	Username      string              `json:"username"`
	Ratings       map[TimeControl]int `json:"ratings"`
	Wins          int                 `json:"wins"`
	Losses        int                 `json:"losses"`
	Draws         int                 `json:"draws"`
	MatchesPlayed int                 `json:"matches_played"`
	IsProvisional bool                `json:"is_provisional"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewPlayer returns a player with every rating class at the default
func NewPlayer(id, username string) *Player {
	now := time.Now()
	ratings := make(map[TimeControl]int, len(AllTimeControls))
	for _, tc := range AllTimeControls {
		ratings[tc] = DefaultRating
	}
	return &Player{
		ID:            id,
		Username:      username,
		Ratings:       ratings,
		IsProvisional: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Rating returns the rating for a class, falling back to the general rating
func (p *Player) Rating(tc TimeControl) int {
	if r, ok := p.Ratings[tc]; ok {
		return r
	}
	if r, ok := p.Ratings[TimeControlGeneral]; ok {
		return r
	}
	return DefaultRating
}

// SetRating stores a rating for a class
func (p *Player) SetRating(tc TimeControl, rating int) {
	if p.Ratings == nil {
		p.Ratings = make(map[TimeControl]int, len(AllTimeControls))
	}
	p.Ratings[tc] = rating
}

// Clone returns a deep copy of the player
func (p *Player) Clone() *Player {
	c := *p
	c.Ratings = make(map[TimeControl]int, len(p.Ratings))
	for k, v := range p.Ratings {
		c.Ratings[k] = v
	}
	return &c
}

// PlayerInfo is a lightweight player information struct used for caching
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RatingEntry is one row of a time-control leaderboard
type RatingEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Rating   int64  `json:"rating"`
	Username string `json:"username,omitempty"`
}

// RankEntries numbers entries sorted by rating, highest first. Equal ratings share a rank,
// which is one more than the number of players rated strictly higher. above counts the
// players rated higher than entries[0] that are not in the slice.
func RankEntries(entries []RatingEntry, above int64) {
	for i := range entries {
		if i == 0 || entries[i].Rating != entries[i-1].Rating {
			entries[i].Rank = above + int64(i) + 1
			continue
		}
		entries[i].Rank = entries[i-1].Rank
	}
}

// RegisterPlayerRequest registers a player known to account management
type RegisterPlayerRequest struct {
	ID       string `json:"id,omitempty" validate:"omitempty,max=64"`
	Username string `json:"username" validate:"required,min=3,max=32"`
}
