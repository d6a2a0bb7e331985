// Package rating implements the ELO update applied after every rated game.
package rating

import (
	"fmt"
	"math"
	"time"

	"github.com/chess-tournaments/internal/domain"
)

const (
	// MinRating is the floor no rating can drop below
	MinRating = 100

	// MasterRating is the threshold above which established players use the lowest K
	MasterRating = 2400

	kProvisional = 40
	kNewPlayer   = 32
	kMaster      = 16
	kStandard    = 24

	newPlayerMatches = 30
)

// ExpectedScore returns the expected score of a player rated ratingA against ratingB
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// KFactor returns the volatility coefficient for a player
func KFactor(matchesPlayed, rating int) int {
	switch {
	case matchesPlayed < domain.ProvisionalMatches:
		return kProvisional
	case matchesPlayed < newPlayerMatches:
		return kNewPlayer
	case rating >= MasterRating:
		return kMaster
	default:
		return kStandard
	}
}

// NewRating computes a player's rating after scoring actualScore against opponentRating
func NewRating(current, opponentRating int, actualScore float64, matchesPlayed int) int {
	expected := ExpectedScore(current, opponentRating)
	k := KFactor(matchesPlayed, current)
	next := int(math.Round(float64(current) + float64(k)*(actualScore-expected)))
	if next < MinRating {
		return MinRating
	}
	return next
}

// GeneralRating averages the game-class ratings that have moved off the default.
// A player who has only played blitz keeps a general rating equal to their blitz rating.
func GeneralRating(p *domain.Player) int {
	sum, n := 0, 0
	for _, tc := range domain.GameTimeControls {
		r, ok := p.Ratings[tc]
		if !ok || r == domain.DefaultRating {
			continue
		}
		sum += r
		n++
	}
	if n == 0 {
		return domain.DefaultRating
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// Update applies a game result to both players in place and returns the change.
// For a draw the winner/loser roles only fix the order of the returned changes.
// Callers persist both players in one transaction and must invoke Update exactly
// once per concluded game: every call increments matches played.
func Update(winner, loser *domain.Player, isDraw bool, tc domain.TimeControl) (*domain.RatingDelta, error) {
	if winner == nil || loser == nil {
		return nil, fmt.Errorf("%w: both players are required", domain.ErrPlayerNotFound)
	}
	if winner.ID == loser.ID {
		return nil, fmt.Errorf("%w: player cannot play themselves", domain.ErrInvalidRequest)
	}
	if !tc.IsGameClass() {
		return nil, fmt.Errorf("%w: %q is not a rated game class", domain.ErrInvalidTimeControl, tc)
	}

	winnerOld := winner.Rating(tc)
	loserOld := loser.Rating(tc)
	if winnerOld < 0 || loserOld < 0 {
		return nil, fmt.Errorf("%w: ratings must be non-negative", domain.ErrInvalidRating)
	}
	if winner.MatchesPlayed < 0 || loser.MatchesPlayed < 0 {
		return nil, fmt.Errorf("%w: matches played must be non-negative", domain.ErrInvalidRating)
	}

	winnerScore, loserScore := 1.0, 0.0
	if isDraw {
		winnerScore, loserScore = 0.5, 0.5
	}

	winnerNew := NewRating(winnerOld, loserOld, winnerScore, winner.MatchesPlayed)
	loserNew := NewRating(loserOld, winnerOld, loserScore, loser.MatchesPlayed)

	delta := &domain.RatingDelta{
		TimeControl: tc,
		IsDraw:      isDraw,
		Winner: domain.RatingChange{
			PlayerID:   winner.ID,
			OldRating:  winnerOld,
			NewRating:  winnerNew,
			Delta:      winnerNew - winnerOld,
			KFactor:    KFactor(winner.MatchesPlayed, winnerOld),
			OldGeneral: winner.Rating(domain.TimeControlGeneral),
		},
		Loser: domain.RatingChange{
			PlayerID:   loser.ID,
			OldRating:  loserOld,
			NewRating:  loserNew,
			Delta:      loserNew - loserOld,
			KFactor:    KFactor(loser.MatchesPlayed, loserOld),
			OldGeneral: loser.Rating(domain.TimeControlGeneral),
		},
	}

	winner.SetRating(tc, winnerNew)
	loser.SetRating(tc, loserNew)

	if isDraw {
		winner.Draws++
		loser.Draws++
	} else {
		winner.Wins++
		loser.Losses++
	}

	now := time.Now()
	for _, p := range []*domain.Player{winner, loser} {
		p.SetRating(domain.TimeControlGeneral, GeneralRating(p))
		p.MatchesPlayed++
		if p.MatchesPlayed >= domain.ProvisionalMatches {
			p.IsProvisional = false
		}
		p.UpdatedAt = now
	}

	delta.Winner.NewGeneral = winner.Rating(domain.TimeControlGeneral)
	delta.Loser.NewGeneral = loser.Rating(domain.TimeControlGeneral)

	return delta, nil
}
