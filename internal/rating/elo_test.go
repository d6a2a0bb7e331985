package rating

import (
	"errors"
	"math"
	"testing"

	"github.com/chess-tournaments/internal/domain"
)

func TestExpectedScore(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want float64
	}{
		{"equal ratings", 1500, 1500, 0.5},
		{"equal low ratings", 100, 100, 0.5},
		{"200 point favourite", 1600, 1400, 0.7597},
		{"200 point underdog", 1400, 1600, 0.2403},
		{"400 point favourite", 1800, 1400, 0.9091},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedScore(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("ExpectedScore(%d, %d) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestExpectedScoresSumToOne(t *testing.T) {
	for _, pair := range [][2]int{{1200, 1200}, {900, 2100}, {2450, 2399}} {
		sum := ExpectedScore(pair[0], pair[1]) + ExpectedScore(pair[1], pair[0])
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("expected scores for %v sum to %f", pair, sum)
		}
	}
}

func TestKFactor(t *testing.T) {
	tests := []struct {
		matches, rating, want int
	}{
		{0, 1200, 40},
		{4, 2600, 40},
		{5, 1200, 32},
		{29, 2500, 32},
		{30, 2400, 16},
		{30, 2399, 24},
		{120, 1500, 24},
	}
	for _, tt := range tests {
		if got := KFactor(tt.matches, tt.rating); got != tt.want {
			t.Errorf("KFactor(%d, %d) = %d, want %d", tt.matches, tt.rating, got, tt.want)
		}
	}
}

func TestNewRating(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		opponent int
		score    float64
		matches  int
		want     int
	}{
		{"provisional win", 1200, 1200, 1, 0, 1220},
		{"provisional loss", 1200, 1200, 0, 0, 1180},
		{"equal draw unchanged", 1500, 1500, 0.5, 50, 1500},
		{"expected win", 1600, 1400, 1, 40, 1606},
		{"upset win", 1400, 1600, 1, 40, 1418},
		{"floored at minimum", 110, 110, 0, 0, MinRating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRating(tt.current, tt.opponent, tt.score, tt.matches); got != tt.want {
				t.Errorf("NewRating() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUpsetGainsMoreThanExpectedWin(t *testing.T) {
	upset := NewRating(1400, 1600, 1, 40) - 1400
	expected := NewRating(1600, 1400, 1, 40) - 1600
	if upset <= expected {
		t.Errorf("upset gain %d should exceed expected gain %d", upset, expected)
	}
}

func TestUpdateDecisive(t *testing.T) {
	winner := domain.NewPlayer("w", "white")
	loser := domain.NewPlayer("l", "black")

	delta, err := Update(winner, loser, false, domain.TimeControlBlitz)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if winner.Rating(domain.TimeControlBlitz) <= loser.Rating(domain.TimeControlBlitz) {
		t.Errorf("winner blitz %d should exceed loser blitz %d",
			winner.Rating(domain.TimeControlBlitz), loser.Rating(domain.TimeControlBlitz))
	}
	if delta.Winner.NewRating != 1220 || delta.Loser.NewRating != 1180 {
		t.Errorf("delta = %+v / %+v, want 1220 / 1180", delta.Winner, delta.Loser)
	}
	if delta.Winner.Delta != 20 || delta.Loser.Delta != -20 {
		t.Errorf("deltas = %d / %d, want 20 / -20", delta.Winner.Delta, delta.Loser.Delta)
	}
	if winner.Rating(domain.TimeControlGeneral) != 1220 {
		t.Errorf("winner general = %d, want 1220", winner.Rating(domain.TimeControlGeneral))
	}
	if loser.Rating(domain.TimeControlGeneral) != 1180 {
		t.Errorf("loser general = %d, want 1180", loser.Rating(domain.TimeControlGeneral))
	}
	if winner.Rating(domain.TimeControlRapid) != domain.DefaultRating {
		t.Errorf("rapid rating should be untouched")
	}
	if winner.Wins != 1 || winner.Losses != 0 || loser.Losses != 1 || loser.Wins != 0 {
		t.Errorf("counters wrong: winner %d/%d loser %d/%d", winner.Wins, winner.Losses, loser.Wins, loser.Losses)
	}
	if winner.MatchesPlayed != 1 || loser.MatchesPlayed != 1 {
		t.Errorf("matches played = %d / %d, want 1 / 1", winner.MatchesPlayed, loser.MatchesPlayed)
	}
	if !winner.IsProvisional {
		t.Errorf("player with one match should stay provisional")
	}
}

func TestUpdateDrawEqualRatings(t *testing.T) {
	a := domain.NewPlayer("a", "a")
	b := domain.NewPlayer("b", "b")

	delta, err := Update(a, b, true, domain.TimeControlRapid)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if delta.Winner.Delta != 0 || delta.Loser.Delta != 0 {
		t.Errorf("draw between equals changed ratings: %+v", delta)
	}
	if a.Draws != 1 || b.Draws != 1 || a.Wins != 0 || b.Losses != 0 {
		t.Errorf("draw counters wrong: a=%+v b=%+v", a, b)
	}
}

func TestUpdateClearsProvisional(t *testing.T) {
	a := domain.NewPlayer("a", "a")
	a.MatchesPlayed = 4
	b := domain.NewPlayer("b", "b")

	if _, err := Update(a, b, false, domain.TimeControlBullet); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if a.IsProvisional {
		t.Errorf("player reaching %d matches should not be provisional", domain.ProvisionalMatches)
	}
	if !b.IsProvisional {
		t.Errorf("player with one match should stay provisional")
	}
}

func TestGeneralRatingIgnoresUntouchedClasses(t *testing.T) {
	p := domain.NewPlayer("p", "p")
	p.MatchesPlayed = 40
	p.SetRating(domain.TimeControlRapid, 1500)
	opp := domain.NewPlayer("o", "o")
	opp.MatchesPlayed = 40

	if _, err := Update(p, opp, false, domain.TimeControlBlitz); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// blitz 1212, rapid 1500, bullet and daily still at default
	if got := p.Rating(domain.TimeControlGeneral); got != 1356 {
		t.Errorf("general rating = %d, want 1356", got)
	}
}

func TestGeneralRatingDefaultsWhenUnplayed(t *testing.T) {
	p := domain.NewPlayer("p", "p")
	if got := GeneralRating(p); got != domain.DefaultRating {
		t.Errorf("GeneralRating() = %d, want %d", got, domain.DefaultRating)
	}
}

func TestUpdateRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(w, l *domain.Player)
		tc      domain.TimeControl
		wantErr error
	}{
		{"puzzle class", func(w, l *domain.Player) {}, domain.TimeControlPuzzle, domain.ErrInvalidTimeControl},
		{"general class", func(w, l *domain.Player) {}, domain.TimeControlGeneral, domain.ErrInvalidTimeControl},
		{"negative rating", func(w, l *domain.Player) { w.SetRating(domain.TimeControlBlitz, -5) }, domain.TimeControlBlitz, domain.ErrInvalidRating},
		{"same player", func(w, l *domain.Player) { l.ID = w.ID }, domain.TimeControlBlitz, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := domain.NewPlayer("w", "w")
			l := domain.NewPlayer("l", "l")
			tt.mutate(w, l)
			before := w.Clone()

			_, err := Update(w, l, false, tt.tc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
			}
			if w.MatchesPlayed != before.MatchesPlayed || w.Wins != before.Wins {
				t.Errorf("rejected update mutated the player")
			}
		})
	}
}
