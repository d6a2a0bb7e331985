package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chess-tournaments/internal/domain"
)

func TestKeys(t *testing.T) {
	if got := ratingsKey(domain.TimeControlBlitz); got != "ratings:blitz" {
		t.Errorf("ratingsKey = %q", got)
	}
	if got := playerInfoKey("p1"); got != "player:p1:info" {
		t.Errorf("playerInfoKey = %q", got)
	}
}

func TestToEntry(t *testing.T) {
	got := toEntry(redis.Z{Score: 1834, Member: "p7"})
	if got.PlayerID != "p7" || got.Rating != 1834 {
		t.Errorf("toEntry = %+v", got)
	}
}

func TestExclusiveMin(t *testing.T) {
	tests := map[float64]string{
		1500:   "(1500",
		1834.5: "(1834.5",
		0:      "(0",
	}
	for score, want := range tests {
		if got := exclusiveMin(score); got != want {
			t.Errorf("exclusiveMin(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestRateKeyWindows(t *testing.T) {
	window := time.Minute
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := rateKey("results:10.0.0.1", window, start)
	b := rateKey("results:10.0.0.1", window, start.Add(59*time.Second))
	c := rateKey("results:10.0.0.1", window, start.Add(61*time.Second))
	if a != b {
		t.Errorf("same window gave %q and %q", a, b)
	}
	if a == c {
		t.Errorf("next window reused key %q", a)
	}
}
