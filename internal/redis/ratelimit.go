package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chess-tournaments/internal/domain"
)

// RateLimiter is a fixed-window counter shared by every server instance
type RateLimiter struct {
	client   *redis.Client
	requests int64
	window   time.Duration
}

// NewRateLimiter allows requests calls per window for each key
func NewRateLimiter(client *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: int64(requests),
		window:   window,
	}
}

func rateKey(key string, window time.Duration, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UnixNano()/int64(window))
}

// Allow counts one call for key and returns ErrRateLimited once the window is spent
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	k := rateKey(key, l.window, time.Now())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("counting request: %w", err)
	}
	if incr.Val() > l.requests {
		return domain.ErrRateLimited
	}
	return nil
}
