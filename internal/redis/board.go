package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
)

// RatingBoard keeps one sorted set of ratings per time control
type RatingBoard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRatingBoard connects to Redis
func NewRatingBoard(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*RatingBoard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RatingBoard{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *RatingBoard) Close() error {
	return b.client.Close()
}

// Client returns the underlying Redis client
func (b *RatingBoard) Client() *redis.Client {
	return b.client
}

// Ping checks the Redis connection
func (b *RatingBoard) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// ratingsKey returns the sorted set holding one time control's ratings
func ratingsKey(tc domain.TimeControl) string {
	return fmt.Sprintf("ratings:%s", tc)
}

func playerInfoKey(playerID string) string {
	return fmt.Sprintf("player:%s:info", playerID)
}

// SetRating stores a player's rating for a time control
func (b *RatingBoard) SetRating(ctx context.Context, tc domain.TimeControl, playerID string, rating int) error {
	err := b.client.ZAdd(ctx, ratingsKey(tc), redis.Z{
		Score:  float64(rating),
		Member: playerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting rating: %w", err)
	}
	return nil
}

// Top returns the highest rated players for a time control; tied ratings share a rank
func (b *RatingBoard) Top(ctx context.Context, tc domain.TimeControl, limit int) ([]domain.RatingEntry, error) {
	key := ratingsKey(tc)
	results, err := b.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top ratings: %w", err)
	}
	if len(results) == 0 {
		return []domain.RatingEntry{}, nil
	}

	// members tied with the first entry may sit ahead of it in the set
	above, err := b.countAbove(ctx, key, results[0].Score)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RatingEntry, len(results))
	for i, result := range results {
		entries[i] = toEntry(result)
	}
	domain.RankEntries(entries, above)
	b.attachUsernames(ctx, entries)
	return entries, nil
}

// PlayerRank returns a player's rank and rating for a time control
func (b *RatingBoard) PlayerRank(ctx context.Context, tc domain.TimeControl, playerID string) (*domain.RatingEntry, error) {
	key := ratingsKey(tc)

	score, err := b.client.ZScore(ctx, key, playerID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player rating: %w", err)
	}
	above, err := b.countAbove(ctx, key, score)
	if err != nil {
		return nil, err
	}

	entries := []domain.RatingEntry{toEntry(redis.Z{Score: score, Member: playerID})}
	domain.RankEntries(entries, above)
	b.attachUsernames(ctx, entries)
	return &entries[0], nil
}

// countAbove counts members scored strictly higher than score
func (b *RatingBoard) countAbove(ctx context.Context, key string, score float64) (int64, error) {
	n, err := b.client.ZCount(ctx, key, exclusiveMin(score), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting higher ratings: %w", err)
	}
	return n, nil
}

// exclusiveMin formats score as an exclusive ZCOUNT lower bound
func exclusiveMin(score float64) string {
	return "(" + strconv.FormatFloat(score, 'f', -1, 64)
}

func toEntry(z redis.Z) domain.RatingEntry {
	member, _ := z.Member.(string)
	return domain.RatingEntry{
		PlayerID: member,
		Rating:   int64(z.Score),
	}
}

// attachUsernames fills usernames from the player info cache; misses are left blank
func (b *RatingBoard) attachUsernames(ctx context.Context, entries []domain.RatingEntry) {
	if len(entries) == 0 {
		return
	}
	pipe := b.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.HGet(ctx, playerInfoKey(e.PlayerID), "username")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		b.logger.Warn("failed to load usernames", "error", err)
		return
	}
	for i, cmd := range cmds {
		if name, err := cmd.Result(); err == nil {
			entries[i].Username = name
		}
	}
}

// SetPlayerInfo caches player information
func (b *RatingBoard) SetPlayerInfo(ctx context.Context, info domain.PlayerInfo) error {
	err := b.client.HSet(ctx, playerInfoKey(info.ID), "username", info.Username).Err()
	if err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// GetPlayerInfo retrieves cached player information
func (b *RatingBoard) GetPlayerInfo(ctx context.Context, playerID string) (*domain.PlayerInfo, error) {
	result, err := b.client.HGetAll(ctx, playerInfoKey(playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting player info: %w", err)
	}
	if len(result) == 0 {
		return nil, domain.ErrPlayerNotFound
	}
	return &domain.PlayerInfo{
		ID:       playerID,
		Username: result["username"],
	}, nil
}

// Rebuild replaces every rating set with the given players using pipelining
func (b *RatingBoard) Rebuild(ctx context.Context, players []domain.Player) error {
	pipe := b.client.Pipeline()
	for _, tc := range domain.AllTimeControls {
		pipe.Del(ctx, ratingsKey(tc))
	}
	for i := range players {
		p := &players[i]
		for _, tc := range domain.AllTimeControls {
			pipe.ZAdd(ctx, ratingsKey(tc), redis.Z{
				Score:  float64(p.Rating(tc)),
				Member: p.ID,
			})
		}
		pipe.HSet(ctx, playerInfoKey(p.ID), "username", p.Username)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding rating sets: %w", err)
	}
	return nil
}

// Count returns the number of rated players for a time control
func (b *RatingBoard) Count(ctx context.Context, tc domain.TimeControl) (int64, error) {
	count, err := b.client.ZCard(ctx, ratingsKey(tc)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// Name implements events.Sink
func (b *RatingBoard) Name() string {
	return "redis-ratings"
}

// Handle implements events.Sink: rating updates are mirrored into the sorted sets
func (b *RatingBoard) Handle(ctx context.Context, event domain.Event) error {
	update, ok := event.Data.(domain.RatingsUpdated)
	if event.Type != domain.EventRatingsUpdated || !ok {
		return nil
	}

	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, ratingsKey(update.TimeControl), redis.Z{Score: float64(update.NewRating), Member: update.PlayerID})
	pipe.ZAdd(ctx, ratingsKey(domain.TimeControlGeneral), redis.Z{Score: float64(update.General), Member: update.PlayerID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirroring rating of %s: %w", update.PlayerID, err)
	}
	return nil
}
