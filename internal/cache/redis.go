package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/gmfm-scoring/internal/scoring"
)

const keyPrefix = "gmfm:score:"

// RedisCache stores results as JSON under gmfm:score:<sessionID>
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (*scoring.ScoreResult, bool) {
	data, err := c.client.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("score cache read failed", "session_id", sessionID, "error", err)
		}
		return nil, false
	}

	var result scoring.ScoreResult
	if err := json.Unmarshal(data, &result); err != nil {
		slog.Warn("score cache entry corrupt", "session_id", sessionID, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, result *scoring.ScoreResult) {
	data, err := json.Marshal(result)
	if err != nil {
		slog.Warn("failed to encode score for cache", "session_id", sessionID, "error", err)
		return
	}
	if err := c.client.Set(ctx, key(sessionID), data, c.ttl).Err(); err != nil {
		slog.Warn("score cache write failed", "session_id", sessionID, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, sessionID string) {
	if err := c.client.Del(ctx, key(sessionID)).Err(); err != nil {
		slog.Warn("score cache invalidation failed", "session_id", sessionID, "error", err)
	}
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
