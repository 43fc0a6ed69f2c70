package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is the durable counterpart to Limiter, storing each
// window's events in a sorted set keyed "ratelimit:<chain_id>:<agent_id>"
// with a 1h TTL, per spec.md §6's persisted record layout.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter wraps an existing Redis client.
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	if cfg.MaxEvents <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{client: client, cfg: cfg}
}

func ratelimitKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("ratelimit:%d:%s", chainID, agentID)
}

// Allow mirrors Limiter.Allow but persists state in Redis so the limit
// survives process restarts and is shared across instances.
func (l *RedisLimiter) Allow(ctx context.Context, chainID uint64, agentID string) (allowed bool, retryAfter time.Duration, err error) {
	key := ratelimitKey(chainID, agentID)
	now := time.Now()
	windowStart := now.Add(-l.cfg.Window)

	if err := l.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano())).Err(); err != nil {
		return false, 0, fmt.Errorf("ratelimit: trim window: %w", err)
	}

	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: count: %w", err)
	}

	if count >= int64(l.cfg.MaxEvents) {
		oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil || len(oldest) == 0 {
			return false, l.cfg.Window, nil
		}
		oldestTime := time.Unix(0, int64(oldest[0].Score))
		return false, oldestTime.Add(l.cfg.Window).Sub(now), nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())
	if err := l.client.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, 0, fmt.Errorf("ratelimit: record: %w", err)
	}
	l.client.Expire(ctx, key, l.cfg.Window)
	return true, 0, nil
}
