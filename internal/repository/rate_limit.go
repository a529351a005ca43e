package repository

import (
	"context"
	"time"

	"course_messaging/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "messaging:ratelimit:"

type RateLimitRepository interface {
	// Hit counts one request against key in a fixed window and returns the count so far.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		// NX keeps the window anchored at the first hit.
		pipe.ExpireNX(ctx, fullKey, window)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to record rate limit hit", "error", err, "key", key)
		return 0, err
	}

	return incr.Val(), nil
}
