package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/ticket-storefront/internal/adapters/redis"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

// RateLimiter is a fixed-window counter per key kept in redis.
type RateLimiter struct {
	redis  *redisadapter.Cache
	rate   int
	period time.Duration
	logger observability.Logger
}

func NewRateLimiter(redis *redisadapter.Cache, rate int, period time.Duration, logger observability.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, rate: rate, period: period, logger: logger}
}

// Allow counts one hit for key. Redis failures let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rl.period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		rl.logger.WithField("key", key).Warn("rate limiter unavailable", err)
		return true
	}

	if incr.Val() > int64(rl.rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
