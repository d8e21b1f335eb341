package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Counter is the slice of the Redis client the limiter needs.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter is a fixed-window limiter shared by every replica.
type RedisLimiter struct {
	counter Counter
	maxReqs int
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedisLimiter allows maxRequests per window for each key.
func NewRedisLimiter(counter Counter, maxRequests int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		counter: counter,
		maxReqs: maxRequests,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow fails open when Redis is unreachable.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" || l.maxReqs <= 0 {
		return true
	}
	slot := l.now().UnixNano() / int64(l.window)
	redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(slot, 10)

	n, err := l.counter.IncrWindow(ctx, redisKey, l.window)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	return n <= int64(l.maxReqs)
}
