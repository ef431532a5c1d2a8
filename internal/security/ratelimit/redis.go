package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Knifucrab/mauro-zen-notes/internal/reliability/circuitbreaker"
)

// Counter increments a key that expires after ttl and returns the new value
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisLimiter is a fixed window limiter shared across server instances.
// While redis is failing the circuit opens and requests are judged by the fallback limiter.
type RedisLimiter struct {
	counter  Counter
	prefix   string
	maxReqs  int
	window   time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	fallback Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a redis-backed limiter
func NewRedisLimiter(counter Counter, maxRequests int, window time.Duration, fallback Limiter, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.NewCircuitBreaker(3, 1, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("rate limiter circuit state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &RedisLimiter{
		counter:  counter,
		prefix:   "zennotes:ratelimit",
		maxReqs:  maxRequests,
		window:   window,
		breaker:  breaker,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Window returns the limiter's window length.
func (l *RedisLimiter) Window() time.Duration {
	return l.window
}

// Allow counts the request in the current window and reports whether it fits the budget
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		return true
	}
	if !l.breaker.AllowRequest() {
		return l.fallback.Allow(ctx, key)
	}

	windowStart := l.now().Truncate(l.window).Unix()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart)

	count, err := l.counter.IncrWindow(ctx, redisKey, l.window)
	if err != nil {
		l.breaker.RecordFailure()
		l.logger.Warn("redis rate limit check failed, using fallback",
			slog.String("error", err.Error()),
		)
		return l.fallback.Allow(ctx, key)
	}

	l.breaker.RecordSuccess()
	return count <= int64(l.maxReqs)
}
