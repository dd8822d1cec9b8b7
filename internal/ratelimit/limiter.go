package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Counter is the atomic increment-and-check primitive the limiter needs.
// *redis.RedisService satisfies it.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter is a fixed-window rate limiter. Counters live in a shared store
// so concurrently in-flight requests across the process never lose updates.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

// New creates a limiter allowing limit requests per window per key.
// limit <= 0 disables limiting. Windows are whole seconds; anything
// shorter is clamped to one second.
func New(counter Counter, limit int, window time.Duration) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
	}
}

// Allow reports whether a request identified by key fits in the current
// window. A store failure fails open: availability over strictness.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.limit <= 0 || l.counter == nil {
		return true
	}

	windowIndex := time.Now().Unix() / int64(l.window/time.Second)
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, windowIndex)

	count, err := l.counter.IncrWindow(ctx, counterKey, l.window)
	if err != nil {
		logger.Base().Warn("rate limit store unavailable, allowing request", zap.Error(err))
		return true
	}
	return count <= int64(l.limit)
}
