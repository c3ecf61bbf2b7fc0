package kv

import (
	"context"
	"fmt"
	"time"
)

// RateLimitResult describes the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Current   int64
	Limit     int
	Remaining int64
	ResetAt   time.Time
}

// Limiter implements a fixed-window counter. The counter increments on every
// check, including denied ones, so a client hammering a denied key keeps the
// window hot.
type Limiter struct {
	store Store
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Check increments the counter for key and reports whether the caller is
// within limit for the current window. The window TTL is set when the counter
// is created.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	counterKey := "ratelimit:" + key

	current, err := l.store.Incr(ctx, counterKey)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("increment rate limit counter: %w", err)
	}

	if current == 1 {
		if _, err := l.store.Expire(ctx, counterKey, window); err != nil {
			return RateLimitResult{}, fmt.Errorf("set rate limit window: %w", err)
		}
	}

	ttl, err := l.store.TTL(ctx, counterKey)
	if err != nil || ttl < 0 {
		ttl = window
	}

	remaining := int64(limit) - current
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   current <= int64(limit),
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
