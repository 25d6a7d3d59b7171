// Package ratelimit provides a keyed token-bucket limiter. The store uses it
// to pace outbound progress deliveries per book.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter manages per-key rate limiting. Each key gets its own
// independent token bucket, created on first use.
type KeyedRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps events per second with the given
// burst per key.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether an event for the key may proceed right now.
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// Wait blocks until an event for the key is allowed or the context ends.
// Used on the outbound path, where pacing matters more than rejection.
func (l *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// Stop releases the per-key buckets. Calls after Stop create fresh buckets,
// which is harmless for the shutdown paths that race it.
func (l *KeyedRateLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*rate.Limiter)
}

func (l *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists = l.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	return limiter
}
