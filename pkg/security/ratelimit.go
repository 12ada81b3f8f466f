package security

import (
	"context"
	"sync"
	"time"
)

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	// Allow checks if a connection from key should be admitted
	Allow(key string) bool
}

// TokenBucket implements a per-key token bucket rate limiter
type TokenBucket struct {
	mu sync.RWMutex

	// rate is the number of tokens added per second
	rate float64

	// capacity is the maximum number of tokens
	capacity int64

	// buckets maps keys to their token buckets
	buckets map[string]*bucket

	// cleanupInterval is how often to clean up old buckets
	cleanupInterval time.Duration

	// bucketTTL is how long to keep inactive buckets
	bucketTTL time.Duration
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket returns a limiter that refills rate tokens per second up to
// capacity. Idle buckets are dropped until ctx is done.
func NewTokenBucket(ctx context.Context, rate float64, capacity int64) *TokenBucket {
	tb := &TokenBucket{
		rate:            rate,
		capacity:        capacity,
		buckets:         make(map[string]*bucket),
		cleanupInterval: 1 * time.Minute,
		bucketTTL:       5 * time.Minute,
	}

	go tb.cleanupPeriodically(ctx)
	return tb
}

func (tb *TokenBucket) Allow(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	}
	tb.refill(b, now)

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

func (tb *TokenBucket) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.tokens+elapsed*tb.rate, float64(tb.capacity))
	b.lastRefill = now
}

func (tb *TokenBucket) cleanupPeriodically(ctx context.Context) {
	ticker := time.NewTicker(tb.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			tb.mu.Lock()
			for key, b := range tb.buckets {
				if now.Sub(b.lastRefill) > tb.bucketTTL {
					delete(tb.buckets, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}
