// Package ratelimit implements the shared token-bucket primitive spec.md
// §2/§8 calls for: bandwidth limiting, backlog-scan pacing, and bootstrap
// scan pacing all share this one rate limiter type.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket with capacity and refill rate. A zero-capacity,
// zero-rate bucket is unlimited: every TryConsume succeeds, matching
// spec.md §8's boundary behavior.
type Bucket struct {
	unlimited bool
	limiter   *rate.Limiter
	capacity  int
}

// New constructs a token bucket with the given capacity and refill rate
// (tokens/second). capacity == 0 && ratePerSecond == 0 means unlimited.
func New(capacity int, ratePerSecond float64) *Bucket {
	if capacity == 0 && ratePerSecond == 0 {
		return &Bucket{unlimited: true}
	}
	return &Bucket{
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), capacity),
		capacity: capacity,
	}
}

// TryConsume attempts to take n tokens immediately, without blocking.
func (b *Bucket) TryConsume(n int) bool {
	if b.unlimited {
		return true
	}
	return b.limiter.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available or ctx is cancelled.
func (b *Bucket) Wait(ctx context.Context, n int) error {
	if b.unlimited {
		return nil
	}
	return b.limiter.WaitN(ctx, n)
}

// Capacity returns the configured burst capacity (0 for unlimited).
func (b *Bucket) Capacity() int { return b.capacity }
