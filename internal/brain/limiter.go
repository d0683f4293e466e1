package brain

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps how many calls to a shared backend are in flight at once.
// A nil Limiter, or one built with n <= 0, does not limit.
type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(n int64) *Limiter {
	if n <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: semaphore.NewWeighted(n)}
}

// Do runs fn once a slot is free. It gives up with ctx.Err() if ctx ends
// while waiting.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l == nil || l.sem == nil {
		return fn(ctx)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn(ctx)
}
