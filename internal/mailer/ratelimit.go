package mailer

import (
	"context"
	"sync"
	"time"
)

const rateLimitWindow = time.Second

// RateLimiter caps outbound provider sends at perSecond within a fixed
// one-second window. When the window is exhausted, Acquire blocks the caller
// for the remainder of the window. The clock and sleeper are injectable so
// tests run without real sleeping.
type RateLimiter struct {
	perSecond int

	mu          sync.Mutex
	windowStart time.Time
	sentCount   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateClock injects the clock and sleep functions for deterministic tests.
func WithRateClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) RateLimiterOption {
	return func(l *RateLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// NewRateLimiter creates a limiter allowing perSecond sends per window.
func NewRateLimiter(perSecond int, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		perSecond: perSecond,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Acquire blocks until a send slot is available or ctx is done.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if now.Sub(l.windowStart) >= rateLimitWindow {
			l.windowStart = now
			l.sentCount = 0
		}
		if l.sentCount < l.perSecond {
			l.sentCount++
			l.mu.Unlock()
			return nil
		}
		wait := rateLimitWindow - now.Sub(l.windowStart)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
