// Package ratelimit provides a minimum-interval gate shared by every caller of one external API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between consecutive calls recorded by any goroutine
// holding the same instance. Create one per API family so unrelated APIs don't throttle
// each other.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time

	now   func() time.Time
	sleep func(time.Duration)
	wait  func(ctx context.Context, d time.Duration) error
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock and sleep used by the limiter, for Acquire and
// AcquireContext alike. An injected sleep cannot be interrupted, so AcquireContext
// checks the context before and after it.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
		l.wait = func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sleep(d)
			return ctx.Err()
		}
	}
}

// New creates a limiter. A zero or negative interval never delays.
func New(minInterval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		minInterval: minInterval,
		now:         time.Now,
		sleep:       time.Sleep,
		wait:        timerWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the interval since the last recorded call has passed, then records
// the current time.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if elapsed := l.now().Sub(l.last); elapsed < l.minInterval {
			l.sleep(l.minInterval - elapsed)
		}
	}
	l.last = l.now()
}

// AcquireContext is Acquire with cancellation. A cancelled wait records nothing.
func (l *Limiter) AcquireContext(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if elapsed := l.now().Sub(l.last); elapsed < l.minInterval {
			if err := l.wait(ctx, l.minInterval-elapsed); err != nil {
				return err
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	l.last = l.now()
	return nil
}

func timerWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Last returns the most recently recorded call time, zero if none.
func (l *Limiter) Last() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.minInterval
}
