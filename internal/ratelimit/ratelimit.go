// package ratelimit spaces calls to an external API by a minimum interval
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Clock is the time source a [Limiter] waits on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Limiter admits at most one call per interval.
//
// Admission is a token reservation on a burst-1 bucket, so concurrent callers are queued in reservation order
// and each caller's slot is recorded before it starts sleeping. A Limiter is safe for concurrent use and should be
// shared by every caller of the same API.
type Limiter struct {
	name     string
	interval time.Duration
	bucket   *rate.Limiter
	clock    Clock
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// New returns a limiter named after the API it guards. An interval of zero disables limiting.
func New(name string, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{name: name, interval: interval, clock: SystemClock}
	for _, opt := range opts {
		opt(l)
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l.bucket = rate.NewLimiter(limit, 1)
	return l
}

// Name returns the API name given to [New].
func (l *Limiter) Name() string { return l.name }

// Interval returns the minimum spacing between admissions.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Wait blocks until the caller may issue its request or ctx is done.
//
// A cancelled wait gives its slot back so later callers are not delayed by it.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil || l.interval <= 0 {
		return nil
	}

	now := l.clock.Now()
	r := l.bucket.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("%s: rate limiter cannot admit request", l.name)
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-l.clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(l.clock.Now())
		return ctx.Err()
	}
}
