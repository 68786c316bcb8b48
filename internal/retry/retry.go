// package retry runs external calls with bounded exponential backoff
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/shared"
)

// ErrNoResult is returned when every attempt failed with a retryable error.
// Callers treat it as "could not resolve", never as a fatal error.
var ErrNoResult = errors.New("no result after retries")

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	// MaxServerDelay caps the wait a server may request through [Delayed].
	MaxServerDelay = 30 * time.Second
)

// Temporary is implemented by errors that know whether a retry may succeed.
type Temporary interface {
	Temporary() bool
}

// Delayed is implemented by errors that carry a server-requested wait, such as a Retry-After header.
type Delayed interface {
	RetryDelay() time.Duration
}

// floorBackOff raises the next backoff to the wait requested by the last failure.
type floorBackOff struct {
	backoff.BackOff
	floor time.Duration
}

func (b *floorBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	floor := b.floor
	b.floor = 0
	if next == backoff.Stop {
		return next
	}
	return max(next, floor)
}

// Options configures an [Executor].
type Options struct {
	MaxAttempts int                  // Total attempts including the first (default 3)
	BaseDelay   time.Duration        // Retry n sleeps BaseDelay * 2^n (default 500ms)
	NewTimer    func() backoff.Timer // Sleep implementation, replaced in tests
	Logger      *log.Logger
}

// Executor retries failed calls. The n-th retry sleeps BaseDelay * 2^n, so the default policy sleeps 1s then 2s.
// A failure carrying a longer server-requested wait ([Delayed]) sleeps that long instead, up to [MaxServerDelay].
//
// Auth failures, cancellation and errors reporting Temporary() == false are returned at once.
// Sleeps are timer based and end early when the context is done. An Executor holds no locks and is safe for concurrent use.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	newTimer    func() backoff.Timer
	logger      *log.Logger
}

// New creates an [Executor], filling zero options with defaults.
func New(opts Options) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	return &Executor{
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		newTimer:    opts.NewTimer,
		logger:      shared.WithLogger(opts.Logger, "component", "retry"),
	}
}

// MaxAttempts returns the total number of attempts per call.
func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// policy builds a fresh backoff sequence of BaseDelay*2, BaseDelay*4, ... capped at MaxAttempts-1 retries.
// Each delay is raised to floor's requested wait, if any.
func (e *Executor) policy(ctx context.Context, floor *floorBackOff) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 2 * e.baseDelay
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = time.Duration(math.MaxInt64)
	expo.MaxElapsedTime = 0
	expo.Reset()

	floor.BackOff = expo
	return backoff.WithContext(backoff.WithMaxRetries(floor, uint64(e.maxAttempts-1)), ctx)
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
//
// name identifies the call in logs. On exhaustion the returned error wraps [ErrNoResult] and the last failure.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := 0
	var last error
	floor := &floorBackOff{}

	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if permanent(ctx, err) {
			return backoff.Permanent(err)
		}
		var d Delayed
		if errors.As(err, &d) {
			floor.floor = min(d.RetryDelay(), MaxServerDelay)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		e.logger.Debug("retrying", "call", name, "attempt", attempts, "delay", next, "error", err)
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, e.policy(ctx, floor), notify, timer)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case last != nil && !permanent(ctx, last):
		e.logger.Warn("retries exhausted", "call", name, "attempts", attempts, "error", last)
		return fmt.Errorf("%w: %s failed %d times: %v", ErrNoResult, name, attempts, last)
	default:
		return err
	}
}

// Value is [Executor.Do] for calls that produce a result.
func Value[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// permanent reports whether err must not be retried.
func permanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil || shared.IsAuthError(err) {
		return true
	}
	var t Temporary
	if errors.As(err, &t) {
		return !t.Temporary()
	}
	return false
}
