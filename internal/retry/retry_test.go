package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/playgen/internal/shared"
	tu "github.com/desertthunder/playgen/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	temporary bool
}

func (e statusError) Error() string   { return fmt.Sprintf("status error (temporary=%v)", e.temporary) }
func (e statusError) Temporary() bool { return e.temporary }

type throttledError struct {
	wait time.Duration
}

func (e throttledError) Error() string             { return "429 too many requests" }
func (e throttledError) Temporary() bool           { return true }
func (e throttledError) RetryDelay() time.Duration { return e.wait }

func newExecutor(attempts int, base time.Duration) (*Executor, *tu.FakeTimer) {
	timer := tu.NewFakeTimer()
	return New(Options{
		MaxAttempts: attempts,
		BaseDelay:   base,
		NewTimer:    func() backoff.Timer { return timer },
	}), timer
}

func TestExecutor(t *testing.T) {
	t.Run("success on first attempt does not sleep", func(t *testing.T) {
		exec, timer := newExecutor(3, 500*time.Millisecond)
		calls := 0

		err := exec.Do(context.Background(), "search", func(context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, timer.Durations())
	})

	t.Run("always failing call is attempted exactly max attempts times", func(t *testing.T) {
		for _, attempts := range []int{1, 2, 3, 5} {
			t.Run(fmt.Sprintf("%d attempts", attempts), func(t *testing.T) {
				base := 500 * time.Millisecond
				exec, timer := newExecutor(attempts, base)
				calls := 0

				err := exec.Do(context.Background(), "search", func(context.Context) error {
					calls++
					return errors.New("connection reset")
				})

				require.ErrorIs(t, err, ErrNoResult)
				assert.Equal(t, attempts, calls)

				var want time.Duration
				for n := 1; n < attempts; n++ {
					want += base * time.Duration(1<<n)
				}
				assert.Equal(t, want, timer.Total())
			})
		}
	})

	t.Run("server requested wait raises the delay", func(t *testing.T) {
		exec, timer := newExecutor(3, 500*time.Millisecond)

		err := exec.Do(context.Background(), "search", func(context.Context) error {
			return fmt.Errorf("search: %w", throttledError{wait: 10 * time.Second})
		})

		require.ErrorIs(t, err, ErrNoResult)
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, timer.Durations())
	})

	t.Run("short server wait keeps the backoff", func(t *testing.T) {
		exec, timer := newExecutor(3, 500*time.Millisecond)
		calls := 0

		_ = exec.Do(context.Background(), "search", func(context.Context) error {
			calls++
			if calls == 1 {
				return throttledError{wait: 100 * time.Millisecond}
			}
			return throttledError{wait: 5 * time.Second}
		})

		assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, timer.Durations())
	})

	t.Run("server wait is capped", func(t *testing.T) {
		exec, timer := newExecutor(2, 500*time.Millisecond)

		_ = exec.Do(context.Background(), "search", func(context.Context) error {
			return throttledError{wait: time.Hour}
		})

		assert.Equal(t, []time.Duration{MaxServerDelay}, timer.Durations())
	})

	t.Run("default policy sleeps one then two seconds", func(t *testing.T) {
		exec, timer := newExecutor(0, 0)

		_ = exec.Do(context.Background(), "search", func(context.Context) error {
			return statusError{temporary: true}
		})

		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Durations())
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		exec, timer := newExecutor(3, 10*time.Millisecond)
		calls := 0

		got, err := Value(context.Background(), exec, "search", func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", statusError{temporary: true}
			}
			return "found", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "found", got)
		assert.Equal(t, 3, calls)
		assert.Len(t, timer.Durations(), 2)
	})

	t.Run("auth failures are not retried", func(t *testing.T) {
		exec, timer := newExecutor(3, time.Millisecond)
		calls := 0

		err := exec.Do(context.Background(), "search", func(context.Context) error {
			calls++
			return fmt.Errorf("%w: status 401", shared.ErrTokenExpired)
		})

		assert.ErrorIs(t, err, shared.ErrTokenExpired)
		assert.NotErrorIs(t, err, ErrNoResult)
		assert.Equal(t, 1, calls)
		assert.Empty(t, timer.Durations())
	})

	t.Run("non temporary errors are not retried", func(t *testing.T) {
		exec, _ := newExecutor(3, time.Millisecond)
		calls := 0

		err := exec.Do(context.Background(), "search", func(context.Context) error {
			calls++
			return statusError{temporary: false}
		})

		var se statusError
		assert.ErrorAs(t, err, &se)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancellation during sleep stops retrying", func(t *testing.T) {
		exec := New(Options{MaxAttempts: 3, BaseDelay: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		done := make(chan error, 1)
		go func() {
			done <- exec.Do(ctx, "search", func(context.Context) error {
				calls++
				return errors.New("timeout")
			})
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, 1, calls)
		case <-time.After(2 * time.Second):
			t.Fatal("retry sleep did not observe cancellation")
		}
	})
}
