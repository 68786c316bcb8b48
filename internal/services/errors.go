package services

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/playgen/internal/shared"
)

// APIError is a failed call to an external API.
//
// It unwraps to the shared sentinel matching its status, so callers can use errors.Is with
// [shared.ErrTokenExpired], [shared.ErrAuthFailed], [shared.ErrRateLimited] and friends.
type APIError struct {
	Service    string
	Status     int // HTTP status, 0 for transport failures
	Message    string
	RetryAfter time.Duration
	sentinel   error
	rejected   bool // refused locally by an open circuit breaker
}

func newAPIError(service string, status int, message string) *APIError {
	return &APIError{
		Service:  service,
		Status:   status,
		Message:  message,
		sentinel: sentinelFor(status),
	}
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v: %s", e.Service, e.sentinel, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v: status %d", e.Service, e.sentinel, e.Status)
	}
	return fmt.Sprintf("%s: %v: status %d: %s", e.Service, e.sentinel, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

// RetryDelay returns the wait the server asked for, zero when it gave none.
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	if e.rejected {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func sentinelFor(status int) error {
	switch {
	case status == 0:
		return shared.ErrAPIRequest
	case status == http.StatusUnauthorized:
		return shared.ErrTokenExpired
	case status == http.StatusForbidden:
		return shared.ErrAuthFailed
	case status == http.StatusNotFound:
		return shared.ErrTrackNotFound
	case status == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case status >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
