package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// StatusError carries an HTTP status code from a store or webhook call so the
// classifier can tell retryable server-side failures from client mistakes.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Options controls one retried operation. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// ShouldRetry classifies an error as transient. Nil means IsTransient.
	ShouldRetry func(error) bool
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// transient message fragments seen from the hosted store and SMTP relays.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"database is locked", // SQLITE_BUSY surfaces as this
	"try again",
}

// IsTransient is the default error classifier: network resets, lock
// contention, resource exhaustion and HTTP 408/429/5xx retry; everything
// else fails immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code == 408 || code == 429 || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// Do runs op, retrying transient failures with exponential backoff. The delay
// before attempt n is min(BaseDelay*2^n, MaxDelay) scaled by a random factor
// in [0.5, 1.5] so concurrent callers hitting the same outage spread out
// instead of stampeding. A non-retryable error, exhausted retries, or a
// cancelled context all return the operation's original error unwrapped so
// callers can still match on it.
func Do[T any](ctx context.Context, op func() (T, error), opts Options) (T, error) {
	var zero T

	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt >= opts.MaxRetries {
			return zero, lastErr
		}

		delay := opts.BaseDelay << uint(attempt)
		if delay > opts.MaxDelay || delay <= 0 {
			delay = opts.MaxDelay
		}
		jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))

		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
}
