package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	op := func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	}

	result, err := Do(context.Background(), op, fastOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("invalid alert config")
	op := func() (int, error) {
		calls++
		return 0, fatal
	}

	_, err := Do(context.Background(), op, fastOptions())
	assert.Equal(t, 1, calls)
	// the original error comes back unchanged, not wrapped
	assert.Same(t, fatal, err)
}

func TestDoExhaustionReturnsOriginalError(t *testing.T) {
	calls := 0
	transient := &StatusError{StatusCode: 503, Message: "upstream unavailable"}
	op := func() (int, error) {
		calls++
		return 0, transient
	}

	_, err := Do(context.Background(), op, fastOptions())
	assert.Equal(t, 4, calls) // 1 initial + 3 retries
	assert.Same(t, error(transient), err)
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("timeout waiting for store")
	}

	opts := fastOptions()
	opts.BaseDelay = time.Minute
	opts.MaxDelay = time.Minute

	_, err := Do(ctx, op, opts)
	assert.Equal(t, 1, calls)
	assert.EqualError(t, err, "timeout waiting for store")
}

func TestDoCustomClassifier(t *testing.T) {
	calls := 0
	op := func() (int, error) {
		calls++
		return 0, errors.New("special")
	}

	opts := fastOptions()
	opts.ShouldRetry = func(err error) bool { return err.Error() == "special" }

	_, err := Do(context.Background(), op, opts)
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 408", &StatusError{StatusCode: 408}, true},
		{"http 429", &StatusError{StatusCode: 429}, true},
		{"http 500", &StatusError{StatusCode: 500}, true},
		{"http 503 wrapped", fmt.Errorf("store call: %w", &StatusError{StatusCode: 503}), true},
		{"http 400", &StatusError{StatusCode: 400}, false},
		{"http 404", &StatusError{StatusCode: 404}, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"timeout message", errors.New("request timeout exceeded"), true},
		{"rate limit message", errors.New("rate limit hit, slow down"), true},
		{"sqlite busy", errors.New("database is locked"), true},
		{"validation", errors.New("missing required field"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
