package tts

import (
	"context"
	"errors"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
)

// RetryPolicy bounds the exponential backoff applied to transient provider
// failures.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (r RetryPolicy) Delay(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}

	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}

	return delay
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}

	return !providerErr.Permanent
}

// do calls fn until it succeeds, fails permanently, the attempts run out or
// ctx is done. onRetry is told about every failure that will be retried.
func (r RetryPolicy) do(ctx context.Context, fn func() error, onRetry func(attempt int, delay time.Duration, err error)) error {
	attempts := max(r.Attempts, 1)

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !Retryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := r.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}
