package retry

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidAttempts = errors.New("retry: attempts must be positive")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff returns base * 2^attempt for a zero-based attempt index.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	return base << attempt
}

// Do runs op up to attempts times, sleeping Backoff(base, attempt) between failures.
// It stops early on context cancellation or when op returns a Permanent error.
// The returned error is the last one op produced.
func Do(ctx context.Context, attempts int, base time.Duration, op func(attempt int) error) error {
	if attempts <= 0 {
		return ErrInvalidAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(lastErr, err)
			}
			return err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(base, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}
