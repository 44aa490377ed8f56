package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	maxAttempts  = 5
	initialDelay = 500 * time.Millisecond
	maxDelay     = 30 * time.Second
)

// permanentError marks a failure that retrying cannot fix, e.g. a rejected
// job specification.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// retryWithBackoff runs op with bounded exponential backoff. Permanent errors
// and context cancellation stop immediately; everything else is treated as a
// transient platform failure.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, op func() error) error {
	delay := initialDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		logger.Warn("transient actor platform failure, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
