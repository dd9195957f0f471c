package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// permanentError wraps errors that retrying cannot fix: constraint
// violations and other client-side failures.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// withRetry runs op up to attempts times with exponential backoff starting
// at base. Permanent errors and context cancellation stop immediately.
func withRetry(ctx context.Context, attempts int, base time.Duration, log *slog.Logger, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}

	var last error
	for i := 0; i < attempts; i++ {
		err := op()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		last = err

		if i == attempts-1 {
			break
		}
		delay := base * time.Duration(1<<i)
		log.Warn("graph batch failed, retrying", "attempt", i+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return last
}
