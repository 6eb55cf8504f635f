// Package backoff provides bounded retry for calls to external
// collaborators. Transient failures (network errors, 429/5xx) are retried
// with increasing delay; everything else propagates immediately.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a call that exceeded its wall-clock budget. Reported as
// its own failure kind so a stuck collaborator is visible in aggregates.
var ErrTimeout = errors.New("backoff: call timed out")

// Transient wraps an error that is safe to retry.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// Retryable marks err as transient so Retry will attempt it again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// Retry runs fn up to attempts times, sleeping delays[i] between tries.
// If delays is shorter than attempts the last delay repeats. Only errors
// marked with Retryable are retried; the final error is returned wrapped
// with the attempt count.
func Retry(ctx context.Context, attempts int, delays []time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if len(delays) == 0 {
		delays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		delay := delays[min(attempt, len(delays)-1)]
		select {
		case <-ctx.Done():
			return fmt.Errorf("backoff: cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("backoff: %d attempts exhausted: %w", attempts, lastErr)
}

// WithTimeout runs fn under a wall-clock budget. A deadline hit is returned
// as ErrTimeout, distinct from cancellation and from fn's own failures, so
// one stuck call cannot stall a batch silently. Timeouts are transient:
// the returned error is marked retryable so Retry attempts the call again.
func WithTimeout(ctx context.Context, budget time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Retryable(fmt.Errorf("%w after %s: %v", ErrTimeout, budget, err))
	}
	return err
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
