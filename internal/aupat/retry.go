package aupat

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy retries an operation with bounded exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Retryable decides which errors are worth another attempt.
	// Nil means IsRecoverable.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries recoverable errors three times: 200ms, 400ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
	}
}

// Validate rejects policies that could not make progress.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("retry initial_delay must not be negative")
	case p.Multiplier < 1:
		return fmt.Errorf("retry multiplier must be at least 1, got %g", p.Multiplier)
	}
	return nil
}

// Delay returns the wait before the given retry (1 for the first retry).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Exhaustion returns a *RetryExhaustedError wrapping the
// last error. The context bounds the waits between attempts.
func (p RetryPolicy) Do(ctx context.Context, clock Clock, logger Logger, op string, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRecoverable
	}
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			logger.Warn("retrying after transient failure",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	logger.Error("retry attempts exhausted", "op", op, "attempts", attempts, "error", lastErr)
	return &RetryExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}
