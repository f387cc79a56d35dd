package services

import (
	"context"
	"errors"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	retryCheckpoint       = time.Second
)

// Retrier repeats an operation while it fails with a transient error.
// Attempts are bounded and the delay doubles up to MaxDelay. A stop request
// on the context ends retrying at the next wait.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleeper replaces the real wait between attempts.
	Sleeper func(time.Duration)
}

// NewRetrier returns a Retrier with the default bounds.
func NewRetrier() Retrier {
	return Retrier{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

// Do calls fn until it succeeds, fails with a non-transient error or runs
// out of attempts. The last error is returned unchanged.
func (r Retrier) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := r.attempts()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !IsTransient(err) || ctx.Err() != nil || StopRequested(ctx) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if sleepErr := r.sleep(ctx, r.Delay(attempt)); sleepErr != nil {
			return err
		}
	}
}

// Delay returns the wait after the given 1-based attempt.
func (r Retrier) Delay(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return min(delay, maxDelay)
}

func (r Retrier) attempts() int {
	if r.MaxAttempts <= 0 {
		return 1
	}
	return r.MaxAttempts
}

func (r Retrier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if r.Sleeper != nil {
		r.Sleeper(delay)
		if StopRequested(ctx) {
			return ErrStopped
		}
		return ctx.Err()
	}
	deadline := time.Now().Add(delay)
	for {
		if StopRequested(ctx) {
			return ErrStopped
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(min(remaining, retryCheckpoint))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
