package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"songfactory/internal/services"
)

func TestRetrierRetriesTransientErrors(t *testing.T) {
	var slept []time.Duration
	r := services.Retrier{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second,
		Sleeper: func(d time.Duration) { slept = append(slept, d) }}

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrNetwork, "artifact", "download", "HTTP 503", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	r := services.Retrier{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleeper: func(time.Duration) {}}
	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return services.Wrap(services.ErrService, "artifact", "download", "HTTP 404", nil)
	})
	if !errors.Is(err, services.ErrService) || calls != 1 {
		t.Fatalf("expected one call with service error, got %d calls and %v", calls, err)
	}
}

func TestRetrierBoundsAttempts(t *testing.T) {
	r := services.Retrier{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleeper: func(time.Duration) {}}
	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return services.Wrap(services.ErrRateLimited, "history", "projects", "HTTP 429", nil)
	})
	if !errors.Is(err, services.ErrRateLimited) || calls != 2 {
		t.Fatalf("expected two calls ending rate limited, got %d and %v", calls, err)
	}
}

func TestRetrierHonorsStopRequest(t *testing.T) {
	stopped := false
	ctx := services.WithStopCheck(context.Background(), func() bool { return stopped })
	r := services.Retrier{MaxAttempts: 5, BaseDelay: time.Millisecond,
		Sleeper: func(time.Duration) { stopped = true }}
	calls := 0
	err := r.Do(ctx, func(int) error {
		calls++
		return services.Wrap(services.ErrNetwork, "artifact", "download", "request failed", nil)
	})
	if !errors.Is(err, services.ErrNetwork) || calls != 1 {
		t.Fatalf("expected retrying to end after the stop, got %d calls and %v", calls, err)
	}
}

func TestRetrierDelayCaps(t *testing.T) {
	r := services.Retrier{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	if got := r.Delay(1); got != 2*time.Second {
		t.Fatalf("attempt 1 delay = %v", got)
	}
	if got := r.Delay(2); got != 4*time.Second {
		t.Fatalf("attempt 2 delay = %v", got)
	}
	if got := r.Delay(5); got != 5*time.Second {
		t.Fatalf("attempt 5 delay = %v", got)
	}
}
