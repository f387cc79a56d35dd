package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"songfactory/internal/services"
)

// ErrAlreadyRunning is returned when a run is started while another is
// active on the same runner.
var ErrAlreadyRunning = errors.New("a run is already active")

const checkpoint = time.Second

// Control carries the cooperative stop flag and the confirmation signal of
// one run.
type Control struct {
	stopped atomic.Bool
	mu      sync.Mutex
	confirm chan struct{}
}

// NewControl returns a Control with no stop requested.
func NewControl() *Control {
	return &Control{confirm: make(chan struct{}, 1)}
}

// Stop requests that the run end at the next checkpoint.
func (c *Control) Stop() {
	if c != nil {
		c.stopped.Store(true)
	}
}

// Stopped reports whether Stop was called.
func (c *Control) Stopped() bool {
	return c != nil && c.stopped.Load()
}

// Confirm signals that the user confirmed the pending generation. Extra
// confirmations while one is pending are ignored.
func (c *Control) Confirm() {
	if c == nil {
		return
	}
	select {
	case c.confirmCh() <- struct{}{}:
	default:
	}
}

// Confirmed receives once per Confirm.
func (c *Control) Confirmed() <-chan struct{} {
	return c.confirmCh()
}

// ClearConfirmation drops a confirmation given before the current wait.
func (c *Control) ClearConfirmation() {
	if c == nil {
		return
	}
	select {
	case <-c.confirmCh():
	default:
	}
}

func (c *Control) confirmCh() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirm == nil {
		c.confirm = make(chan struct{}, 1)
	}
	return c.confirm
}

// Sleep waits for d in one-second checkpoints. It returns services.ErrStopped
// when a stop is requested and the context error when ctx ends first.
func Sleep(ctx context.Context, d time.Duration, ctl *Control) error {
	deadline := time.Now().Add(d)
	for {
		if ctl.Stopped() {
			return services.ErrStopped
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		step := min(remaining, checkpoint)
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitConfirmed blocks until the user confirms, the timeout passes, a stop is
// requested or ctx ends.
func WaitConfirmed(ctx context.Context, ctl *Control, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if ctl.Stopped() {
			return services.ErrStopped
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return services.Wrap(services.ErrTimeout, "jobs", "confirm",
				"no confirmation within "+timeout.String(), nil)
		}
		timer := time.NewTimer(min(remaining, checkpoint))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-ctl.Confirmed():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
