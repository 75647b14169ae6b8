// Package waiter polls a condition until it holds or a deadline passes.
package waiter

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the condition did not hold before the timeout.
var ErrTimeout = errors.New("timed out waiting for condition")

// Config bounds a wait.
type Config struct {
	// Interval is the time between checks.
	// Default: 500 milliseconds.
	Interval time.Duration

	// Timeout is the total time allowed.
	// Default: 30 seconds.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 500 * time.Millisecond,
		Timeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Condition reports whether the wait is over. A non-nil error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

// Until checks cond immediately, then on every tick and every receive on wake,
// until it holds, returns an error, ctx ends or the timeout elapses.
// wake may be nil.
func Until(ctx context.Context, cfg Config, wake <-chan struct{}, cond Condition) error {
	cfg = cfg.withDefaults()

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// One last look so a condition satisfied right at the deadline still counts.
			if done, err := cond(ctx); err != nil || done {
				return err
			}
			return ErrTimeout
		case <-ticker.C:
		case <-wake:
		}
	}
}
