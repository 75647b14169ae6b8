package waiter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	assert.Equal(t, cfg, Config{}.withDefaults())
}

func TestUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Config{}, nil, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUntil_EventuallyHolds(t *testing.T) {
	var calls atomic.Int32
	err := Until(context.Background(), Config{Interval: 5 * time.Millisecond, Timeout: time.Second}, nil,
		func(context.Context) (bool, error) {
			return calls.Add(1) >= 3, nil
		})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestUntil_Timeout(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), Config{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}, nil,
		func(context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestUntil_ConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := Until(context.Background(), Config{}, nil, func(context.Context) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Until(ctx, Config{Interval: time.Hour, Timeout: time.Hour}, nil,
		func(context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntil_WakeChecksEarly(t *testing.T) {
	wake := make(chan struct{}, 1)
	var ready atomic.Bool

	go func() {
		time.Sleep(10 * time.Millisecond)
		ready.Store(true)
		wake <- struct{}{}
	}()

	start := time.Now()
	err := Until(context.Background(), Config{Interval: time.Hour, Timeout: 5 * time.Second}, wake,
		func(context.Context) (bool, error) { return ready.Load(), nil })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
