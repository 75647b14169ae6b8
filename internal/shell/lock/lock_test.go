package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Base:         filepath.Join(t.TempDir(), "shipyard-version.lock"),
		StaleAfter:   5 * time.Minute,
		Timeout:      200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func plantMarker(t *testing.T, base string, pid int, at time.Time) {
	t.Helper()
	require.NoError(t, os.Mkdir(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, pidFile), []byte(strconv.Itoa(pid)+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, timestampFile), []byte(strconv.FormatInt(at.Unix(), 10)+"\n"), 0o644))
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{Base: "/tmp/x.lock"}, nil)
	assert.Equal(t, DefaultConfig("/tmp/x.lock"), l.config)
}

func TestAcquire_WritesMarker(t *testing.T) {
	cfg := testConfig(t)
	l := New(cfg, setupTestLogger(), WithPID(4242))

	h, err := l.Acquire(context.Background())
	require.NoError(t, err)

	pid, err := os.ReadFile(filepath.Join(cfg.Base, pidFile))
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(pid))
	assert.FileExists(t, filepath.Join(cfg.Base, timestampFile))

	current, ok, err := l.Current()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, current.Same(h.Holder()))

	require.NoError(t, h.Release())
	assert.NoDirExists(t, cfg.Base)

	_, ok, err = l.Current()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquire_TimesOutWithHolderPID(t *testing.T) {
	cfg := testConfig(t)
	plantMarker(t, cfg.Base, 777, time.Now())

	l := New(cfg, setupTestLogger(), WithLiveness(func(int) bool { return true }))
	_, err := l.Acquire(context.Background())
	require.Error(t, err)

	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 777, terr.HolderPID)
	assert.GreaterOrEqual(t, terr.Waited, cfg.Timeout)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Contains(t, err.Error(), "pid 777")

	assert.DirExists(t, cfg.Base, "a live holder's marker is left alone")
}

func TestAcquire_ReclaimsDeadHolder(t *testing.T) {
	cfg := testConfig(t)
	plantMarker(t, cfg.Base, 999999, time.Now())

	l := New(cfg, setupTestLogger(), WithPID(1), WithLiveness(func(pid int) bool { return pid != 999999 }))
	h, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.Holder().PID)
	require.NoError(t, h.Release())
}

func TestAcquire_ReclaimsByAge(t *testing.T) {
	cfg := testConfig(t)
	plantMarker(t, cfg.Base, 777, time.Now().Add(-10*time.Minute))

	l := New(cfg, setupTestLogger(), WithLiveness(func(int) bool { return true }))
	h, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquire_MarkerWithoutPIDIsNotReclaimedEarly(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Mkdir(cfg.Base, 0o755))

	l := New(cfg, setupTestLogger(), WithLiveness(func(int) bool { return false }))
	_, err := l.Acquire(context.Background())

	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 0, terr.HolderPID)
	assert.Contains(t, err.Error(), "unknown holder")
}

func TestAcquire_ClockDrivesStaleness(t *testing.T) {
	cfg := testConfig(t)
	planted := time.Now()
	plantMarker(t, cfg.Base, 777, planted)

	future := func() time.Time { return planted.Add(6 * time.Minute) }
	l := New(cfg, setupTestLogger(), WithClock(future), WithLiveness(func(int) bool { return true }))
	h, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestRelease_AfterReclaimReportsNotHeld(t *testing.T) {
	cfg := testConfig(t)
	first := New(cfg, setupTestLogger(), WithPID(10))
	h, err := first.Acquire(context.Background())
	require.NoError(t, err)

	// Another process decides pid 10 is dead and takes over.
	second := New(cfg, setupTestLogger(), WithPID(20), WithLiveness(func(pid int) bool { return pid != 10 }))
	h2, err := second.Acquire(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, h.Release(), ErrNotHeld)
	assert.DirExists(t, cfg.Base)
	require.NoError(t, h2.Release())
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 5 * time.Second
	cfg.PollInterval = time.Second

	holder := New(cfg, setupTestLogger())
	h, err := holder.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = h.Release()
	}()

	waiterLock := New(cfg, setupTestLogger(), WithPID(os.Getpid()+1))
	h2, err := waiterLock.Acquire(context.Background())
	require.NoError(t, err)
	assert.Greater(t, h2.Waited, time.Duration(0))
	require.NoError(t, h2.Release())
}

func TestAcquire_MutualExclusion(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 10 * time.Second
	cfg.PollInterval = 2 * time.Millisecond

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			l := New(cfg, setupTestLogger(), WithPID(pid), WithLiveness(func(int) bool { return true }))
			h, err := l.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, h.Release())
		}(1000 + i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestAcquire_EmptyBase(t *testing.T) {
	_, err := New(Config{}, setupTestLogger()).Acquire(context.Background())
	assert.Error(t, err)
}
