// Package lock implements the host-local version lock: a marker directory
// created with mkdir, holding the holder's pid and acquisition time.
//
// mkdir either creates the directory or fails, so exactly one caller wins.
// A marker whose holder is dead, or which is older than the staleness
// threshold, is reclaimed. Reclaim runs under a flock on a sibling file so
// two waiters cannot both remove a marker and then race a fresh holder.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/artpar/shipyard/internal/shell/waiter"
)

const (
	pidFile       = "pid"
	timestampFile = "timestamp"
)

// Config configures the version lock.
type Config struct {
	// Base is the marker directory path.
	Base string

	// StaleAfter is the age past which a live holder is considered hung.
	// Default: 5 minutes.
	StaleAfter time.Duration

	// Timeout bounds the total wait.
	// Default: 30 seconds.
	Timeout time.Duration

	// PollInterval is the time between acquisition attempts.
	// Default: 500 milliseconds.
	PollInterval time.Duration
}

// DefaultConfig returns the default configuration for a marker at base.
func DefaultConfig(base string) Config {
	return Config{
		Base:         base,
		StaleAfter:   5 * time.Minute,
		Timeout:      30 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// Holder identifies the owner recorded in a marker.
type Holder struct {
	PID        int
	AcquiredAt time.Time
}

// Same reports whether two holders describe the same acquisition.
func (h Holder) Same(other Holder) bool {
	return h.PID == other.PID && h.AcquiredAt.Equal(other.AcquiredAt)
}

// Option customizes a Lock.
type Option func(*Lock)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Lock) { l.now = now }
}

// WithLiveness replaces the process-table liveness check.
func WithLiveness(alive func(pid int) bool) Option {
	return func(l *Lock) { l.alive = alive }
}

// WithPID records pid instead of os.Getpid().
func WithPID(pid int) Option {
	return func(l *Lock) { l.pid = pid }
}

// Lock acquires and releases the marker directory.
type Lock struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
	alive  func(int) bool
	pid    int
}

// New creates a Lock. Zero durations in cfg take their defaults.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Lock {
	d := DefaultConfig(cfg.Base)
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = d.StaleAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Lock{
		config: cfg,
		logger: logger.With("component", "version_lock", "base", cfg.Base),
		now:    time.Now,
		alive:  processAlive,
		pid:    os.Getpid(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handle is a held lock.
type Handle struct {
	lock   *Lock
	holder Holder
	Waited time.Duration
}

// Holder returns the identity written into the marker.
func (h *Handle) Holder() Holder {
	return h.holder
}

// Acquire blocks until the marker is created by this caller, reclaiming stale
// markers along the way. It fails with a *TimeoutError after the configured timeout.
func (l *Lock) Acquire(ctx context.Context) (*Handle, error) {
	if l.config.Base == "" {
		return nil, errors.New("version lock base path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(l.config.Base), 0o755); err != nil {
		return nil, fmt.Errorf("preparing lock directory: %w", err)
	}

	start := time.Now()
	var (
		mine    Holder
		blocker Holder
	)
	attempt := func(context.Context) (bool, error) {
		ok, holder, err := l.try()
		if err != nil || ok {
			mine = holder
			return ok, err
		}
		blocker = holder
		if !l.stale(holder) {
			return false, nil
		}
		reclaimed, err := l.reclaim(holder)
		if err != nil || !reclaimed {
			return false, err
		}
		ok, holder, err = l.try()
		if ok {
			mine = holder
		} else {
			blocker = holder
		}
		return ok, err
	}

	ok, err := attempt(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.logger.Info("version lock busy, waiting", "holder_pid", blocker.PID, "timeout", l.config.Timeout)
		wake, stop := l.watch()
		defer stop()
		err = waiter.Until(ctx, waiter.Config{Interval: l.config.PollInterval, Timeout: l.config.Timeout}, wake, attempt)
	}
	if errors.Is(err, waiter.ErrTimeout) {
		return nil, &TimeoutError{Base: l.config.Base, HolderPID: blocker.PID, Waited: time.Since(start)}
	}
	if err != nil {
		return nil, err
	}

	waited := time.Since(start)
	l.logger.Debug("version lock acquired", "pid", mine.PID, "waited", waited)
	return &Handle{lock: l, holder: mine, Waited: waited}, nil
}

// Release removes the marker if it still records this handle's holder.
func (h *Handle) Release() error {
	l := h.lock
	current, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotHeld
	}
	if err != nil {
		return err
	}
	if !current.Same(h.holder) {
		l.logger.Warn("version lock was reclaimed by another process", "holder_pid", current.PID)
		return ErrNotHeld
	}
	if err := os.RemoveAll(l.config.Base); err != nil {
		return fmt.Errorf("removing version lock: %w", err)
	}
	l.logger.Debug("version lock released")
	return nil
}

// Current returns the recorded holder, if the marker exists.
func (l *Lock) Current() (Holder, bool, error) {
	h, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return Holder{}, false, nil
	}
	if err != nil {
		return Holder{}, false, err
	}
	return h, true, nil
}

// try attempts the mkdir. On success the returned holder is ours, otherwise it is the blocker.
func (l *Lock) try() (bool, Holder, error) {
	err := os.Mkdir(l.config.Base, 0o755)
	if err == nil {
		mine := Holder{PID: l.pid, AcquiredAt: l.now().Truncate(time.Second)}
		if err := l.write(mine); err != nil {
			_ = os.RemoveAll(l.config.Base)
			return false, Holder{}, err
		}
		return true, mine, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, Holder{}, fmt.Errorf("creating version lock: %w", err)
	}

	holder, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		// Released between our mkdir and the read; the next attempt will win or lose cleanly.
		return false, Holder{}, nil
	}
	return false, holder, err
}

// stale reports whether holder may be reclaimed. A marker without a pid yet
// is treated as live, since its creator may still be writing it.
func (l *Lock) stale(h Holder) bool {
	if h.PID > 0 && !l.alive(h.PID) {
		return true
	}
	return !h.AcquiredAt.IsZero() && l.now().Sub(h.AcquiredAt) > l.config.StaleAfter
}

// reclaim removes the marker if it still records holder.
func (l *Lock) reclaim(holder Holder) (bool, error) {
	guard := flock.New(l.config.Base + ".reclaim")
	locked, err := guard.TryLock()
	if err != nil {
		return false, fmt.Errorf("locking reclaim guard: %w", err)
	}
	if !locked {
		return false, nil
	}
	defer func() { _ = guard.Unlock() }()

	current, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !current.Same(holder) {
		return false, nil
	}
	if err := os.RemoveAll(l.config.Base); err != nil {
		return false, fmt.Errorf("removing stale version lock: %w", err)
	}

	reason := "holder not running"
	if l.alive(holder.PID) {
		reason = "older than " + l.config.StaleAfter.String()
	}
	l.logger.Warn("reclaimed stale version lock", "holder_pid", holder.PID, "acquired_at", holder.AcquiredAt, "reason", reason)
	return true, nil
}

func (l *Lock) write(h Holder) error {
	pid := strconv.Itoa(h.PID) + "\n"
	ts := strconv.FormatInt(h.AcquiredAt.Unix(), 10) + "\n"
	if err := atomic.WriteFile(filepath.Join(l.config.Base, pidFile), strings.NewReader(pid)); err != nil {
		return fmt.Errorf("writing lock pid: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(l.config.Base, timestampFile), strings.NewReader(ts)); err != nil {
		return fmt.Errorf("writing lock timestamp: %w", err)
	}
	return nil
}

// read parses the marker. Missing or garbled files leave the field zero,
// except a missing timestamp, which falls back to the directory mtime.
func (l *Lock) read() (Holder, error) {
	info, err := os.Stat(l.config.Base)
	if err != nil {
		return Holder{}, err
	}

	var h Holder
	if data, err := os.ReadFile(filepath.Join(l.config.Base, pidFile)); err == nil {
		h.PID, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}
	if data, err := os.ReadFile(filepath.Join(l.config.Base, timestampFile)); err == nil {
		if secs, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			h.AcquiredAt = time.Unix(secs, 0)
		}
	}
	if h.AcquiredAt.IsZero() {
		h.AcquiredAt = info.ModTime().Truncate(time.Second)
	}
	return h, nil
}

// watch turns removals in the marker's parent directory into wake-ups.
// If the watcher cannot be created, waiting falls back to polling alone.
func (l *Lock) watch() (<-chan struct{}, func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Debug("lock watcher unavailable, polling only", "error", err)
		return nil, func() {}
	}
	if err := watcher.Add(filepath.Dir(l.config.Base)); err != nil {
		_ = watcher.Close()
		l.logger.Debug("lock watcher unavailable, polling only", "error", err)
		return nil, func() {}
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(l.config.Base) && ev.Has(fsnotify.Remove) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake, func() {
		close(done)
		_ = watcher.Close()
	}
}
