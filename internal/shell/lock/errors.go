package lock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockTimeout is returned when the lock could not be acquired within the timeout.
	ErrLockTimeout = errors.New("version lock acquisition timed out")

	// ErrNotHeld is returned by Release when the marker no longer belongs to the caller.
	ErrNotHeld = errors.New("version lock not held by this process")
)

// TimeoutError reports who held the lock when the wait gave up.
type TimeoutError struct {
	Base      string
	HolderPID int
	Waited    time.Duration
}

func (e *TimeoutError) Error() string {
	holder := "unknown holder"
	if e.HolderPID > 0 {
		holder = fmt.Sprintf("pid %d", e.HolderPID)
	}
	return fmt.Sprintf("version lock %s held by %s: gave up after %s", e.Base, holder, e.Waited.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error {
	return ErrLockTimeout
}
