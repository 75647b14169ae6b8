package assign

import (
	"errors"
	"fmt"

	"github.com/artpar/shipyard/internal/core/collision"
	"github.com/artpar/shipyard/internal/core/version"
)

var (
	// ErrCollisionBudget is returned when every candidate within the attempt budget collided.
	ErrCollisionBudget = errors.New("version collision retry budget exhausted")

	// ErrFetchFailed is returned when the target branch could not be fetched.
	ErrFetchFailed = errors.New("fetching target branch failed")
)

// CollisionError names the last colliding candidate.
type CollisionError struct {
	Candidate version.Version
	Reason    collision.Reason
	Attempts  int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("version %s %s after %d attempts", e.Candidate, e.Reason, e.Attempts)
}

func (e *CollisionError) Unwrap() error {
	return ErrCollisionBudget
}
