package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Journal Interface
// =============================================================================

// Journal is the append-only record of assignments and builds.
type Journal interface {
	RecordAssignment(ctx context.Context, a *Assignment) error
	ListAssignments(ctx context.Context, opts ListOptions) ([]Assignment, error)

	RecordBuild(ctx context.Context, b *Build) error
	LatestBuild(ctx context.Context, environment string) (*Build, error)
	ListBuilds(ctx context.Context, opts ListOptions) ([]Build, error)

	Close() error
}

// =============================================================================
// Entries
// =============================================================================

// Outcome of an assignment attempt.
type Outcome string

const (
	OutcomeAssigned  Outcome = "assigned"
	OutcomeReused    Outcome = "reused"
	OutcomeCollision Outcome = "collision"
	OutcomeFailed    Outcome = "failed"
)

// Assignment is one run of the version assignment engine.
type Assignment struct {
	ID           string
	Branch       string
	TargetBranch string
	Kind         string
	Class        string
	FromVersion  string
	Version      string
	Attempts     int
	Outcome      Outcome
	ErrorMessage string
	LockWait     time.Duration
	CreatedAt    time.Time
}

// Build is one recorded environment build.
type Build struct {
	ID          string
	Environment string
	Branch      string
	Commit      string
	Version     string
	Fingerprint string
	Debug       bool
	CreatedAt   time.Time
}

// NewID returns a fresh entry id.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
