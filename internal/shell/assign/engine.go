// Package assign allocates the next version when a unit of work finishes.
//
// One assignment runs entirely under the host version lock: fetch the target
// integration branch, read its committed version, compute a candidate, step
// past collisions with recent assignment commits and tags, then rewrite every
// version file and commit them.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/shipyard/internal/core/collision"
	"github.com/artpar/shipyard/internal/core/version"
	"github.com/artpar/shipyard/internal/shell/lock"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
)

// =============================================================================
// Collaborators
// =============================================================================

// Repository is the version-control surface the engine needs.
type Repository interface {
	Fetch(ctx context.Context, remote, branch string) error
	FetchAll(ctx context.Context, remote string) error
	ShowFile(ctx context.Context, ref, path string) ([]byte, error)
	RecentSubjects(ctx context.Context, limit int) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
	Commit(ctx context.Context, paths []string, message string) error
	CurrentBranch(ctx context.Context) (string, error)
}

// Locker acquires the version lock.
type Locker interface {
	Acquire(ctx context.Context) (*lock.Handle, error)
}

// Recorder receives one journal entry per assignment.
type Recorder interface {
	RecordAssignment(ctx context.Context, a *store.Assignment) error
}

// =============================================================================
// Engine
// =============================================================================

// Config configures the engine.
type Config struct {
	Remote           string
	ProductionBranch string
	StagingBranch    string

	// Commit records the rewritten files in a version-assignment commit.
	Commit bool

	// HistoryWindow is how many recent commit subjects are searched.
	// Default: 50.
	HistoryWindow int

	// MaxAttempts bounds collision retries.
	// Default: 3.
	MaxAttempts int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Remote:           "origin",
		ProductionBranch: "main",
		StagingBranch:    "develop",
		Commit:           true,
		HistoryWindow:    50,
		MaxAttempts:      3,
	}
}

// Request describes the finished work.
type Request struct {
	Kind     version.Kind
	Breaking bool
}

// Result is the outcome of a successful assignment.
type Result struct {
	ID       string
	Version  version.Version
	Target   version.Version
	Branch   string
	Class    version.Class
	Attempts int
	Reused   bool
	LockWait time.Duration
}

// Engine is the version assignment engine for one working copy.
type Engine struct {
	config   Config
	repo     Repository
	registry *versionfiles.Registry
	locker   Locker
	journal  Recorder
	logger   *slog.Logger
}

// New creates an Engine. journal may be nil.
func New(cfg Config, repo Repository, registry *versionfiles.Registry, locker Locker, journal Recorder, logger *slog.Logger) *Engine {
	d := DefaultConfig()
	if cfg.Remote == "" {
		cfg.Remote = d.Remote
	}
	if cfg.ProductionBranch == "" {
		cfg.ProductionBranch = d.ProductionBranch
	}
	if cfg.StagingBranch == "" {
		cfg.StagingBranch = d.StagingBranch
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = d.HistoryWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   cfg,
		repo:     repo,
		registry: registry,
		locker:   locker,
		journal:  journal,
		logger:   logger.With("component", "version_assign"),
	}
}

// TargetBranch returns the integration branch whose version is authoritative for kind.
func (e *Engine) TargetBranch(kind version.Kind) string {
	if kind == version.KindHotfix {
		return e.config.ProductionBranch
	}
	return e.config.StagingBranch
}

// Assign allocates and writes the next version for req.
func (e *Engine) Assign(ctx context.Context, req Request) (Result, error) {
	class := version.ClassFor(req.Kind, req.Breaking)
	entry := &store.Assignment{
		ID:           store.NewID(),
		TargetBranch: e.TargetBranch(req.Kind),
		Kind:         string(req.Kind),
		Class:        class.String(),
		CreatedAt:    time.Now(),
	}
	if branch, err := e.repo.CurrentBranch(ctx); err == nil {
		entry.Branch = branch
	}

	logger := e.logger.With("assignment_id", entry.ID, "kind", req.Kind, "class", class.String(), "target", entry.TargetBranch)

	res, err := e.assign(ctx, logger, req, class, entry)
	switch {
	case err == nil && res.Reused:
		entry.Outcome = store.OutcomeReused
	case err == nil:
		entry.Outcome = store.OutcomeAssigned
	case errors.Is(err, ErrCollisionBudget):
		entry.Outcome = store.OutcomeCollision
		entry.ErrorMessage = err.Error()
	default:
		entry.Outcome = store.OutcomeFailed
		entry.ErrorMessage = err.Error()
	}
	e.record(ctx, logger, entry)

	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Engine) assign(ctx context.Context, logger *slog.Logger, req Request, class version.Class, entry *store.Assignment) (Result, error) {
	handle, err := e.locker.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	entry.LockWait = handle.Waited
	defer func() {
		if err := handle.Release(); err != nil {
			logger.Warn("failed to release version lock", "error", err)
		}
	}()

	res := Result{ID: entry.ID, Branch: entry.TargetBranch, Class: class, LockWait: handle.Waited}

	if err := e.repo.Fetch(ctx, e.config.Remote, entry.TargetBranch); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	// Other branches' assignment commits and tags widen the collision search.
	if err := e.repo.FetchAll(ctx, e.config.Remote); err != nil {
		logger.Warn("fetching all refs failed, collision search limited to local history", "error", err)
	}

	ref := e.config.Remote + "/" + entry.TargetBranch
	target, _, err := e.registry.AtRef(ctx, e.repo, ref)
	if err != nil {
		return Result{}, err
	}
	res.Target = target
	entry.FromVersion = target.String()

	local, err := e.registry.Current()
	if err != nil {
		return Result{}, err
	}
	if target.Less(local) {
		logger.Info("working copy already ahead of target, reusing version", "version", local.String(), "target_version", target.String())
		res.Version = local
		res.Reused = true
		entry.Version = local.String()
		return res, nil
	}

	subjects, err := e.repo.RecentSubjects(ctx, e.config.HistoryWindow)
	if err != nil {
		return Result{}, err
	}
	tags, err := e.repo.Tags(ctx)
	if err != nil {
		return Result{}, err
	}
	history := collision.History{Target: target, Subjects: subjects, Tags: tags}

	candidate := target.Bump(class)
	for attempt := 1; ; attempt++ {
		entry.Attempts = attempt
		reason := collision.Check(candidate, history)
		if reason == collision.None {
			break
		}
		logger.Info("candidate version collides", "candidate", candidate.String(), "reason", string(reason), "attempt", attempt)
		if attempt >= e.config.MaxAttempts {
			entry.Version = candidate.String()
			return Result{}, &CollisionError{Candidate: candidate, Reason: reason, Attempts: attempt}
		}
		candidate = candidate.Bump(class)
	}
	res.Attempts = entry.Attempts
	entry.Version = candidate.String()

	if err := e.registry.Write(candidate); err != nil {
		return Result{}, err
	}
	if e.config.Commit {
		if err := e.repo.Commit(ctx, e.registry.Paths(), collision.CommitSubject(candidate)); err != nil {
			return Result{}, fmt.Errorf("version files set to %s but commit failed: %w", candidate, err)
		}
	}

	logger.Info("version assigned", "version", candidate.String(), "target_version", target.String(), "attempts", res.Attempts)
	res.Version = candidate
	return res, nil
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, entry *store.Assignment) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordAssignment(ctx, entry); err != nil {
		logger.Warn("failed to journal assignment", "error", err)
	}
}
