// Package worktree manages the secondary checkouts used to run non-local
// environments in debug mode without touching the primary workspace.
//
// A worktree is created on first use and then left alone. It is refreshed
// only by an explicit Sync, since operators leave diagnostic edits in it
// between sessions.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/git"
)

var (
	// ErrNoWorktree is returned when an operation needs a worktree that was never created.
	ErrNoWorktree = errors.New("worktree does not exist")

	// ErrNotWorktree is returned when the worktree path holds something git does not know about.
	ErrNotWorktree = errors.New("path exists but is not a registered worktree")

	// ErrDiverged is returned when a detached worktree holds commits the
	// remote branch lacks.
	ErrDiverged = errors.New("worktree has diverged from the remote branch")

	// ErrLocalEnvironment is returned when a worktree is requested for local.
	ErrLocalEnvironment = errors.New("local environment runs from the primary workspace")
)

// Worktree describes the checkout of one environment.
type Worktree struct {
	Environment environment.ID
	Path        string
	Branch      string // bound integration branch
	Current     string // branch checked out now, empty when detached
	Head        string
	Detached    bool
	Dirty       bool
	Exists      bool
}

// Config configures the manager.
type Config struct {
	// Root holds one subdirectory per environment.
	Root string

	// Remote is the remote whose branches worktrees track.
	// Default: origin.
	Remote string
}

// Manager creates, inspects and refreshes worktrees.
type Manager struct {
	config Config
	repo   *git.Repo
	logger *slog.Logger
}

// New creates a Manager for the primary repository repo.
func New(cfg Config, repo *git.Repo, logger *slog.Logger) *Manager {
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config: cfg,
		repo:   repo,
		logger: logger.With("component", "worktree"),
	}
}

// Path returns where the worktree of id lives.
func (m *Manager) Path(id environment.ID) string {
	return filepath.Join(m.config.Root, string(id))
}

func (m *Manager) remoteRef(branch string) string {
	return m.config.Remote + "/" + branch
}

// EnsureReady returns the worktree to run env from, creating it if needed.
// It returns nil when no worktree is involved: debug is off or env is local.
// An existing worktree is only refreshed when sync is set.
func (m *Manager) EnsureReady(ctx context.Context, env environment.Environment, debug, sync bool) (*Worktree, error) {
	if !debug || !env.SupportsWorktree() {
		return nil, nil
	}

	path := m.Path(env.ID)
	logger := m.logger.With("environment", env.ID, "path", path, "branch", env.Branch)

	exists, err := dirExists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		if sync {
			return m.Sync(ctx, env)
		}
		logger.Info("using existing worktree as-is")
		return m.Status(ctx, env)
	}

	if err := m.create(ctx, logger, env, path); err != nil {
		return nil, err
	}
	return m.Status(ctx, env)
}

func (m *Manager) create(ctx context.Context, logger *slog.Logger, env environment.Environment, path string) error {
	if err := m.repo.Fetch(ctx, m.config.Remote, env.Branch); err != nil {
		return fmt.Errorf("fetching %s before creating worktree: %w", env.Branch, err)
	}
	if err := os.MkdirAll(m.config.Root, 0o755); err != nil {
		return fmt.Errorf("creating worktree root: %w", err)
	}

	if at, ok, err := m.repo.CheckedOutAt(ctx, env.Branch); err != nil {
		return err
	} else if ok {
		logger.Info("branch checked out elsewhere, creating detached worktree", "checked_out_at", at)
		return m.repo.AddDetachedWorktree(ctx, path, m.remoteRef(env.Branch))
	}

	local, err := m.repo.BranchExists(ctx, env.Branch)
	if err != nil {
		return err
	}
	if local {
		err = m.repo.AddWorktree(ctx, path, env.Branch)
	} else {
		err = m.repo.AddTrackingWorktree(ctx, path, env.Branch, m.remoteRef(env.Branch))
	}
	if errors.Is(err, git.ErrBranchCheckedOut) {
		// Lost a race with another checkout of the branch.
		logger.Info("branch checked out elsewhere, creating detached worktree")
		return m.repo.AddDetachedWorktree(ctx, path, m.remoteRef(env.Branch))
	}
	if err != nil {
		return err
	}
	logger.Info("worktree created")
	return nil
}

// Sync fetches the bound branch, attaches a detached worktree to it and
// fast-forwards. When the branch is checked out elsewhere the worktree stays
// detached and moves to the remote tip instead. Local modifications that would
// be overwritten fail the sync with git.ErrWouldOverwrite and are left for the
// operator.
func (m *Manager) Sync(ctx context.Context, env environment.Environment) (*Worktree, error) {
	if !env.SupportsWorktree() {
		return nil, ErrLocalEnvironment
	}
	path := m.Path(env.ID)
	exists, err := dirExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoWorktree, path)
	}

	logger := m.logger.With("environment", env.ID, "path", path, "branch", env.Branch)
	wt := m.repo.At(path)

	if err := wt.Fetch(ctx, m.config.Remote, env.Branch); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", env.Branch, err)
	}

	current, err := wt.CurrentBranch(ctx)
	switch {
	case errors.Is(err, git.ErrDetachedHead):
		logger.Info("attaching detached worktree to branch")
		err := wt.Checkout(ctx, env.Branch)
		if errors.Is(err, git.ErrBranchCheckedOut) {
			logger.Info("branch checked out elsewhere, deferring attach and refreshing detached")
			return m.refreshDetached(ctx, wt, env)
		}
		if err != nil {
			return nil, fmt.Errorf("attaching worktree to %s: %w", env.Branch, err)
		}
	case err != nil:
		return nil, err
	case current != env.Branch:
		logger.Info("worktree on another branch, switching", "current", current)
		err := wt.Checkout(ctx, env.Branch)
		if errors.Is(err, git.ErrBranchCheckedOut) {
			logger.Info("branch checked out elsewhere, deferring attach and refreshing detached")
			return m.refreshDetached(ctx, wt, env)
		}
		if err != nil {
			return nil, fmt.Errorf("switching worktree to %s: %w", env.Branch, err)
		}
	}

	if err := wt.MergeFastForward(ctx, m.remoteRef(env.Branch)); err != nil {
		return nil, fmt.Errorf("fast-forwarding %s: %w", env.Branch, err)
	}
	logger.Info("worktree synced")
	return m.Status(ctx, env)
}

// refreshDetached moves a worktree that cannot take its branch to the
// remote tip, provided that is a fast-forward of HEAD.
func (m *Manager) refreshDetached(ctx context.Context, wt *git.Repo, env environment.Environment) (*Worktree, error) {
	remote := m.remoteRef(env.Branch)
	ok, err := wt.IsAncestor(ctx, "HEAD", remote)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: HEAD is not an ancestor of %s", ErrDiverged, remote)
	}
	if err := wt.CheckoutDetached(ctx, remote); err != nil {
		return nil, fmt.Errorf("refreshing detached worktree to %s: %w", remote, err)
	}
	m.logger.Info("detached worktree synced", "environment", env.ID, "ref", remote)
	return m.Status(ctx, env)
}

// Status reports the state of env's worktree. A missing worktree is not an
// error: the result has Exists false.
func (m *Manager) Status(ctx context.Context, env environment.Environment) (*Worktree, error) {
	path := m.Path(env.ID)
	w := &Worktree{Environment: env.ID, Path: path, Branch: env.Branch}
	if !env.SupportsWorktree() {
		return w, nil
	}

	exists, err := dirExists(path)
	if err != nil || !exists {
		return w, err
	}

	entry, ok, err := m.repo.WorktreeFor(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWorktree, path)
	}
	w.Exists = true
	w.Head = entry.Head
	w.Detached = entry.Detached
	w.Current = entry.Branch

	dirty, err := m.repo.At(path).IsDirty(ctx)
	if err != nil {
		return nil, err
	}
	w.Dirty = dirty
	return w, nil
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%w: %s is a file", ErrNotWorktree, path)
	}
	return true, nil
}
