// Package orchestrator drives each environment through its container
// lifecycle: resolve the definition file set, start idempotently, stop with
// an orphan sweep, and switch environments with confirmation before any
// destructive step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/buildcache"
	"github.com/artpar/shipyard/internal/shell/docker"
	"github.com/artpar/shipyard/internal/shell/prompt"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
	"github.com/artpar/shipyard/internal/shell/waiter"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

// AllEnvironments is the Stop target that means every environment.
const AllEnvironments = "all"

// =============================================================================
// Collaborators
// =============================================================================

// Runtime is the container runtime query and cleanup surface.
type Runtime interface {
	ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error)
	InspectContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error)
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts docker.RemoveOptions) error
}

// Composer builds, starts and tears down a compose project.
type Composer interface {
	Up(ctx context.Context, req docker.ComposeRequest) error
	Down(ctx context.Context, req docker.ComposeRequest) error
}

// Worktrees supplies debug-mode source trees.
type Worktrees interface {
	EnsureReady(ctx context.Context, env environment.Environment, debug, sync bool) (*worktree.Worktree, error)
	Status(ctx context.Context, env environment.Environment) (*worktree.Worktree, error)
}

// Fingerprints is the advisory dependency fingerprint cache.
type Fingerprints interface {
	ComputeIn(dir string, id environment.ID) (string, error)
	HasChanged(id environment.ID, current string) bool
	RecordBuild(m buildcache.Metadata) (buildcache.Metadata, error)
}

// Source reports what the primary workspace has checked out.
type Source interface {
	CurrentBranch(ctx context.Context) (string, error)
	RevParse(ctx context.Context, ref string) (string, error)
}

// BuildJournal receives recorded builds.
type BuildJournal interface {
	RecordBuild(ctx context.Context, b *store.Build) error
}

// Deps are the orchestrator's collaborators. Cache, Versions and Journal may be nil.
type Deps struct {
	Runtime   Runtime
	Composer  Composer
	Worktrees Worktrees
	Confirmer prompt.Confirmer
	Source    Source
	Cache     Fingerprints
	Versions  *versionfiles.Registry
	Journal   BuildJournal
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config configures the orchestrator.
type Config struct {
	// Project is the root of every compose project and container name.
	Project string

	// ProjectDir holds the container-definition files.
	ProjectDir string

	// ReadyTimeout bounds the post-start poll.
	// Default: 30 seconds.
	ReadyTimeout time.Duration

	// ReadyInterval is the time between post-start checks.
	// Default: 1 second.
	ReadyInterval time.Duration

	// StopTimeout is the grace period given each orphan before it is killed.
	// Default: 10 seconds.
	StopTimeout time.Duration
}

// Orchestrator implements the environment lifecycle.
type Orchestrator struct {
	config   Config
	resolver *environment.Resolver
	deps     Deps
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, resolver *environment.Resolver, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if deps.Confirmer == nil {
		deps.Confirmer = prompt.NewTTY()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:   cfg,
		resolver: resolver,
		deps:     deps,
		logger:   logger.With("component", "orchestrator", "project", cfg.Project),
	}
}

func (o *Orchestrator) composeRequest(env environment.Environment, files []string) docker.ComposeRequest {
	return docker.ComposeRequest{
		Project: environment.ComposeProject(o.config.Project, env.ID),
		Dir:     o.config.ProjectDir,
		Files:   files,
	}
}

// =============================================================================
// File Sets
// =============================================================================

// ResolveFileSet returns the definition files for env: its base files, plus
// the debug overlay when debug is set and env is not local. Every file must
// exist under the project directory.
func (o *Orchestrator) ResolveFileSet(env environment.Environment, debug bool) ([]string, error) {
	files := append([]string(nil), env.BaseFiles...)
	if debug && !env.IsLocal() && env.DebugOverlay != "" {
		files = append(files, env.DebugOverlay)
	}

	expected := make([]string, len(files))
	var missing []string
	for i, f := range files {
		path := filepath.Join(o.config.ProjectDir, f)
		expected[i] = path
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, path)
		} else if err != nil {
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
	}
	if len(missing) > 0 {
		return nil, &FileSetError{Environment: env.ID, Expected: expected, Missing: missing}
	}
	return files, nil
}

// =============================================================================
// Running State
// =============================================================================

// Containers lists the environment's containers, stopped ones included when all is set.
func (o *Orchestrator) Containers(ctx context.Context, id environment.ID, all bool) ([]docker.ContainerInfo, error) {
	return o.deps.Runtime.ListContainers(ctx, docker.ListOptions{
		All:        all,
		NamePrefix: environment.ContainerPrefix(o.config.Project, id),
	})
}

// IsRunning reports whether any container of the environment is running.
func (o *Orchestrator) IsRunning(ctx context.Context, id environment.ID) (bool, error) {
	containers, err := o.Containers(ctx, id, false)
	if err != nil {
		return false, err
	}
	for _, c := range containers {
		if c.Running() {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// Start
// =============================================================================

// StartOptions selects how an environment is started.
type StartOptions struct {
	Debug    bool
	Worktree *worktree.Worktree // source tree mounted in debug mode
}

// StartResult reports what Start did.
type StartResult struct {
	Environment    environment.ID
	Files          []string
	AlreadyRunning bool
	Ready          bool
}

// Start builds and starts the environment unless it is already running.
// Build failures carry the exact compose command and are not retried.
func (o *Orchestrator) Start(ctx context.Context, id environment.ID, opts StartOptions) (StartResult, error) {
	env, err := o.resolver.Lookup(id)
	if err != nil {
		return StartResult{}, err
	}
	res := StartResult{Environment: id}
	logger := o.logger.With("environment", id, "debug", opts.Debug)

	files, err := o.ResolveFileSet(env, opts.Debug)
	if err != nil {
		return res, err
	}
	res.Files = files

	running, err := o.IsRunning(ctx, id)
	if err != nil {
		return res, err
	}
	if running {
		logger.Info("already running, no action taken")
		res.AlreadyRunning = true
		res.Ready = true
		return res, nil
	}

	req := o.composeRequest(env, files)
	req.Env = o.exports(env, opts)
	logger.Info("starting environment", "compose_project", req.Project, "files", files)
	if err := o.deps.Composer.Up(ctx, req); err != nil {
		return res, fmt.Errorf("starting %s: %w", id, err)
	}

	res.Ready = o.awaitRunning(ctx, logger, id)
	return res, nil
}

// exports returns the configuration visible to the compose files.
func (o *Orchestrator) exports(env environment.Environment, opts StartOptions) []string {
	vars := []string{
		"SHIPYARD_ENV=" + string(env.ID),
		fmt.Sprintf("SHIPYARD_PORT_BASE=%d", env.BasePort),
		"COMPOSE_PROJECT_NAME=" + environment.ComposeProject(o.config.Project, env.ID),
	}
	if opts.Debug && opts.Worktree != nil {
		vars = append(vars, "SHIPYARD_SOURCE_DIR="+opts.Worktree.Path)
	}
	return vars
}

// awaitRunning polls briefly for a running container. It only reports; a
// slow start is logged, never failed.
func (o *Orchestrator) awaitRunning(ctx context.Context, logger *slog.Logger, id environment.ID) bool {
	err := waiter.Until(ctx, waiter.Config{Interval: o.config.ReadyInterval, Timeout: o.config.ReadyTimeout}, nil,
		func(ctx context.Context) (bool, error) {
			return o.IsRunning(ctx, id)
		})
	if err != nil {
		logger.Warn("containers not running yet", "waited", o.config.ReadyTimeout, "error", err)
		return false
	}
	logger.Info("environment running")
	return true
}

// =============================================================================
// Stop
// =============================================================================

// StopResult reports what Stop did.
type StopResult struct {
	Stopped []environment.ID
	Swept   []string
}

// Stop stops one environment by name, or every environment for "all".
// Stopping everything asks for confirmation first. Stopping an environment
// that is not running succeeds without touching the runtime.
func (o *Orchestrator) Stop(ctx context.Context, target string) (StopResult, error) {
	if target == AllEnvironments {
		return o.stopAll(ctx)
	}

	id, err := environment.Parse(target)
	if err != nil {
		return StopResult{}, err
	}
	env, err := o.resolver.Lookup(id)
	if err != nil {
		return StopResult{}, err
	}

	running, err := o.IsRunning(ctx, id)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		o.logger.Info("not running, nothing to stop", "environment", id)
		return StopResult{}, nil
	}

	var res StopResult
	swept, err := o.stopOne(ctx, env)
	res.Swept = swept
	if err != nil {
		return res, err
	}
	res.Stopped = []environment.ID{id}
	return res, nil
}

// stopOne brings the environment's compose project down, then sweeps what is left under its prefix.
func (o *Orchestrator) stopOne(ctx context.Context, env environment.Environment) ([]string, error) {
	o.logger.Info("stopping environment", "environment", env.ID)
	downErr := o.deps.Composer.Down(ctx, o.composeRequest(env, nil))

	swept, sweepErr := o.sweep(ctx, environment.ContainerPrefix(o.config.Project, env.ID))
	if downErr != nil {
		return swept, fmt.Errorf("stopping %s: %w", env.ID, downErr)
	}
	return swept, sweepErr
}

func (o *Orchestrator) stopAll(ctx context.Context) (StopResult, error) {
	var details []string
	for _, id := range environment.All() {
		containers, err := o.deps.Runtime.ListContainers(ctx, docker.ListOptions{
			All:        true,
			NamePrefix: environment.ContainerPrefix(o.config.Project, id),
		})
		if err != nil {
			return StopResult{}, err
		}
		for _, c := range containers {
			details = append(details, fmt.Sprintf("%s (%s)", c.Name, c.Status))
		}
	}
	if len(details) == 0 {
		details = append(details, "no containers found")
	}
	ok, err := o.deps.Confirmer.Confirm(ctx, fmt.Sprintf("Stop every %s environment?", o.config.Project), details)
	if err != nil {
		return StopResult{}, err
	}
	if !ok {
		return StopResult{}, prompt.ErrNotConfirmed
	}

	var (
		res  StopResult
		serr StopError
	)
	for _, id := range environment.All() {
		env, err := o.resolver.Lookup(id)
		if err != nil {
			return res, err
		}
		running, err := o.IsRunning(ctx, id)
		if err != nil {
			serr.Failed = append(serr.Failed, string(id))
			serr.Errs = append(serr.Errs, err)
			continue
		}
		if !running {
			continue
		}
		if err := o.deps.Composer.Down(ctx, o.composeRequest(env, nil)); err != nil {
			o.logger.Warn("failed to stop environment, continuing", "environment", id, "error", err)
			serr.Failed = append(serr.Failed, string(id))
			serr.Errs = append(serr.Errs, err)
			continue
		}
		res.Stopped = append(res.Stopped, id)
	}

	// Sweep per environment; a bare project prefix would also match sibling
	// projects such as "shipyard-docs".
	for _, id := range environment.All() {
		swept, err := o.sweep(ctx, environment.ContainerPrefix(o.config.Project, id))
		res.Swept = append(res.Swept, swept...)
		var sweepErr *StopError
		if errors.As(err, &sweepErr) {
			serr.Failed = append(serr.Failed, sweepErr.Failed...)
			serr.Errs = append(serr.Errs, sweepErr.Errs...)
		} else if err != nil {
			serr.Failed = append(serr.Failed, "orphan sweep "+string(id))
			serr.Errs = append(serr.Errs, err)
		}
	}

	if len(serr.Failed) > 0 {
		return res, &serr
	}
	return res, nil
}

// sweep removes every container left under prefix, continuing past failures.
func (o *Orchestrator) sweep(ctx context.Context, prefix string) ([]string, error) {
	leftovers, err := o.deps.Runtime.ListContainers(ctx, docker.ListOptions{All: true, NamePrefix: prefix})
	if err != nil {
		return nil, err
	}

	var (
		swept []string
		serr  StopError
	)
	timeout := o.config.StopTimeout
	for _, c := range leftovers {
		logger := o.logger.With("container", c.Name)
		if c.Running() {
			if err := o.deps.Runtime.StopContainer(ctx, c.ID, &timeout); err != nil && !errors.Is(err, docker.ErrContainerNotRunning) && !errors.Is(err, docker.ErrContainerNotFound) {
				logger.Warn("failed to stop orphaned container", "error", err)
				serr.Failed = append(serr.Failed, c.Name)
				serr.Errs = append(serr.Errs, err)
				continue
			}
		}
		if err := o.deps.Runtime.RemoveContainer(ctx, c.ID, docker.RemoveOptions{Force: true}); err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
			logger.Warn("failed to remove orphaned container", "error", err)
			serr.Failed = append(serr.Failed, c.Name)
			serr.Errs = append(serr.Errs, err)
			continue
		}
		logger.Info("removed orphaned container")
		swept = append(swept, c.Name)
	}

	if len(serr.Failed) > 0 {
		return swept, &serr
	}
	return swept, nil
}
