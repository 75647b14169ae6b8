package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/assign"
	"github.com/artpar/shipyard/internal/shell/buildcache"
	"github.com/artpar/shipyard/internal/shell/docker"
	"github.com/artpar/shipyard/internal/shell/execx"
	"github.com/artpar/shipyard/internal/shell/git"
	"github.com/artpar/shipyard/internal/shell/lock"
	"github.com/artpar/shipyard/internal/shell/orchestrator"
	"github.com/artpar/shipyard/internal/shell/prompt"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// app holds the components one invocation needs. Components that talk to
// the container runtime or the journal are opened on first use.
type app struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags

	cfg      *Config
	logger   *slog.Logger
	resolver *environment.Resolver
	runner   execx.Runner
	repo     *git.Repo
	registry *versionfiles.Registry

	journal       store.Journal
	journalOpened bool
	runtime       *docker.DockerClient
	closers       []func() error
}

func (a *app) load(flags globalFlags) error {
	cfg, err := LoadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	a.cfg = cfg
	a.logger = SetupLogger(cfg, a.stderr)

	a.resolver, err = environment.NewResolver(cfg.Rules())
	if err != nil {
		return err
	}
	a.runner = execx.NewOSRunner(a.logger)
	a.repo = git.New(a.runner, cfg.Project.Dir)
	a.registry, err = versionfiles.New(cfg.Project.Dir, cfg.Version.Files, a.logger)
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded", "project", cfg.Project.Name, "dir", cfg.Project.Dir)
	return nil
}

// Close releases whatever was opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// openJournal returns the history journal, or nil when it is disabled or
// cannot be opened. Callers that only append treat it as optional.
func (a *app) openJournal() store.Journal {
	if a.journalOpened {
		return a.journal
	}
	a.journalOpened = true
	if a.cfg.Metadata.Journal == "" {
		return nil
	}
	s, err := store.NewSQLiteStore(a.cfg.Metadata.Journal)
	if err != nil {
		a.logger.Warn("journal unavailable", "dsn", a.cfg.Metadata.Journal, "error", err)
		return nil
	}
	a.journal = s
	a.closers = append(a.closers, s.Close)
	return s
}

func (a *app) openRuntime(ctx context.Context) (*docker.DockerClient, error) {
	if a.runtime != nil {
		return a.runtime, nil
	}
	c, err := docker.NewDockerClient(ctx, a.cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	a.runtime = c
	a.closers = append(a.closers, c.Close)
	return c, nil
}

func (a *app) worktrees() *worktree.Manager {
	return worktree.New(worktree.Config{Root: a.cfg.Worktree.Root, Remote: a.cfg.Git.Remote}, a.repo, a.logger)
}

func (a *app) confirmer(yes bool) prompt.Confirmer {
	if yes {
		return prompt.AutoConfirm{}
	}
	return prompt.NewTTY()
}

func (a *app) orchestrator(ctx context.Context, yes bool) (*orchestrator.Orchestrator, error) {
	rt, err := a.openRuntime(ctx)
	if err != nil {
		return nil, err
	}
	deps := orchestrator.Deps{
		Runtime:   rt,
		Composer:  docker.NewCompose(a.runner, a.stderr, a.logger),
		Worktrees: a.worktrees(),
		Confirmer: a.confirmer(yes),
		Source:    a.repo,
		Cache:     buildcache.New(a.cfg.Project.Dir, a.cfg.Metadata.Dir, a.logger),
		Versions:  a.registry,
	}
	if j := a.openJournal(); j != nil {
		deps.Journal = j
	}
	return orchestrator.New(orchestrator.Config{
		Project:    a.cfg.Project.Name,
		ProjectDir: a.cfg.Project.Dir,
	}, a.resolver, deps, a.logger), nil
}

func (a *app) engine() *assign.Engine {
	locker := lock.New(lock.Config{
		Base:         a.cfg.Lock.Base,
		StaleAfter:   a.cfg.Lock.StaleAfter,
		Timeout:      a.cfg.Lock.Timeout,
		PollInterval: a.cfg.Lock.PollInterval,
	}, a.logger)

	var journal assign.Recorder
	if j := a.openJournal(); j != nil {
		journal = j
	}
	return assign.New(assign.Config{
		Remote:           a.cfg.Git.Remote,
		ProductionBranch: a.cfg.Git.ProductionBranch,
		StagingBranch:    a.cfg.Git.StagingBranch,
		Commit:           a.cfg.Version.Commit,
		HistoryWindow:    a.cfg.Version.HistoryWindow,
		MaxAttempts:      a.cfg.Version.MaxAttempts,
	}, a.repo, a.registry, locker, journal, a.logger)
}

// requireJournal is openJournal for commands that only read it.
func (a *app) requireJournal() (store.Journal, error) {
	j := a.openJournal()
	if j == nil {
		if a.cfg.Metadata.Journal == "" {
			return nil, fmt.Errorf("%w: journal disabled (metadata.journal is none)", errConfig)
		}
		return nil, errors.New("journal could not be opened, see log")
	}
	return j, nil
}
