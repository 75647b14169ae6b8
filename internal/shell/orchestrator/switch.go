package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/buildcache"
	"github.com/artpar/shipyard/internal/shell/git"
	"github.com/artpar/shipyard/internal/shell/prompt"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

// =============================================================================
// Switch
// =============================================================================

// SwitchRequest selects the environment to bring up.
type SwitchRequest struct {
	// Environment is the target; empty resolves it from the current branch.
	Environment environment.ID
	Debug       bool
	Sync        bool
}

// SwitchResult reports the outcome of Switch.
type SwitchResult struct {
	Environment    environment.ID
	Rule           string // resolver rule when the environment came from the branch
	Files          []string
	Worktree       *worktree.Worktree
	Replaced       bool // a running deployment was stopped for a debug build
	AlreadyRunning bool
	Ready          bool

	Fingerprint      string
	RebuildAdvisable bool
}

// Switch brings an environment up, preparing its debug worktree first when
// needed. Replacing a running non-local deployment with a debug build asks
// for confirmation and is done as stop-then-start.
func (o *Orchestrator) Switch(ctx context.Context, req SwitchRequest) (SwitchResult, error) {
	var res SwitchResult

	id := req.Environment
	if id == "" {
		branch, err := o.deps.Source.CurrentBranch(ctx)
		switch {
		case errors.Is(err, git.ErrDetachedHead):
			id, res.Rule = environment.Local, "detached"
		case err != nil:
			return res, err
		default:
			r := o.resolver.Resolve(branch)
			id, res.Rule = r.ID, r.Rule
		}
	}
	res.Environment = id

	env, err := o.resolver.Lookup(id)
	if err != nil {
		return res, err
	}
	logger := o.logger.With("environment", id, "debug", req.Debug)

	files, err := o.ResolveFileSet(env, req.Debug)
	if err != nil {
		return res, err
	}
	res.Files = files

	wt, err := o.deps.Worktrees.EnsureReady(ctx, env, req.Debug, req.Sync)
	if err != nil {
		return res, err
	}
	res.Worktree = wt

	if req.Debug && !env.IsLocal() {
		running, err := o.IsRunning(ctx, id)
		if err != nil {
			return res, err
		}
		if running {
			ok, err := o.deps.Confirmer.Confirm(ctx,
				fmt.Sprintf("Replace the running %s deployment with a debug build?", id),
				[]string{"containers of " + environment.ComposeProject(o.config.Project, id) + " will be stopped"})
			if err != nil {
				return res, err
			}
			if !ok {
				return res, prompt.ErrNotConfirmed
			}
			if _, err := o.stopOne(ctx, env); err != nil {
				return res, err
			}
			res.Replaced = true
		}
	}

	sourceDir := o.config.ProjectDir
	if wt != nil {
		sourceDir = wt.Path
	}
	if o.deps.Cache != nil {
		fp, err := o.deps.Cache.ComputeIn(sourceDir, id)
		if err != nil {
			logger.Warn("fingerprint unavailable", "error", err)
		} else {
			res.Fingerprint = fp
			res.RebuildAdvisable = o.deps.Cache.HasChanged(id, fp)
			if res.RebuildAdvisable {
				logger.Info("dependency manifests changed since last build, rebuild advisable")
			}
		}
	}

	started, err := o.Start(ctx, id, StartOptions{Debug: req.Debug, Worktree: wt})
	res.AlreadyRunning = started.AlreadyRunning
	res.Ready = started.Ready
	if err != nil {
		return res, err
	}
	if !started.AlreadyRunning {
		o.recordBuild(ctx, env, req.Debug, wt, res.Fingerprint)
	}
	return res, nil
}

// recordBuild stores build metadata in the cache and the journal.
// Failures are logged; neither record gates anything.
func (o *Orchestrator) recordBuild(ctx context.Context, env environment.Environment, debug bool, wt *worktree.Worktree, fp string) {
	logger := o.logger.With("environment", env.ID)

	var branch, commit string
	if wt != nil {
		branch, commit = wt.Current, wt.Head
		if branch == "" {
			branch = wt.Branch
		}
	} else {
		if b, err := o.deps.Source.CurrentBranch(ctx); err == nil {
			branch = b
		}
		if c, err := o.deps.Source.RevParse(ctx, "HEAD"); err == nil {
			commit = c
		}
	}

	var ver string
	if o.deps.Versions != nil {
		reg := o.deps.Versions
		if wt != nil {
			reg = reg.At(wt.Path)
		}
		if v, err := reg.Current(); err == nil {
			ver = v.String()
		} else {
			logger.Debug("version unavailable for build record", "error", err)
		}
	}

	meta := buildcache.Metadata{
		Environment: env.ID,
		Branch:      branch,
		Version:     ver,
		Commit:      commit,
		Fingerprint: fp,
	}
	if o.deps.Cache != nil && fp != "" {
		recorded, err := o.deps.Cache.RecordBuild(meta)
		if err != nil {
			logger.Warn("failed to record build metadata", "error", err)
		} else {
			meta = recorded
		}
	}

	if o.deps.Journal != nil {
		err := o.deps.Journal.RecordBuild(ctx, &store.Build{
			ID:          store.NewID(),
			Environment: string(env.ID),
			Branch:      meta.Branch,
			Commit:      meta.Commit,
			Version:     meta.Version,
			Fingerprint: meta.Fingerprint,
			Debug:       debug,
			CreatedAt:   meta.Timestamp,
		})
		if err != nil {
			logger.Warn("failed to journal build", "error", err)
		}
	}
}
