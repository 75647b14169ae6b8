package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artpar/shipyard/internal/core/compose"
	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/docker"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

// =============================================================================
// Status
// =============================================================================

// EnvironmentStatus is the report for one environment.
type EnvironmentStatus struct {
	Environment environment.ID
	BasePort    int
	Branch      string
	Running     bool
	Containers  []docker.ContainerInfo

	Files    []string
	Missing  []string
	Services []string
	// OutOfRange lists published ports outside the environment's port range.
	OutOfRange []string
	// DescribeError is set when the file set could not be parsed.
	DescribeError string

	Worktree *worktree.Worktree
}

// Status reports every environment in a fixed order. Runtime errors abort;
// definition and worktree problems are reported inline.
func (o *Orchestrator) Status(ctx context.Context) ([]EnvironmentStatus, error) {
	out := make([]EnvironmentStatus, 0, len(environment.All()))
	for _, id := range environment.All() {
		st, err := o.environmentStatus(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (o *Orchestrator) environmentStatus(ctx context.Context, id environment.ID) (EnvironmentStatus, error) {
	env, err := o.resolver.Lookup(id)
	if err != nil {
		return EnvironmentStatus{}, err
	}
	st := EnvironmentStatus{Environment: id, BasePort: env.BasePort, Branch: env.Branch}

	containers, err := o.Containers(ctx, id, true)
	if err != nil {
		return st, fmt.Errorf("listing %s containers: %w", id, err)
	}
	for _, c := range containers {
		if c.Running() {
			st.Running = true
			if detail, err := o.deps.Runtime.InspectContainer(ctx, c.ID); err == nil {
				c = *detail
			} else {
				o.logger.Debug("inspect failed, using list data", "container", c.Name, "error", err)
			}
		}
		st.Containers = append(st.Containers, c)
	}

	files, err := o.ResolveFileSet(env, false)
	var fsErr *FileSetError
	switch {
	case errors.As(err, &fsErr):
		st.Files = env.BaseFiles
		st.Missing = fsErr.Missing
	case err != nil:
		return st, err
	default:
		st.Files = files
		o.describe(env, files, &st)
	}

	if env.SupportsWorktree() && o.deps.Worktrees != nil {
		wt, err := o.deps.Worktrees.Status(ctx, env)
		if err != nil {
			o.logger.Warn("worktree status unavailable", "environment", id, "error", err)
		} else if wt.Exists {
			st.Worktree = wt
		}
	}
	return st, nil
}

// describe fills the declared services of the file set.
func (o *Orchestrator) describe(env environment.Environment, files []string, st *EnvironmentStatus) {
	contents := make([]compose.File, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(o.config.ProjectDir, name))
		if err != nil {
			st.DescribeError = err.Error()
			return
		}
		contents = append(contents, compose.File{Name: name, Content: data})
	}

	first, last := env.PortRange()
	desc, err := compose.Describe(environment.ComposeProject(o.config.Project, env.ID), contents, map[string]string{
		"SHIPYARD_ENV":       string(env.ID),
		"SHIPYARD_PORT_BASE": fmt.Sprintf("%d", first),
	})
	if err != nil {
		st.DescribeError = err.Error()
		return
	}
	st.Services = desc.ServiceNames()
	st.OutOfRange = compose.PortsOutside(desc, first, last)
}
