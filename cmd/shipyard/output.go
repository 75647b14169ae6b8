package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/assign"
	"github.com/artpar/shipyard/internal/shell/orchestrator"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func printSwitch(a *app, res orchestrator.SwitchResult) {
	switch {
	case res.AlreadyRunning:
		fmt.Fprintf(a.stdout, "%s already running\n", res.Environment)
	case res.Ready:
		fmt.Fprintf(a.stdout, "%s running\n", res.Environment)
	default:
		fmt.Fprintf(a.stdout, "%s started, containers not running yet\n", res.Environment)
	}
	if res.Rule != "" {
		fmt.Fprintf(a.stdout, "  resolved from branch (%s)\n", res.Rule)
	}
	if res.Worktree != nil {
		state := "attached"
		if res.Worktree.Detached {
			state = "detached"
		}
		fmt.Fprintf(a.stdout, "  worktree %s (%s, %s)\n", res.Worktree.Path, res.Worktree.Branch, state)
	}
	if res.RebuildAdvisable {
		fmt.Fprintln(a.stdout, warnStyle.Render("  dependency manifests changed since the last build"))
	}
}

func printStatus(a *app, report []orchestrator.EnvironmentStatus) {
	for i, st := range report {
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		state := stoppedStyle.Render("stopped")
		if st.Running {
			state = runningStyle.Render("running")
		}
		branch := st.Branch
		if branch == "" {
			branch = "any"
		}
		fmt.Fprintf(a.stdout, "%s %s  ports %d-%d  branch %s\n",
			headingStyle.Render(string(st.Environment)), state, st.BasePort, st.BasePort+environment.PortRangeSize-1, branch)

		w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  files\t%s\n", strings.Join(st.Files, ", "))
		if len(st.Missing) > 0 {
			fmt.Fprintf(w, "  missing\t%s\n", warnStyle.Render(strings.Join(st.Missing, ", ")))
		}
		if len(st.Services) > 0 {
			fmt.Fprintf(w, "  services\t%s\n", strings.Join(st.Services, ", "))
		}
		if len(st.OutOfRange) > 0 {
			fmt.Fprintf(w, "  outside port range\t%s\n", warnStyle.Render(strings.Join(st.OutOfRange, ", ")))
		}
		if st.DescribeError != "" {
			fmt.Fprintf(w, "  definition error\t%s\n", st.DescribeError)
		}
		for _, c := range st.Containers {
			var ports []string
			for _, p := range c.Ports {
				ports = append(ports, fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Protocol))
			}
			health := c.Health
			if health == "" {
				health = "-"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", c.Name, c.Status, health, strings.Join(ports, " "))
		}
		if st.Worktree != nil {
			fmt.Fprintf(w, "  worktree\t%s\n", describeWorktree(st.Worktree))
		}
		w.Flush()
	}
}

func describeWorktree(wt *worktree.Worktree) string {
	if !wt.Exists {
		return wt.Path + " (not created)"
	}
	parts := []string{wt.Path}
	if wt.Detached {
		parts = append(parts, "detached at "+shortSHA(wt.Head))
	} else {
		parts = append(parts, "on "+wt.Current)
	}
	if wt.Dirty {
		parts = append(parts, "local changes")
	}
	return strings.Join(parts, ", ")
}

func printWorktree(a *app, wt *worktree.Worktree) {
	fmt.Fprintf(a.stdout, "%s %s\n", headingStyle.Render(string(wt.Environment)), describeWorktree(wt))
	fmt.Fprintf(a.stdout, "  bound to %s\n", wt.Branch)
}

func printAssignment(a *app, res assign.Result) {
	if res.Reused {
		fmt.Fprintf(a.stdout, "%s already assigned on %s (target at %s)\n", res.Version.Tag(), res.Branch, res.Target)
		return
	}
	fmt.Fprintf(a.stdout, "assigned %s on %s (%s from %s, %d attempt(s))\n",
		res.Version.Tag(), res.Branch, res.Class, res.Target, res.Attempts)
}

func printHistory(a *app, assignments []store.Assignment, builds []store.Build) {
	fmt.Fprintln(a.stdout, headingStyle.Render("assignments"))
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, e := range assignments {
		result := e.Version
		if e.Outcome == store.OutcomeFailed || e.Outcome == store.OutcomeCollision {
			result = e.ErrorMessage
		}
		fmt.Fprintf(w, "  %s\t%s -> %s\t%s\tfrom %s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Branch, e.TargetBranch, e.Class, e.FromVersion, e.Outcome, result)
	}
	w.Flush()

	fmt.Fprintln(a.stdout, headingStyle.Render("builds"))
	w = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, b := range builds {
		mode := ""
		if b.Debug {
			mode = "debug"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			b.CreatedAt.Local().Format("2006-01-02 15:04"), b.Environment, b.Branch, shortSHA(b.Commit), b.Version, mode)
	}
	w.Flush()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
