package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/core/version"
	"github.com/artpar/shipyard/internal/shell/assign"
	"github.com/artpar/shipyard/internal/shell/orchestrator"
	"github.com/artpar/shipyard/internal/shell/store"
)

// =============================================================================
// env
// =============================================================================

func newEnvCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Start, stop and inspect environments",
	}
	cmd.AddCommand(newEnvSwitchCommand(a), newEnvStopCommand(a), newEnvStatusCommand(a))
	return cmd
}

func newEnvSwitchCommand(a *app) *cobra.Command {
	var debug, sync, yes bool
	cmd := &cobra.Command{
		Use:   "switch [production|staging|local]",
		Short: "Bring an environment up, defaulting to the one the current branch maps to",
		Args:  maximumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req orchestrator.SwitchRequest
			if len(args) == 1 {
				id, err := environment.Parse(args[0])
				if err != nil {
					return err
				}
				req.Environment = id
			}
			req.Debug, req.Sync = debug, sync

			orch, err := a.orchestrator(cmd.Context(), yes)
			if err != nil {
				return err
			}
			res, err := orch.Switch(cmd.Context(), req)
			if err != nil {
				return err
			}
			printSwitch(a, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "mount a worktree of the environment's branch for live inspection")
	cmd.Flags().BoolVar(&sync, "sync", false, "fast-forward the debug worktree before starting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before replacing a running deployment")
	return cmd
}

func newEnvStopCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "stop <production|staging|local|all>",
		Short: "Stop an environment, or every environment",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd.Context(), yes)
			if err != nil {
				return err
			}
			res, err := orch.Stop(cmd.Context(), strings.ToLower(args[0]))
			for _, id := range res.Stopped {
				fmt.Fprintf(a.stdout, "stopped %s\n", id)
			}
			for _, name := range res.Swept {
				fmt.Fprintf(a.stdout, "removed orphan %s\n", name)
			}
			if err == nil && len(res.Stopped) == 0 && len(res.Swept) == 0 {
				fmt.Fprintln(a.stdout, "nothing to stop")
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before stopping all environments")
	return cmd
}

func newEnvStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report every environment",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, err := a.orchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			report, err := orch.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(a, report)
			return nil
		},
	}
}

// =============================================================================
// worktree
// =============================================================================

func newWorktreeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Manage debug worktrees",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "sync <production|staging>",
			Short: "Attach and fast-forward an environment's worktree",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := a.lookup(args[0])
				if err != nil {
					return err
				}
				wt, err := a.worktrees().Sync(cmd.Context(), env)
				if err != nil {
					return err
				}
				printWorktree(a, wt)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status <production|staging>",
			Short: "Report an environment's worktree",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := a.lookup(args[0])
				if err != nil {
					return err
				}
				wt, err := a.worktrees().Status(cmd.Context(), env)
				if err != nil {
					return err
				}
				printWorktree(a, wt)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) lookup(name string) (environment.Environment, error) {
	id, err := environment.Parse(name)
	if err != nil {
		return environment.Environment{}, err
	}
	return a.resolver.Lookup(id)
}

// =============================================================================
// version
// =============================================================================

func newVersionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Assign and inspect the project version",
	}

	var class string
	var breaking bool
	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign the next version for finished work",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := version.ParseKind(class)
			if err != nil {
				return &usageError{err: err}
			}
			res, err := a.engine().Assign(cmd.Context(), assign.Request{Kind: kind, Breaking: breaking})
			if err != nil {
				return err
			}
			printAssignment(a, res)
			return nil
		},
	}
	assignCmd.Flags().StringVar(&class, "class", "", "kind of finished work: feature or hotfix")
	assignCmd.Flags().BoolVar(&breaking, "breaking", false, "the work breaks compatibility (major increment)")
	_ = assignCmd.MarkFlagRequired("class")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the version every version file carries",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, r := range a.registry.ReadAll() {
				if r.Err != nil {
					fmt.Fprintf(a.stdout, "%-32s %s\n", r.File.Path, r.Err)
					continue
				}
				fmt.Fprintf(a.stdout, "%-32s %s\n", r.File.Path, r.Version)
			}
			v, err := a.registry.Current()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "version %s\n", v)
			return nil
		},
	}

	cmd.AddCommand(assignCmd, showCmd)
	return cmd
}

// =============================================================================
// history
// =============================================================================

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent version assignments and builds",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.requireJournal()
			if err != nil {
				return err
			}
			opts := store.ListOptions{Limit: limit}
			assignments, err := j.ListAssignments(cmd.Context(), opts)
			if err != nil {
				return err
			}
			builds, err := j.ListBuilds(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printHistory(a, assignments, builds)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries to show of each kind")
	return cmd
}
