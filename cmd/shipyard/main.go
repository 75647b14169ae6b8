// Command shipyard switches a project between its production, staging and
// local container environments and assigns release versions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/core/version"
	"github.com/artpar/shipyard/internal/shell/assign"
	"github.com/artpar/shipyard/internal/shell/lock"
	"github.com/artpar/shipyard/internal/shell/orchestrator"
	"github.com/artpar/shipyard/internal/shell/prompt"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
	"github.com/artpar/shipyard/internal/shell/worktree"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitConfigError  = 2
	ExitCoordination = 3
	ExitNotConfirmed = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr}
	defer a.Close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

// usageError marks bad command-line input.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode maps an error to its class.
func exitCode(err error) int {
	var (
		usage    *usageError
		fileSet  *orchestrator.FileSetError
		format   *version.FormatError
		rules    *environment.RulesError
		timeout  *lock.TimeoutError
		collided *assign.CollisionError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, prompt.ErrNotConfirmed), errors.Is(err, prompt.ErrNoTerminal):
		return ExitNotConfirmed
	case errors.As(err, &timeout), errors.Is(err, lock.ErrLockTimeout),
		errors.As(err, &collided), errors.Is(err, assign.ErrCollisionBudget):
		return ExitCoordination
	case errors.As(err, &usage), errors.As(err, &fileSet), errors.As(err, &format), errors.As(err, &rules),
		errors.Is(err, environment.ErrUnknownEnvironment),
		errors.Is(err, environment.ErrInvalidRules),
		errors.Is(err, version.ErrMalformedVersion),
		errors.Is(err, version.ErrUnknownKind),
		errors.Is(err, version.ErrUnknownFormat),
		errors.Is(err, versionfiles.ErrInconsistent),
		errors.Is(err, versionfiles.ErrNoFiles),
		errors.Is(err, worktree.ErrLocalEnvironment),
		errors.Is(err, errConfig):
		return ExitConfigError
	}
	return ExitRuntimeError
}

// errConfig wraps configuration loading failures.
var errConfig = errors.New("configuration error")

// =============================================================================
// Root Command
// =============================================================================

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "shipyard",
		Short:         "Switch container environments and assign release versions",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(a.flags)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "path to config file (default <project>/"+DefaultConfigFile+")")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(
		newEnvCommand(a),
		newWorktreeCommand(a),
		newVersionCommand(a),
		newHistoryCommand(a),
	)
	return root
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
