// Package execx runs external tools and reports failures with the exact command line.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrCommandFailed is wrapped by every CommandError.
var ErrCommandFailed = errors.New("command failed")

// CommandError reports a failed external command.
// Command is the full command line so it can be re-run by hand.
type CommandError struct {
	Command  string
	Dir      string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed (exit %d): %s", e.ExitCode, e.Command)
	if e.Dir != "" {
		msg += " [in " + e.Dir + "]"
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLines(out, 5)
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

// =============================================================================
// Runner
// =============================================================================

// Command describes one invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env   []string
	Stdin io.Reader
	// Stream, when set, receives stdout and stderr as they are produced.
	Stream io.Writer
}

// String returns the command line with arguments quoted where needed.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Result is the captured output of a successful command.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSRunner runs commands as child processes.
type OSRunner struct {
	logger *slog.Logger
}

// NewOSRunner creates a runner that logs each command at debug level.
func NewOSRunner(logger *slog.Logger) *OSRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSRunner{logger: logger}
}

// Run executes cmd and returns its output, or a *CommandError on non-zero exit.
func (r *OSRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	r.logger.Debug("exec", "command", cmd.String(), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	if cmd.Stream != nil {
		c.Stdout = io.MultiWriter(&stdout, cmd.Stream)
		c.Stderr = io.MultiWriter(&stderr, cmd.Stream)
	} else {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	code := 1
	var ee *exec.ExitError
	switch {
	case errors.As(err, &ee):
		code = ee.ExitCode()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		code = 124
	}
	output := res.Stderr
	if strings.TrimSpace(output) == "" {
		output = res.Stdout
	}
	return res, &CommandError{
		Command:  cmd.String(),
		Dir:      cmd.Dir,
		ExitCode: code,
		Output:   output,
		Err:      err,
	}
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"$`\\*?[]{}()<>|&;") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
