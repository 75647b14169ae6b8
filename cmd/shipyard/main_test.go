package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/assign"
	"github.com/artpar/shipyard/internal/shell/lock"
	"github.com/artpar/shipyard/internal/shell/orchestrator"
	"github.com/artpar/shipyard/internal/shell/prompt"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
)

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"runtime", errors.New("docker compose up: exit status 1"), ExitRuntimeError},
		{"missing definition", &orchestrator.FileSetError{Environment: environment.Staging, Missing: []string{"x"}}, ExitConfigError},
		{"unknown environment", fmt.Errorf("wrap: %w", environment.ErrUnknownEnvironment), ExitConfigError},
		{"inconsistent files", &versionfiles.InconsistentError{}, ExitConfigError},
		{"usage", &usageError{err: errors.New("accepts 1 arg(s)")}, ExitConfigError},
		{"lock timeout", &lock.TimeoutError{Base: "/tmp/x", HolderPID: 42}, ExitCoordination},
		{"collision budget", &assign.CollisionError{Attempts: 3}, ExitCoordination},
		{"not confirmed", prompt.ErrNotConfirmed, ExitNotConfirmed},
		{"no terminal", prompt.ErrNoTerminal, ExitNotConfirmed},
		{"stop incomplete", &orchestrator.StopError{Failed: []string{"staging"}}, ExitRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func writeProject(t *testing.T, versions map[string]string) string {
	t.Helper()
	dir := clearEnv(t)
	t.Setenv("SHIPYARD_METADATA_JOURNAL", "none")
	for path, content := range versions {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func consistentProject(v string) map[string]string {
	return map[string]string{
		"package.json":         fmt.Sprintf("{\n  \"name\": \"app\",\n  \"version\": %q\n}\n", v),
		"pyproject.toml":       fmt.Sprintf("[project]\nname = \"app\"\nversion = %q\n", v),
		"shipyard/__init__.py": fmt.Sprintf("__version__ = %q\n", v),
	}
}

func TestRun_VersionShow(t *testing.T) {
	writeProject(t, consistentProject("1.2.3"))

	var stdout, stderr bytes.Buffer
	code := run([]string{"version", "show"}, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "version 1.2.3")
	assert.Contains(t, stdout.String(), "pyproject.toml")
}

func TestRun_VersionShowInconsistent(t *testing.T) {
	files := consistentProject("1.2.3")
	files["pyproject.toml"] = "[project]\nversion = \"1.3.0\"\n"
	writeProject(t, files)

	var stdout, stderr bytes.Buffer
	code := run([]string{"version", "show"}, &stdout, &stderr)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr.String(), "pyproject.toml=1.3.0")
}

func TestRun_UsageErrors(t *testing.T) {
	writeProject(t, consistentProject("1.0.0"))

	tests := []struct {
		name string
		args []string
	}{
		{"stop without target", []string{"env", "stop"}},
		{"unknown flag", []string{"env", "status", "--bogus"}},
		{"bad class", []string{"version", "assign", "--class", "chore"}},
		{"unknown environment", []string{"worktree", "status", "qa"}},
		{"local has no worktree", []string{"worktree", "sync", "local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, ExitConfigError, run(tt.args, &stdout, &stderr), stderr.String())
		})
	}
}

func TestRun_HistoryWithJournalDisabled(t *testing.T) {
	writeProject(t, consistentProject("1.0.0"))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitConfigError, run([]string{"history"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "journal disabled")
}

func TestRun_HistoryReadsJournal(t *testing.T) {
	dir := writeProject(t, consistentProject("1.0.0"))
	t.Setenv("SHIPYARD_METADATA_JOURNAL", filepath.Join(dir, "journal.db"))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitSuccess, run([]string{"history", "--limit", "5"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "assignments")
	assert.Contains(t, stdout.String(), "builds")
}
