// Package gittest builds throwaway repositories for tests that need a real git.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SkipIfNoGit skips the test when git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available:", err)
	}
}

// Identity pins author and committer so commits work without global config.
func Identity(t *testing.T) {
	t.Helper()
	t.Setenv("GIT_AUTHOR_NAME", "shipyard")
	t.Setenv("GIT_AUTHOR_EMAIL", "shipyard@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "shipyard")
	t.Setenv("GIT_COMMITTER_EMAIL", "shipyard@example.com")
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("HOME", t.TempDir())
}

// Run executes git in dir and fails the test on error.
func Run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content under dir, creating parents.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// CommitFile writes and commits one file.
func CommitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	WriteFile(t, dir, name, content)
	Run(t, dir, "add", name)
	Run(t, dir, "commit", "-q", "-m", message)
}

// Fixture is a bare remote with a clone that has main and develop pushed.
type Fixture struct {
	Remote string
	Clone  string
}

// NewFixture creates the remote, seeds main with files and branches develop from it.
// The clone is left on develop.
func NewFixture(t *testing.T, files map[string]string) Fixture {
	t.Helper()
	SkipIfNoGit(t)
	Identity(t)

	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	clone := filepath.Join(root, "project")

	Run(t, root, "init", "-q", "--bare", "-b", "main", remote)
	Run(t, root, "clone", "-q", remote, clone)
	Run(t, clone, "symbolic-ref", "HEAD", "refs/heads/main")

	if len(files) == 0 {
		files = map[string]string{"README.md": "project\n"}
	}
	for name, content := range files {
		WriteFile(t, clone, name, content)
	}
	Run(t, clone, "add", "-A")
	Run(t, clone, "commit", "-q", "-m", "initial")
	Run(t, clone, "push", "-q", "-u", "origin", "main")
	Run(t, clone, "checkout", "-q", "-b", "develop")
	Run(t, clone, "push", "-q", "-u", "origin", "develop")

	return Fixture{Remote: remote, Clone: clone}
}

// SecondClone clones the remote into a fresh directory, e.g. to simulate another developer.
func (f Fixture) SecondClone(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "other")
	Run(t, filepath.Dir(dir), "clone", "-q", f.Remote, dir)
	return dir
}
