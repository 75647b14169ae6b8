package git

import (
	"context"
	"path/filepath"
	"strings"
)

// =============================================================================
// Worktrees
// =============================================================================

// WorktreeEntry is one line group of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path     string
	Head     string
	Branch   string // short name, empty when detached
	Detached bool
	Bare     bool
}

// Worktrees lists every working tree of the repository, the primary first.
func (r *Repo) Worktrees(ctx context.Context) ([]WorktreeEntry, error) {
	out, err := r.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// ParseWorktreeList parses porcelain worktree output.
func ParseWorktreeList(out string) []WorktreeEntry {
	var entries []WorktreeEntry
	var cur *WorktreeEntry
	flush := func() {
		if cur != nil {
			entries = append(entries, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "":
			flush()
		case "worktree":
			flush()
			cur = &WorktreeEntry{Path: val}
		case "HEAD":
			if cur != nil {
				cur.Head = val
			}
		case "branch":
			if cur != nil {
				cur.Branch = strings.TrimPrefix(val, "refs/heads/")
			}
		case "detached":
			if cur != nil {
				cur.Detached = true
			}
		case "bare":
			if cur != nil {
				cur.Bare = true
			}
		}
	}
	flush()
	return entries
}

// CheckedOutAt returns the path of the worktree that has branch checked out, if any.
func (r *Repo) CheckedOutAt(ctx context.Context, branch string) (string, bool, error) {
	entries, err := r.Worktrees(ctx)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Branch == branch {
			return e.Path, true, nil
		}
	}
	return "", false, nil
}

// WorktreeFor returns the entry registered at path, if any.
func (r *Repo) WorktreeFor(ctx context.Context, path string) (WorktreeEntry, bool, error) {
	entries, err := r.Worktrees(ctx)
	if err != nil {
		return WorktreeEntry{}, false, err
	}
	want := cleanPath(path)
	for _, e := range entries {
		if cleanPath(e.Path) == want {
			return e, true, nil
		}
	}
	return WorktreeEntry{}, false, nil
}

// AddWorktree checks out an existing local branch at path.
func (r *Repo) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := r.run(ctx, "worktree", "add", "--quiet", path, branch)
	return err
}

// AddTrackingWorktree creates branch from startPoint and checks it out at path.
func (r *Repo) AddTrackingWorktree(ctx context.Context, path, branch, startPoint string) error {
	_, err := r.run(ctx, "worktree", "add", "--quiet", "--track", "-b", branch, path, startPoint)
	return err
}

// AddDetachedWorktree checks out ref at path with a detached HEAD.
func (r *Repo) AddDetachedWorktree(ctx context.Context, path, ref string) error {
	_, err := r.run(ctx, "worktree", "add", "--quiet", "--detach", path, ref)
	return err
}

func cleanPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
