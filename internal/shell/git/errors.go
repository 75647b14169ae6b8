// Package git drives the git CLI for the operations shipyard needs:
// fetch, read files at a ref, history and tag queries, worktrees,
// checkout, fast-forward and commit.
package git

import (
	"errors"
	"strings"

	"github.com/artpar/shipyard/internal/shell/execx"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrDetachedHead is returned by CurrentBranch when HEAD is not on a branch.
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrPathNotInRef is returned by ShowFile when the path does not exist at the ref.
	ErrPathNotInRef = errors.New("path does not exist at ref")

	// ErrWouldOverwrite is returned when local modifications block a checkout or merge.
	ErrWouldOverwrite = errors.New("local changes would be overwritten")

	// ErrBranchCheckedOut is returned when a branch is already checked out in another worktree.
	ErrBranchCheckedOut = errors.New("branch is checked out in another worktree")
)

// GitError pairs a sentinel with the failing command.
type GitError struct {
	Kind error
	Err  error
}

func (e *GitError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *GitError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps well-known git failure output to sentinels.
func classify(err error) error {
	var cerr *execx.CommandError
	if !errors.As(err, &cerr) {
		return err
	}
	out := cerr.Output
	switch {
	case strings.Contains(out, "would be overwritten"),
		strings.Contains(out, "Your local changes"),
		strings.Contains(out, "untracked working tree files would be"):
		return &GitError{Kind: ErrWouldOverwrite, Err: err}
	case strings.Contains(out, "is already checked out at"),
		strings.Contains(out, "is already used by worktree at"):
		return &GitError{Kind: ErrBranchCheckedOut, Err: err}
	case strings.Contains(out, "does not exist in"),
		strings.Contains(out, "exists on disk, but not in"):
		return &GitError{Kind: ErrPathNotInRef, Err: err}
	}
	return err
}
