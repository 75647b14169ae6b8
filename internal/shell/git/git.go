package git

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/artpar/shipyard/internal/shell/execx"
)

// =============================================================================
// Repository
// =============================================================================

// Repo runs git commands against one working tree.
type Repo struct {
	runner execx.Runner
	dir    string
}

// New returns a Repo rooted at dir.
func New(runner execx.Runner, dir string) *Repo {
	return &Repo{runner: runner, dir: dir}
}

// Dir returns the working-tree directory.
func (r *Repo) Dir() string {
	return r.dir
}

// At returns a Repo for another working tree sharing the same runner.
func (r *Repo) At(dir string) *Repo {
	return &Repo{runner: r.runner, dir: dir}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, execx.Command{Dir: r.dir, Name: "git", Args: args})
	if err != nil {
		return res.Stdout, classify(err)
	}
	return res.Stdout, nil
}

// Fetch updates the remote-tracking ref for branch.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	refspec := "+refs/heads/" + branch + ":refs/remotes/" + remote + "/" + branch
	_, err := r.run(ctx, "fetch", "--quiet", remote, refspec)
	return err
}

// FetchAll updates every remote-tracking ref and tag of remote.
func (r *Repo) FetchAll(ctx context.Context, remote string) error {
	_, err := r.run(ctx, "fetch", "--quiet", "--tags", remote)
	return err
}

// ShowFile returns the content of path at ref.
func (r *Repo) ShowFile(ctx context.Context, ref, path string) ([]byte, error) {
	out, err := r.run(ctx, "show", ref+":"+path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// RecentSubjects returns commit subjects across all refs, newest first.
func (r *Repo) RecentSubjects(ctx context.Context, limit int) ([]string, error) {
	out, err := r.run(ctx, "log", "--all", "-n", strconv.Itoa(limit), "--format=%s")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Tags lists every tag name.
func (r *Repo) Tags(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "tag", "--list")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Commit stages exactly paths and commits them with message.
func (r *Repo) Commit(ctx context.Context, paths []string, message string) error {
	if _, err := r.run(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return err
	}
	_, err := r.run(ctx, append([]string{"commit", "--quiet", "-m", message, "--"}, paths...)...)
	return err
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		var cerr *execx.CommandError
		if errors.As(err, &cerr) && cerr.ExitCode == 1 {
			return "", ErrDetachedHead
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevParse resolves ref to a commit id.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	var cerr *execx.CommandError
	if errors.As(err, &cerr) && cerr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// Checkout switches the working tree to branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "checkout", "--quiet", branch)
	return err
}

// CheckoutDetached moves the working tree to ref with a detached HEAD.
func (r *Repo) CheckoutDetached(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", "--quiet", "--detach", ref)
	return err
}

// IsAncestor reports whether commit a is reachable from commit b.
func (r *Repo) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	_, err := r.run(ctx, "merge-base", "--is-ancestor", a, b)
	if err == nil {
		return true, nil
	}
	var cerr *execx.CommandError
	if errors.As(err, &cerr) && cerr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// MergeFastForward fast-forwards the current branch to ref, refusing real merges.
func (r *Repo) MergeFastForward(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "merge", "--ff-only", "--quiet", ref)
	return err
}

// IsDirty reports whether the working tree has uncommitted changes.
func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
