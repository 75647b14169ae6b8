package assign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipyard/internal/core/collision"
	"github.com/artpar/shipyard/internal/core/version"
	"github.com/artpar/shipyard/internal/shell/lock"
	"github.com/artpar/shipyard/internal/shell/store"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCommit struct {
	Paths   []string
	Message string
}

// fakeRepo stands in for the remote: files at refs, shared history and tags.
type fakeRepo struct {
	mu       sync.Mutex
	refs     map[string]string
	subjects []string
	tags     []string
	commits  []fakeCommit
	fetched  []string
	fetchErr error
}

func newFakeRepo(develop, main string) *fakeRepo {
	return &fakeRepo{refs: map[string]string{
		"origin/develop:package.json": `{"version": "` + develop + `"}`,
		"origin/main:package.json":    `{"version": "` + main + `"}`,
	}}
}

func (f *fakeRepo) Fetch(_ context.Context, remote, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, remote+"/"+branch)
	return f.fetchErr
}

func (f *fakeRepo) FetchAll(context.Context, string) error { return nil }

func (f *fakeRepo) ShowFile(_ context.Context, ref, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.refs[ref+":"+path]
	if !ok {
		return nil, errors.New("path does not exist at ref")
	}
	return []byte(content), nil
}

func (f *fakeRepo) RecentSubjects(context.Context, int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...), nil
}

func (f *fakeRepo) Tags(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tags...), nil
}

func (f *fakeRepo) Commit(_ context.Context, paths []string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, fakeCommit{Paths: paths, Message: message})
	// Newest first, as git log reports.
	f.subjects = append([]string{message}, f.subjects...)
	return nil
}

func (f *fakeRepo) CurrentBranch(context.Context) (string, error) { return "feature/x", nil }

type memJournal struct {
	mu      sync.Mutex
	entries []store.Assignment
}

func (j *memJournal) RecordAssignment(_ context.Context, a *store.Assignment) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *a)
	return nil
}

// workingCopy writes a project whose three version files all read v.
func workingCopy(t *testing.T, v string) *versionfiles.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name": "app", "version": "`+v+`"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname = \"app\"\nversion = \""+v+"\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "__init__.py"), []byte("__version__ = \""+v+"\"\n"), 0o644))

	reg, err := versionfiles.New(dir, versionfiles.DefaultFiles("app"), setupTestLogger())
	require.NoError(t, err)
	return reg
}

func testLock(base string) *lock.Lock {
	return lock.New(lock.Config{Base: base, Timeout: 5 * time.Second, PollInterval: 5 * time.Millisecond}, setupTestLogger())
}

func newTestEngine(t *testing.T, repo *fakeRepo, reg *versionfiles.Registry, locker Locker, journal Recorder) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	return New(cfg, repo, reg, locker, journal, setupTestLogger())
}

func assertAllFiles(t *testing.T, reg *versionfiles.Registry, want string) {
	t.Helper()
	got, err := reg.Current()
	require.NoError(t, err)
	assert.Equal(t, want, got.String())
}

// =============================================================================
// Scenarios
// =============================================================================

func TestAssign_FeatureBumpsMinor(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	reg := workingCopy(t, "1.2.3")
	journal := &memJournal{}
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), journal)

	res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", res.Version.String())
	assert.Equal(t, "1.2.3", res.Target.String())
	assert.Equal(t, "develop", res.Branch)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Reused)

	assertAllFiles(t, reg, "1.3.0")
	assert.Equal(t, []string{"origin/develop"}, repo.fetched)

	require.Len(t, repo.commits, 1)
	assert.Equal(t, "chore(version): assign v1.3.0", repo.commits[0].Message)
	assert.Equal(t, reg.Paths(), repo.commits[0].Paths)

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.Equal(t, store.OutcomeAssigned, entry.Outcome)
	assert.Equal(t, "1.2.3", entry.FromVersion)
	assert.Equal(t, "1.3.0", entry.Version)
	assert.Equal(t, "feature/x", entry.Branch)
	assert.Equal(t, res.ID, entry.ID)
}

func TestAssign_HotfixBumpsPatchFromProduction(t *testing.T) {
	repo := newFakeRepo("1.5.0", "1.2.3")
	reg := workingCopy(t, "1.2.3")
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), nil)

	res, err := e.Assign(context.Background(), Request{Kind: version.KindHotfix})
	require.NoError(t, err)
	assert.Equal(t, "1.2.4", res.Version.String())
	assert.Equal(t, "main", res.Branch)
	assertAllFiles(t, reg, "1.2.4")
}

func TestAssign_BreakingBumpsMajor(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	reg := workingCopy(t, "1.2.3")
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), nil)

	res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature, Breaking: true})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Version.String())
}

func TestAssign_ReusesVersionAlreadyAhead(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	reg := workingCopy(t, "1.3.0")
	journal := &memJournal{}
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), journal)

	res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, "1.3.0", res.Version.String())
	assert.Empty(t, repo.commits)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, store.OutcomeReused, journal.entries[0].Outcome)
}

func TestAssign_StepsPastClaimedAndTaggedVersions(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	repo.subjects = []string{"fix things", collision.CommitSubject(version.MustParse("1.3.0"))}
	repo.tags = []string{"v1.4.0"}
	reg := workingCopy(t, "1.2.3")
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), nil)

	res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", res.Version.String())
	assert.Equal(t, 3, res.Attempts)
}

func TestAssign_CollisionBudgetExhausted(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	for _, v := range []string{"1.3.0", "1.4.0", "1.5.0"} {
		repo.subjects = append(repo.subjects, collision.CommitSubject(version.MustParse(v)))
	}
	reg := workingCopy(t, "1.2.3")
	journal := &memJournal{}
	e := newTestEngine(t, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), journal)

	_, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	require.Error(t, err)

	var cerr *CollisionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "1.5.0", cerr.Candidate.String())
	assert.Equal(t, 3, cerr.Attempts)
	assert.Equal(t, collision.Assigned, cerr.Reason)
	assert.ErrorIs(t, err, ErrCollisionBudget)

	assertAllFiles(t, reg, "1.2.3")
	require.Len(t, journal.entries, 1)
	assert.Equal(t, store.OutcomeCollision, journal.entries[0].Outcome)
}

func TestAssign_FetchFailure(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	repo.fetchErr = errors.New("could not read from remote repository")
	reg := workingCopy(t, "1.2.3")
	base := filepath.Join(t.TempDir(), "v.lock")
	e := newTestEngine(t, repo, reg, testLock(base), nil)

	_, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.NoDirExists(t, base, "lock released on failure")
	assertAllFiles(t, reg, "1.2.3")
}

func TestAssign_CommitDisabled(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	reg := workingCopy(t, "1.2.3")
	cfg := DefaultConfig()
	cfg.Commit = false
	e := New(cfg, repo, reg, testLock(filepath.Join(t.TempDir(), "v.lock")), nil, setupTestLogger())

	res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", res.Version.String())
	assert.Empty(t, repo.commits)
}

func TestAssign_LockTimeout(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	reg := workingCopy(t, "1.2.3")
	base := filepath.Join(t.TempDir(), "v.lock")

	holder := testLock(base)
	h, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	short := lock.New(lock.Config{Base: base, Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}, setupTestLogger())
	e := newTestEngine(t, repo, reg, short, nil)

	_, err = e.Assign(context.Background(), Request{Kind: version.KindFeature})
	var terr *lock.TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, os.Getpid(), terr.HolderPID)
	assert.Empty(t, repo.fetched, "nothing runs without the lock")
}

func TestAssign_ConcurrentFeaturesNeverShareAVersion(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	base := filepath.Join(t.TempDir(), "v.lock")

	regs := []*versionfiles.Registry{workingCopy(t, "1.2.3"), workingCopy(t, "1.2.3")}
	results := make([]Result, len(regs))
	errs := make([]error, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg *versionfiles.Registry) {
			defer wg.Done()
			e := newTestEngine(t, repo, reg, testLock(base), nil)
			results[i], errs[i] = e.Assign(context.Background(), Request{Kind: version.KindFeature})
		}(i, reg)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got := []string{results[0].Version.String(), results[1].Version.String()}
	assert.ElementsMatch(t, []string{"1.3.0", "1.4.0"}, got)

	// The later assignment saw the earlier one's commit and stepped past it.
	later := results[0]
	if results[1].Version.String() == "1.4.0" {
		later = results[1]
	}
	assert.Equal(t, 2, later.Attempts)

	assertAllFiles(t, regs[0], results[0].Version.String())
	assertAllFiles(t, regs[1], results[1].Version.String())
}

func TestAssign_SequentialAssignmentsAreMonotonic(t *testing.T) {
	repo := newFakeRepo("1.2.3", "1.2.3")
	base := filepath.Join(t.TempDir(), "v.lock")

	var prior []version.Version
	for i := 0; i < 3; i++ {
		e := newTestEngine(t, repo, workingCopy(t, "1.2.3"), testLock(base), nil)
		res, err := e.Assign(context.Background(), Request{Kind: version.KindFeature})
		require.NoError(t, err)
		for _, p := range prior {
			assert.True(t, p.Less(res.Version), "%s should exceed %s", res.Version, p)
		}
		prior = append(prior, res.Version)
	}
}

func TestTargetBranch(t *testing.T) {
	e := New(Config{ProductionBranch: "prod", StagingBranch: "next"}, nil, nil, nil, nil, nil)
	assert.Equal(t, "prod", e.TargetBranch(version.KindHotfix))
	assert.Equal(t, "next", e.TargetBranch(version.KindFeature))
}
