package buildcache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipyard/internal/core/environment"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	project := t.TempDir()
	c := New(project, filepath.Join(project, ".shipyard"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, project
}

func TestCompute_TracksManifestChanges(t *testing.T) {
	c, project := newTestCache(t)

	empty, err := c.Compute(environment.Staging)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(project, "package.json"), []byte(`{"dependencies":{}}`), 0o644))
	withPkg, err := c.Compute(environment.Staging)
	require.NoError(t, err)
	assert.NotEqual(t, empty, withPkg)

	again, err := c.Compute(environment.Staging)
	require.NoError(t, err)
	assert.Equal(t, withPkg, again)

	// Unrelated files do not matter.
	require.NoError(t, os.WriteFile(filepath.Join(project, "main.go"), []byte("package main"), 0o644))
	unrelated, err := c.Compute(environment.Staging)
	require.NoError(t, err)
	assert.Equal(t, withPkg, unrelated)
}

func TestCompute_EnvironmentScoped(t *testing.T) {
	c, project := newTestCache(t)
	require.NoError(t, os.WriteFile(filepath.Join(project, "Dockerfile.staging"), []byte("FROM node"), 0o644))

	staging, err := c.Compute(environment.Staging)
	require.NoError(t, err)
	before, err := c.Compute(environment.Production)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(project, "Dockerfile.staging"), []byte("FROM node:22"), 0o644))
	stagingAfter, err := c.Compute(environment.Staging)
	require.NoError(t, err)
	after, err := c.Compute(environment.Production)
	require.NoError(t, err)

	assert.NotEqual(t, staging, stagingAfter)
	assert.Equal(t, before, after)
}

func TestHasChanged_NoRecordMeansChanged(t *testing.T) {
	c, _ := newTestCache(t)
	assert.True(t, c.HasChanged(environment.Local, "abc"))
}

func TestRecordBuild_ThenUnchanged(t *testing.T) {
	c, _ := newTestCache(t)
	fp, err := c.Compute(environment.Local)
	require.NoError(t, err)

	m, err := c.RecordBuild(Metadata{Environment: environment.Local, Branch: "feature/x", Version: "1.3.0", Commit: "abc123", Fingerprint: fp})
	require.NoError(t, err)
	assert.False(t, m.Timestamp.IsZero())
	assert.FileExists(t, c.Path(environment.Local))

	assert.False(t, c.HasChanged(environment.Local, fp))
	assert.True(t, c.HasChanged(environment.Local, "different"))

	last, err := c.Last(environment.Local)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", last.Branch)
	assert.Equal(t, "1.3.0", last.Version)
	assert.Equal(t, "abc123", last.Commit)
	assert.WithinDuration(t, m.Timestamp, last.Timestamp, time.Second)
}

func TestHasChanged_CorruptRecordMeansChanged(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path(environment.Staging)), 0o755))
	require.NoError(t, os.WriteFile(c.Path(environment.Staging), []byte("{not json"), 0o644))

	assert.True(t, c.HasChanged(environment.Staging, "abc"))

	require.NoError(t, os.WriteFile(c.Path(environment.Staging), []byte(`{"environment":"staging"}`), 0o644))
	assert.True(t, c.HasChanged(environment.Staging, ""))
}

func TestRecordBuild_RejectsUnknownEnvironment(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.RecordBuild(Metadata{Environment: "qa", Fingerprint: "abc"})
	assert.ErrorIs(t, err, environment.ErrUnknownEnvironment)
}

func TestPath(t *testing.T) {
	c := New("/src/app", "/src/app/.shipyard", nil)
	assert.Equal(t, "/src/app/.shipyard/build-production.json", c.Path(environment.Production))
}
