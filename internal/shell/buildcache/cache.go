// Package buildcache remembers the dependency fingerprint of each
// environment's last build so the operator can be told when a rebuild is
// advisable. It never blocks a build: anything unreadable counts as changed.
package buildcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/core/fingerprint"
)

// Metadata is the build record stored per environment.
type Metadata struct {
	Environment environment.ID `json:"environment"`
	Branch      string         `json:"branch"`
	Version     string         `json:"version"`
	Commit      string         `json:"commit"`
	Fingerprint string         `json:"fingerprint"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Cache reads manifests from the project and records builds in the metadata directory.
type Cache struct {
	projectDir  string
	metadataDir string
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Cache.
func New(projectDir, metadataDir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		projectDir:  projectDir,
		metadataDir: metadataDir,
		logger:      logger.With("component", "build_cache"),
		now:         time.Now,
	}
}

// Path returns the metadata file of id.
func (c *Cache) Path(id environment.ID) string {
	return filepath.Join(c.metadataDir, fmt.Sprintf("build-%s.json", id))
}

// Compute hashes the environment's dependency manifests as they are on disk.
// Absent manifests are part of the hash.
func (c *Cache) Compute(id environment.ID) (string, error) {
	return c.ComputeIn(c.projectDir, id)
}

// ComputeIn hashes the manifests under dir, e.g. a worktree.
func (c *Cache) ComputeIn(dir string, id environment.ID) (string, error) {
	names := fingerprint.Manifests(id)
	entries := make([]fingerprint.Entry, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			entries = append(entries, fingerprint.Entry{Path: name, Missing: true})
		case err != nil:
			return "", fmt.Errorf("reading %s: %w", name, err)
		default:
			entries = append(entries, fingerprint.Entry{Path: name, Content: content})
		}
	}
	return fingerprint.Compute(entries), nil
}

// Last returns the stored record of id.
func (c *Cache) Last(id environment.ID) (*Metadata, error) {
	data, err := os.ReadFile(c.Path(id))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.Path(id), err)
	}
	if m.Fingerprint == "" {
		return nil, fmt.Errorf("parsing %s: no fingerprint", c.Path(id))
	}
	return &m, nil
}

// HasChanged reports whether current differs from the last recorded build.
// No record, or an unreadable one, counts as changed.
func (c *Cache) HasChanged(id environment.ID, current string) bool {
	last, err := c.Last(id)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("ignoring unreadable build metadata", "environment", id, "error", err)
		}
		return true
	}
	return last.Fingerprint != current
}

// RecordBuild stores m for its environment, stamping the time if unset.
func (c *Cache) RecordBuild(m Metadata) (Metadata, error) {
	if !m.Environment.Valid() {
		return m, fmt.Errorf("%w: %q", environment.ErrUnknownEnvironment, m.Environment)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = c.now().UTC()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, err
	}
	if err := os.MkdirAll(c.metadataDir, 0o755); err != nil {
		return m, fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := atomic.WriteFile(c.Path(m.Environment), bytes.NewReader(append(data, '\n'))); err != nil {
		return m, fmt.Errorf("writing build metadata: %w", err)
	}
	c.logger.Debug("build recorded", "environment", m.Environment, "fingerprint", m.Fingerprint)
	return m, nil
}
