// Package versionfiles reads and rewrites the version carried redundantly by
// several artifact files in the working copy or at a git ref.
package versionfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/artpar/shipyard/internal/core/version"
)

// File is one registry member, with Path relative to the project directory.
type File struct {
	Path   string `mapstructure:"path" json:"path"`
	Format string `mapstructure:"format" json:"format"`
}

// DefaultFiles returns the conventional members for a project:
// package.json, pyproject.toml and the package's __init__.py.
func DefaultFiles(project string) []File {
	return []File{
		{Path: "package.json", Format: version.FormatJSON},
		{Path: "pyproject.toml", Format: version.FormatTOML},
		{Path: filepath.ToSlash(filepath.Join(project, "__init__.py")), Format: version.FormatPython},
	}
}

// Reading is what one member reported.
type Reading struct {
	File    File
	Version version.Version
	Err     error
}

// RefReader reads a file as committed at a ref.
type RefReader interface {
	ShowFile(ctx context.Context, ref, path string) ([]byte, error)
}

type member struct {
	File
	format version.Format
}

// Registry is the set of version-carrying files of one working copy.
type Registry struct {
	dir     string
	members []member
	logger  *slog.Logger
}

// New validates files and returns a Registry rooted at dir.
func New(dir string, files []File, logger *slog.Logger) (*Registry, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if logger == nil {
		logger = slog.Default()
	}

	members := make([]member, 0, len(files))
	for _, f := range files {
		format, err := version.LookupFormat(f.Format)
		if err != nil {
			return nil, version.NewFormatError(f.Path, f.Format, "unsupported format", err)
		}
		members = append(members, member{File: f, format: format})
	}

	return &Registry{
		dir:     dir,
		members: members,
		logger:  logger.With("component", "version_files"),
	}, nil
}

// Dir returns the working-copy root.
func (r *Registry) Dir() string {
	return r.dir
}

// At returns a registry with the same members rooted at another working copy.
func (r *Registry) At(dir string) *Registry {
	return &Registry{dir: dir, members: r.members, logger: r.logger}
}

// Files returns the members in configured order.
func (r *Registry) Files() []File {
	out := make([]File, len(r.members))
	for i, m := range r.members {
		out[i] = m.File
	}
	return out
}

// Paths returns member paths relative to the working copy.
func (r *Registry) Paths() []string {
	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.Path
	}
	return out
}

func (r *Registry) abs(path string) string {
	return filepath.Join(r.dir, filepath.FromSlash(path))
}

func (m member) extract(content []byte) (version.Version, error) {
	v, err := m.format.Extract(content)
	if err != nil {
		return version.Version{}, version.NewFormatError(m.Path, m.Format, reasonFor(err), err)
	}
	return v, nil
}

// ReadAll reads every member of the working copy, recording per-file failures.
func (r *Registry) ReadAll() []Reading {
	readings := make([]Reading, 0, len(r.members))
	for _, m := range r.members {
		reading := Reading{File: m.File}
		content, err := os.ReadFile(r.abs(m.Path))
		if err != nil {
			reading.Err = version.NewFormatError(m.Path, m.Format, "cannot read file", err)
		} else {
			reading.Version, reading.Err = m.extract(content)
		}
		readings = append(readings, reading)
	}
	return readings
}

// Current returns the version every member agrees on.
// When no member can be read the first FormatError is returned; any other
// failure or disagreement is an *InconsistentError.
func (r *Registry) Current() (version.Version, error) {
	readings := r.ReadAll()

	var failed []Reading
	for _, rd := range readings {
		if rd.Err != nil {
			failed = append(failed, rd)
		}
	}
	if len(failed) == len(readings) {
		return version.Version{}, failed[0].Err
	}
	if len(failed) > 0 {
		return version.Version{}, &InconsistentError{Readings: readings}
	}

	first := readings[0].Version
	for _, rd := range readings[1:] {
		if rd.Version != first {
			return version.Version{}, &InconsistentError{Readings: readings}
		}
	}
	return first, nil
}

// AtRef returns the version committed at ref, taken from the first member
// present there.
func (r *Registry) AtRef(ctx context.Context, src RefReader, ref string) (version.Version, File, error) {
	for _, m := range r.members {
		content, err := src.ShowFile(ctx, ref, m.Path)
		if err != nil {
			r.logger.Debug("version file not readable at ref", "ref", ref, "path", m.Path, "error", err)
			continue
		}
		v, err := m.extract(content)
		if err != nil {
			return version.Version{}, m.File, fmt.Errorf("at %s: %w", ref, err)
		}
		return v, m.File, nil
	}
	return version.Version{}, File{}, fmt.Errorf("%w %s", ErrNotAtRef, ref)
}

// Write sets v in every member. Each file is replaced atomically; if any
// member fails, members already rewritten are restored to their prior content.
func (r *Registry) Write(v version.Version) error {
	type staged struct {
		path     string
		original []byte
		updated  []byte
	}

	plan := make([]staged, 0, len(r.members))
	for _, m := range r.members {
		path := r.abs(m.Path)
		content, err := os.ReadFile(path)
		if err != nil {
			return version.NewFormatError(m.Path, m.Format, "cannot read file", err)
		}
		updated, err := version.Rewrite(m.format, content, v)
		if err != nil {
			return version.NewFormatError(m.Path, m.Format, reasonFor(err), err)
		}
		plan = append(plan, staged{path: path, original: content, updated: updated})
	}

	for i, s := range plan {
		if err := atomic.WriteFile(s.path, bytes.NewReader(s.updated)); err != nil {
			for _, done := range plan[:i] {
				if rerr := atomic.WriteFile(done.path, bytes.NewReader(done.original)); rerr != nil {
					r.logger.Error("failed to restore version file", "path", done.path, "error", rerr)
				}
			}
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
	}

	r.logger.Debug("version files written", "version", v.String(), "files", len(plan))
	return nil
}

// Missing returns members absent from the working copy.
func (r *Registry) Missing() []string {
	var out []string
	for _, m := range r.members {
		if _, err := os.Stat(r.abs(m.Path)); errors.Is(err, fs.ErrNotExist) {
			out = append(out, m.Path)
		}
	}
	return out
}

func reasonFor(err error) string {
	if errors.Is(err, version.ErrVersionNotFound) {
		return "no version field"
	}
	if errors.Is(err, version.ErrRewriteMismatch) {
		return "rewrite did not take effect"
	}
	return err.Error()
}
