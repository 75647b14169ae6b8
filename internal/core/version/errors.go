// Package version contains pure functions for semantic versions and the
// artifact formats that carry them.
// This is part of the Functional Core - all functions are pure with no I/O.
package version

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMalformedVersion is returned when a version string is not X.Y.Z.
	ErrMalformedVersion = errors.New("version must be in semver format (X.Y.Z)")

	// ErrVersionNotFound is returned when an artifact carries no version field.
	ErrVersionNotFound = errors.New("version field not found")

	// ErrRewriteMismatch is returned when a rewritten artifact does not read
	// back as the version that was written.
	ErrRewriteMismatch = errors.New("rewritten file does not carry the new version")

	// ErrUnknownFormat is returned for an unregistered artifact format.
	ErrUnknownFormat = errors.New("unknown version file format")

	// ErrUnknownKind is returned for an unrecognised kind of work.
	ErrUnknownKind = errors.New("unknown kind of work")
)

// FormatError reports a version-carrying artifact that could not be read or rewritten.
// It is a configuration error: the file must be fixed by hand.
type FormatError struct {
	Path   string
	Format string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %s", e.Path, e.Format, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a new FormatError.
func NewFormatError(path, format, reason string, err error) *FormatError {
	return &FormatError{
		Path:   path,
		Format: format,
		Reason: reason,
		Err:    err,
	}
}
