package versionfiles

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoFiles is returned when a registry is created without members.
	ErrNoFiles = errors.New("no version files configured")

	// ErrInconsistent is returned when registry members disagree.
	ErrInconsistent = errors.New("version files disagree")

	// ErrNotAtRef is returned when no registry member exists at a ref.
	ErrNotAtRef = errors.New("no version file exists at ref")
)

// InconsistentError lists what every member reported.
type InconsistentError struct {
	Readings []Reading
}

func (e *InconsistentError) Error() string {
	parts := make([]string, 0, len(e.Readings))
	for _, r := range e.Readings {
		if r.Err != nil {
			parts = append(parts, fmt.Sprintf("%s=<%v>", r.File.Path, r.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", r.File.Path, r.Version))
	}
	return ErrInconsistent.Error() + ": " + strings.Join(parts, ", ")
}

func (e *InconsistentError) Unwrap() error {
	return ErrInconsistent
}
