// Package compose contains pure functions for describing container-definition file sets.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned when no definition files are given.
	ErrEmptyInput = errors.New("definition file set is empty")

	// ErrInvalidYAML is returned when a definition file is not valid YAML.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrNoServices is returned when the merged file set defines no services.
	ErrNoServices = errors.New("definition file set must define at least one service")
)

// ParseError wraps errors with context about which file failed.
type ParseError struct {
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(file, message string, err error) *ParseError {
	return &ParseError{
		File:    file,
		Message: message,
		Err:     err,
	}
}
