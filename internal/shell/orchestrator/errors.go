package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/shipyard/internal/core/environment"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMissingDefinition is returned when container-definition files are absent.
	ErrMissingDefinition = errors.New("container definition files missing")

	// ErrStopFailed is returned when some containers could not be stopped.
	ErrStopFailed = errors.New("stop incomplete")
)

// FileSetError names every file the environment expects and which are missing.
type FileSetError struct {
	Environment environment.ID
	Expected    []string
	Missing     []string
}

func (e *FileSetError) Error() string {
	return fmt.Sprintf("%s: missing %s (expected %s)",
		e.Environment, strings.Join(e.Missing, ", "), strings.Join(e.Expected, ", "))
}

func (e *FileSetError) Unwrap() error {
	return ErrMissingDefinition
}

// StopError lists what failed to stop during a sweep that kept going.
type StopError struct {
	Failed []string
	Errs   []error
}

func (e *StopError) Error() string {
	msg := fmt.Sprintf("failed to stop: %s", strings.Join(e.Failed, ", "))
	if len(e.Errs) > 0 {
		parts := make([]string, len(e.Errs))
		for i, err := range e.Errs {
			parts[i] = err.Error()
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

func (e *StopError) Unwrap() []error {
	return append([]error{ErrStopFailed}, e.Errs...)
}
