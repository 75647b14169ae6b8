package environment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrUnknownEnvironment is returned for an identity outside the fixed set.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrInvalidRules is returned when a rule table fails validation.
	ErrInvalidRules = errors.New("invalid environment rules")
)

// RulesError describes which part of a rule table is invalid.
type RulesError struct {
	Field   string
	Message string
}

func (e *RulesError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *RulesError) Unwrap() error {
	return ErrInvalidRules
}
