// Package store provides the SQLite journal of version assignments and builds.
package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("entry not found")
	ErrDuplicateID      = errors.New("entry with this ID already exists")
	ErrConnectionFailed = errors.New("journal database unavailable")
	ErrMigrationFailed  = errors.New("journal migration failed")
	ErrInvalidData      = errors.New("journal entry incomplete")
)

// JournalError is a failed journal operation on one table.
// Kind is one of the sentinels above; Err carries the driver error, if any.
type JournalError struct {
	Op    string // "open", "record", "list", "latest"
	Table string // "assignments" or "builds"; empty for open
	Key   string // entry id, or environment for latest
	Kind  error
	Err   error
}

func (e *JournalError) Error() string {
	parts := []string{"journal", e.Op}
	if e.Table != "" {
		parts = append(parts, e.Table)
	}
	if e.Key != "" {
		parts = append(parts, e.Key)
	}
	msg := strings.Join(parts, " ")
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *JournalError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
