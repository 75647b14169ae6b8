// Package collision decides whether a candidate version is already used or reserved.
// This is part of the Functional Core - all functions are pure with no I/O.
package collision

import (
	"fmt"
	"regexp"

	"github.com/artpar/shipyard/internal/core/version"
)

// =============================================================================
// Assignment Commit Subjects
// =============================================================================

var assignSubjectRegex = regexp.MustCompile(`^chore\(version\): assign v?([0-9]+\.[0-9]+\.[0-9]+)\b`)

// CommitSubject returns the subject line of a version-assignment commit.
//
// Example:
//
//	CommitSubject(version.MustParse("1.3.0")) // returns "chore(version): assign v1.3.0"
func CommitSubject(v version.Version) string {
	return fmt.Sprintf("chore(version): assign %s", v.Tag())
}

// ParseSubject extracts the version from an assignment commit subject.
func ParseSubject(subject string) (version.Version, bool) {
	m := assignSubjectRegex.FindStringSubmatch(subject)
	if m == nil {
		return version.Version{}, false
	}
	v, err := version.Parse(m[1])
	if err != nil {
		return version.Version{}, false
	}
	return v, true
}

// =============================================================================
// Collision Check
// =============================================================================

// Reason names why a candidate collides.
type Reason string

const (
	None Reason = ""
	// OnTarget means the target branch already carries the candidate or a later version.
	OnTarget Reason = "already set on target branch"
	// Assigned means a recent assignment commit claims the candidate.
	Assigned Reason = "claimed by a recent assignment commit"
	// Tagged means a tag for the candidate exists.
	Tagged Reason = "already tagged"
)

// History is the evidence collisions are checked against.
type History struct {
	Target   version.Version
	Subjects []string
	Tags     []string
}

// Check reports whether candidate collides with anything in h.
func Check(candidate version.Version, h History) Reason {
	if candidate.Compare(h.Target) <= 0 {
		return OnTarget
	}
	for _, s := range h.Subjects {
		if v, ok := ParseSubject(s); ok && v == candidate {
			return Assigned
		}
	}
	for _, t := range h.Tags {
		if v, err := version.ParseTag(t); err == nil && v == candidate {
			return Tagged
		}
	}
	return None
}
