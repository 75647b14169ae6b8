package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionRegex = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

// =============================================================================
// Version
// =============================================================================

// Version is a (major, minor, patch) triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a strict X.Y.Z string.
func Parse(s string) (Version, error) {
	m := versionRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	return v, nil
}

// ParseTag parses a tag name such as "v1.2.3" or "1.2.3".
func ParseTag(tag string) (Version, error) {
	return Parse(strings.TrimPrefix(strings.TrimSpace(tag), "v"))
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the X.Y.Z form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tag returns the conventional tag name for the version.
func (v Version) Tag() string {
	return "v" + v.String()
}

// Compare returns -1 if v < o, 0 if v == o, 1 if v > o.
func (v Version) Compare(o Version) int {
	for _, d := range [3]int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// IsZero reports whether v is 0.0.0.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Bump increments the component selected by class and zeroes lower components.
func (v Version) Bump(class Class) Version {
	switch class {
	case Major:
		return Version{Major: v.Major + 1}
	case Minor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// =============================================================================
// Increment Classes
// =============================================================================

// Class selects which component an assignment increments.
type Class int

const (
	Patch Class = iota
	Minor
	Major
)

func (c Class) String() string {
	switch c {
	case Major:
		return "major"
	case Minor:
		return "minor"
	default:
		return "patch"
	}
}

// Kind is the kind of work being finished.
type Kind string

const (
	KindFeature Kind = "feature"
	KindHotfix  Kind = "hotfix"
)

// ParseKind parses "feature" or "hotfix".
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFeature:
		return KindFeature, nil
	case KindHotfix:
		return KindHotfix, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ClassFor returns the increment class for a kind of work.
// A breaking-change marker always selects Major.
func ClassFor(kind Kind, breaking bool) Class {
	if breaking {
		return Major
	}
	if kind == KindHotfix {
		return Patch
	}
	return Minor
}
