package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// =============================================================================
// Artifact Formats
// =============================================================================

// Format reads and rewrites the version field of one kind of artifact file.
// Replace must leave every byte outside the version value untouched.
type Format interface {
	Name() string
	Extract(content []byte) (Version, error)
	Replace(content []byte, v Version) ([]byte, error)
}

const (
	FormatJSON   = "json"
	FormatTOML   = "toml"
	FormatPython = "python"
	FormatPlain  = "plain"
)

var formats = map[string]Format{
	FormatJSON:   jsonFormat{},
	FormatTOML:   tomlFormat{},
	FormatPython: pythonFormat{},
	FormatPlain:  plainFormat{},
}

// LookupFormat returns the Format registered under name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownFormat, name, FormatNames())
	}
	return f, nil
}

// FormatNames returns the registered format names, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(formats))
	for n := range formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rewrite replaces the version in content and checks that the result reads
// back as v under the same format.
func Rewrite(f Format, content []byte, v Version) ([]byte, error) {
	out, err := f.Replace(content, v)
	if err != nil {
		return nil, err
	}
	got, err := f.Extract(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewriteMismatch, err)
	}
	if got != v {
		return nil, fmt.Errorf("%w: read back %s", ErrRewriteMismatch, got)
	}
	return out, nil
}

func splice(content []byte, start, end int, v Version) []byte {
	out := make([]byte, 0, len(content)+8)
	out = append(out, content[:start]...)
	out = append(out, v.String()...)
	out = append(out, content[end:]...)
	return out
}

// replaceQuoted rewrites the value captured by group 2 of the first match of re
// whose value equals old.
func replaceQuoted(re *regexp.Regexp, content []byte, old, v Version) ([]byte, error) {
	for _, m := range re.FindAllSubmatchIndex(content, -1) {
		start, end := m[4], m[5]
		if string(content[start:end]) != old.String() {
			continue
		}
		return splice(content, start, end, v), nil
	}
	return nil, ErrVersionNotFound
}

// =============================================================================
// JSON (package.json)
// =============================================================================

type jsonFormat struct{}

func (jsonFormat) Name() string { return FormatJSON }

func (jsonFormat) Extract(content []byte) (Version, error) {
	var doc struct {
		Version *string `json:"version"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return Version{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedVersion, err)
	}
	if doc.Version == nil {
		return Version{}, ErrVersionNotFound
	}
	return Parse(*doc.Version)
}

func (f jsonFormat) Replace(content []byte, v Version) ([]byte, error) {
	old, err := f.Extract(content)
	if err != nil {
		return nil, err
	}
	start, end, err := topLevelString(content, "version")
	if err != nil {
		return nil, err
	}
	if string(content[start:end]) != old.String() {
		return nil, ErrVersionNotFound
	}
	return splice(content, start, end, v), nil
}

// topLevelString returns the byte span of the string value stored under key
// in the outermost object, excluding its quotes. Nested objects are skipped.
// The last occurrence wins, as it does for json.Unmarshal.
func topLevelString(content []byte, key string) (int, int, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedVersion, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return 0, 0, ErrVersionNotFound
	}

	start, end := -1, -1
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedVersion, err)
		}
		if k, _ := tok.(string); k != key {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return 0, 0, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedVersion, err)
			}
			continue
		}

		before := int(dec.InputOffset())
		val, err := dec.Token()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedVersion, err)
		}
		s, ok := val.(string)
		if !ok {
			return 0, 0, ErrVersionNotFound
		}
		after := int(dec.InputOffset())
		q := bytes.IndexByte(content[before:after], '"')
		if q < 0 || string(content[before+q+1:after-1]) != s {
			// Escaped literal; the raw bytes differ from the decoded value.
			return 0, 0, ErrVersionNotFound
		}
		start, end = before+q+1, after-1
	}
	if start < 0 {
		return 0, 0, ErrVersionNotFound
	}
	return start, end, nil
}

// =============================================================================
// TOML (pyproject.toml)
// =============================================================================

var (
	tomlVersionRegex = regexp.MustCompile(`^(\s*version\s*=\s*")([^"]*)(")`)
	tomlHeaderRegex  = regexp.MustCompile(`^\s*(\[\[?)\s*([^\[\]]+?)\s*\]\]?\s*(#[^\n]*)?\s*$`)
)

type tomlFormat struct{}

func (tomlFormat) Name() string { return FormatTOML }

func (f tomlFormat) Extract(content []byte) (Version, error) {
	v, _, err := f.locate(content)
	return v, err
}

// locate returns the version and the table that holds it: [project] first,
// then [tool.poetry].
func (tomlFormat) locate(content []byte) (Version, string, error) {
	var doc struct {
		Project struct {
			Version string `toml:"version"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Version string `toml:"version"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return Version{}, "", fmt.Errorf("%w: invalid TOML: %v", ErrMalformedVersion, err)
	}
	var (
		raw   string
		table string
	)
	switch {
	case doc.Project.Version != "":
		raw, table = doc.Project.Version, "project"
	case doc.Tool.Poetry.Version != "":
		raw, table = doc.Tool.Poetry.Version, "tool.poetry"
	default:
		return Version{}, "", ErrVersionNotFound
	}
	v, err := Parse(raw)
	return v, table, err
}

func (f tomlFormat) Replace(content []byte, v Version) ([]byte, error) {
	old, table, err := f.locate(content)
	if err != nil {
		return nil, err
	}

	current := ""
	offset := 0
	for _, line := range bytes.SplitAfter(content, []byte("\n")) {
		if h := tomlHeaderRegex.FindSubmatch(line); h != nil {
			current = string(h[2])
			if string(h[1]) == "[[" {
				current = "[[" + current
			}
		} else if current == table {
			if m := tomlVersionRegex.FindSubmatchIndex(line); m != nil && string(line[m[4]:m[5]]) == old.String() {
				return splice(content, offset+m[4], offset+m[5], v), nil
			}
		}
		offset += len(line)
	}
	return nil, ErrVersionNotFound
}

// =============================================================================
// Python (__version__ = "X.Y.Z")
// =============================================================================

var pythonVersionRegex = regexp.MustCompile(`(?m)^(__version__\s*=\s*["'])([^"']*)(["'])`)

type pythonFormat struct{}

func (pythonFormat) Name() string { return FormatPython }

func (pythonFormat) Extract(content []byte) (Version, error) {
	m := pythonVersionRegex.FindSubmatch(content)
	if m == nil {
		return Version{}, ErrVersionNotFound
	}
	return Parse(string(m[2]))
}

func (f pythonFormat) Replace(content []byte, v Version) ([]byte, error) {
	old, err := f.Extract(content)
	if err != nil {
		return nil, err
	}
	return replaceQuoted(pythonVersionRegex, content, old, v)
}

// =============================================================================
// Plain (VERSION)
// =============================================================================

type plainFormat struct{}

func (plainFormat) Name() string { return FormatPlain }

func (plainFormat) Extract(content []byte) (Version, error) {
	s := bytes.TrimSpace(content)
	if len(s) == 0 {
		return Version{}, ErrVersionNotFound
	}
	return Parse(string(s))
}

func (f plainFormat) Replace(content []byte, v Version) ([]byte, error) {
	if _, err := f.Extract(content); err != nil {
		return nil, err
	}
	return []byte(v.String() + "\n"), nil
}
