package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packageJSON = `{
  "name": "web",
  "version": "1.2.3",
  "engines": {
    "node": ">=20"
  },
  "devDependencies": {
    "vite": "5.0.0"
  }
}
`

const pyproject = `[build-system]
requires = ["hatchling"]

[project]
name = "api"
version = "1.2.3"
dependencies = ["fastapi"]
`

const initPy = `"""API package."""

__version__ = '1.2.3'
`

func mustFormat(t *testing.T, name string) Format {
	t.Helper()
	f, err := LookupFormat(name)
	require.NoError(t, err)
	return f
}

// =============================================================================
// Extract Tests
// =============================================================================

func TestExtract_AllFormats(t *testing.T) {
	tests := []struct {
		format  string
		content string
	}{
		{FormatJSON, packageJSON},
		{FormatTOML, pyproject},
		{FormatPython, initPy},
		{FormatPlain, "1.2.3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			v, err := mustFormat(t, tt.format).Extract([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, MustParse("1.2.3"), v)
		})
	}
}

func TestExtract_PoetryLayout(t *testing.T) {
	content := "[tool.poetry]\nname = \"api\"\nversion = \"0.4.0\"\n"
	v, err := mustFormat(t, FormatTOML).Extract([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", v.String())
}

func TestExtract_Missing(t *testing.T) {
	tests := []struct {
		format  string
		content string
	}{
		{FormatJSON, `{"name": "web"}`},
		{FormatTOML, "[project]\nname = \"api\"\n"},
		{FormatPython, "VERSION = '1.2.3'\n"},
		{FormatPlain, "   \n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := mustFormat(t, tt.format).Extract([]byte(tt.content))
			assert.ErrorIs(t, err, ErrVersionNotFound)
		})
	}
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		format  string
		content string
	}{
		{FormatJSON, `{"version": "1.2"}`},
		{FormatJSON, `{"version": `},
		{FormatTOML, "[project]\nversion = \"latest\"\n"},
		{FormatTOML, "[project\nversion = \"1.2.3\"\n"},
		{FormatPython, "__version__ = \"one\"\n"},
		{FormatPlain, "v1.2.3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := mustFormat(t, tt.format).Extract([]byte(tt.content))
			assert.ErrorIs(t, err, ErrMalformedVersion)
		})
	}
}

// =============================================================================
// Replace Tests
// =============================================================================

func TestReplace_PreservesSurroundingText(t *testing.T) {
	next := MustParse("1.3.0")

	out, err := mustFormat(t, FormatJSON).Replace([]byte(packageJSON), next)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"version": "1.3.0",`)
	assert.Contains(t, string(out), `"vite": "5.0.0"`)
	assert.Equal(t, len(packageJSON), len(out))

	out, err = mustFormat(t, FormatTOML).Replace([]byte(pyproject), next)
	require.NoError(t, err)
	assert.Contains(t, string(out), "version = \"1.3.0\"\n")
	assert.Contains(t, string(out), "requires = [\"hatchling\"]")

	out, err = mustFormat(t, FormatPython).Replace([]byte(initPy), next)
	require.NoError(t, err)
	assert.Equal(t, "\"\"\"API package.\"\"\"\n\n__version__ = '1.3.0'\n", string(out))

	out, err = mustFormat(t, FormatPlain).Replace([]byte("1.2.3"), next)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0\n", string(out))
}

func TestReplace_RoundTrip(t *testing.T) {
	next := MustParse("2.0.0")
	for name, content := range map[string]string{
		FormatJSON:   packageJSON,
		FormatTOML:   pyproject,
		FormatPython: initPy,
		FormatPlain:  "1.2.3\n",
	} {
		f := mustFormat(t, name)
		out, err := f.Replace([]byte(content), next)
		require.NoError(t, err, name)
		got, err := f.Extract(out)
		require.NoError(t, err, name)
		assert.Equal(t, next, got, name)
	}
}

func TestReplace_SkipsNestedValueThatDiffers(t *testing.T) {
	content := `{"config": {"version": "9.9.9"}, "version": "1.2.3"}`
	out, err := mustFormat(t, FormatJSON).Replace([]byte(content), MustParse("1.2.4"))
	require.NoError(t, err)
	assert.Equal(t, `{"config": {"version": "9.9.9"}, "version": "1.2.4"}`, string(out))
}

func TestReplace_JSONIgnoresNestedVersionWithSameValue(t *testing.T) {
	content := "{\n  \"config\": {\"version\": \"1.2.3\"},\n  \"version\": \"1.2.3\"\n}\n"
	out, err := Rewrite(mustFormat(t, FormatJSON), []byte(content), MustParse("1.2.4"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"config\": {\"version\": \"1.2.3\"},\n  \"version\": \"1.2.4\"\n}\n", string(out))
}

func TestReplace_TOMLTargetsProjectTable(t *testing.T) {
	content := "[tool.other]\nversion = \"1.2.3\"\n\n[project] # metadata\nname = \"api\"\nversion = \"1.2.3\"\n"
	out, err := Rewrite(mustFormat(t, FormatTOML), []byte(content), MustParse("1.2.4"))
	require.NoError(t, err)
	assert.Equal(t, "[tool.other]\nversion = \"1.2.3\"\n\n[project] # metadata\nname = \"api\"\nversion = \"1.2.4\"\n", string(out))
}

func TestReplace_TOMLPoetryTable(t *testing.T) {
	content := "[tool.black]\nversion = \"0.1.0\"\n\n[tool.poetry]\nversion = \"0.1.0\"\n"
	out, err := Rewrite(mustFormat(t, FormatTOML), []byte(content), MustParse("0.2.0"))
	require.NoError(t, err)
	assert.Equal(t, "[tool.black]\nversion = \"0.1.0\"\n\n[tool.poetry]\nversion = \"0.2.0\"\n", string(out))
}

func TestReplace_TOMLInlineTableIsNotFound(t *testing.T) {
	content := "project = { name = \"api\", version = \"1.2.3\" }\n"
	_, err := Rewrite(mustFormat(t, FormatTOML), []byte(content), MustParse("1.2.4"))
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestRewrite_DetectsMismatch(t *testing.T) {
	_, err := Rewrite(stuckFormat{}, []byte("1.2.3"), MustParse("1.2.4"))
	assert.ErrorIs(t, err, ErrRewriteMismatch)
}

// stuckFormat returns its input unchanged from Replace.
type stuckFormat struct{ plainFormat }

func (stuckFormat) Replace(content []byte, _ Version) ([]byte, error) { return content, nil }

func TestReplace_MalformedFails(t *testing.T) {
	_, err := mustFormat(t, FormatPython).Replace([]byte("nothing here\n"), MustParse("1.0.0"))
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestLookupFormat_Unknown(t *testing.T) {
	_, err := LookupFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Equal(t, []string{"json", "plain", "python", "toml"}, FormatNames())
}

func TestFormatError(t *testing.T) {
	err := NewFormatError("web/package.json", FormatJSON, "version field not found", ErrVersionNotFound)
	assert.Equal(t, "web/package.json (json): version field not found", err.Error())
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
