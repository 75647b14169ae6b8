// Package fingerprint hashes dependency manifests into a rebuild cache key.
// This is part of the Functional Core - all functions are pure with no I/O.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"path"
	"sort"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/core/version"
	"golang.org/x/crypto/blake2b"
)

// commonManifests are hashed for every environment.
var commonManifests = []string{
	"package.json",
	"package-lock.json",
	"pyproject.toml",
	"poetry.lock",
	"requirements.txt",
	"Dockerfile",
}

// Manifests returns the dependency-manifest paths hashed for an environment,
// relative to the project directory.
func Manifests(id environment.ID) []string {
	out := make([]string, 0, len(commonManifests)+1)
	out = append(out, commonManifests...)
	out = append(out, fmt.Sprintf("Dockerfile.%s", id))
	return out
}

// versionedManifests carry the project version next to their dependencies.
var versionedManifests = map[string]string{
	"package.json":      version.FormatJSON,
	"package-lock.json": version.FormatJSON,
	"pyproject.toml":    version.FormatTOML,
}

// withoutVersion pins the project version literal to 0.0.0 so a version bump
// alone does not change the fingerprint. Content without a readable version
// is hashed as is.
func withoutVersion(p string, content []byte) []byte {
	name, ok := versionedManifests[path.Base(p)]
	if !ok {
		return content
	}
	f, err := version.LookupFormat(name)
	if err != nil {
		return content
	}
	out, err := f.Replace(content, version.Version{})
	if err != nil {
		return content
	}
	return out
}

// Entry is one manifest's contribution to a fingerprint.
type Entry struct {
	Path    string
	Content []byte
	// Missing marks a manifest that does not exist; it still changes the hash
	// so adding or deleting a manifest invalidates the key.
	Missing bool
}

// Compute returns the hex BLAKE2b-256 hash over entries, independent of their order.
// Each entry is length-prefixed so concatenation boundaries are unambiguous.
// The project version in package.json, package-lock.json and pyproject.toml
// is left out.
func Compute(entries []Entry) string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for oversized keys
		panic(err)
	}
	var n [8]byte
	for _, e := range sorted {
		binary.BigEndian.PutUint64(n[:], uint64(len(e.Path)))
		h.Write(n[:])
		h.Write([]byte(e.Path))
		if e.Missing {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		content := withoutVersion(e.Path, e.Content)
		binary.BigEndian.PutUint64(n[:], uint64(len(content)))
		h.Write(n[:])
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
