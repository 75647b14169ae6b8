package environment

import (
	"fmt"
	"strings"
)

// =============================================================================
// Environment Identity
// =============================================================================

// ID is the identity of one of the three fixed deployment environments.
type ID string

const (
	Production ID = "production"
	Staging    ID = "staging"
	Local      ID = "local"
)

// PortRangeSize is the number of ports reserved for each environment.
const PortRangeSize = 100

// All returns every environment identity in stop order.
func All() []ID {
	return []ID{Production, Staging, Local}
}

// Valid reports whether id is one of the fixed identities.
func (id ID) Valid() bool {
	switch id {
	case Production, Staging, Local:
		return true
	}
	return false
}

// String returns the identity as a string.
func (id ID) String() string {
	return string(id)
}

// Parse converts a user-supplied name into an ID.
// Common abbreviations ("prod", "stage", "dev") are accepted.
func Parse(name string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod":
		return Production, nil
	case "staging", "stage":
		return Staging, nil
	case "local", "dev":
		return Local, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
}

// =============================================================================
// Environment Attributes
// =============================================================================

// Environment holds the fixed attributes of one deployment environment.
type Environment struct {
	ID       ID
	BasePort int

	// Branch is the integration branch the environment deploys.
	// Empty for local, which runs whatever is checked out.
	Branch string

	// BaseFiles are the container-definition files always in the file set,
	// relative to the project directory.
	BaseFiles []string

	// DebugOverlay is appended to the file set in debug mode.
	// Empty for local, which always runs live-editable.
	DebugOverlay string
}

// PortRange returns the first and last port reserved for the environment.
func (e Environment) PortRange() (first, last int) {
	return e.BasePort, e.BasePort + PortRangeSize - 1
}

// Port returns the port at offset within the environment's range.
func (e Environment) Port(offset int) (int, error) {
	if offset < 0 || offset >= PortRangeSize {
		return 0, fmt.Errorf("port offset %d outside range 0-%d", offset, PortRangeSize-1)
	}
	return e.BasePort + offset, nil
}

// IsLocal reports whether the environment is the local one.
func (e Environment) IsLocal() bool {
	return e.ID == Local
}

// SupportsWorktree reports whether debug mode uses a secondary checkout.
func (e Environment) SupportsWorktree() bool {
	return e.ID != Local
}

// DefinitionFiles returns the conventional file set for an environment.
//
// Example:
//
//	DefinitionFiles(Staging) // ["docker-compose.staging.yml"], "docker-compose.staging.debug.yml"
func DefinitionFiles(id ID) (base []string, overlay string) {
	base = []string{fmt.Sprintf("docker-compose.%s.yml", id)}
	if id != Local {
		overlay = fmt.Sprintf("docker-compose.%s.debug.yml", id)
	}
	return base, overlay
}
