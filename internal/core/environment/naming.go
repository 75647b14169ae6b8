package environment

import (
	"fmt"
	"strings"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ComposeProject returns the compose project name for an environment.
// Pattern: {project}-{environment}
//
// Example:
//
//	ComposeProject("shipyard", Staging) // returns "shipyard-staging"
func ComposeProject(project string, id ID) string {
	return fmt.Sprintf("%s-%s", sanitizeProject(project), id)
}

// ContainerPrefix returns the prefix every container of the environment carries.
// Compose names containers {project}-{service}-{n}, so the trailing separator
// keeps "shipyard-staging-" distinct from a "shipyard-stagingx" project.
//
// Example:
//
//	ContainerPrefix("shipyard", Local) // returns "shipyard-local-"
func ContainerPrefix(project string, id ID) string {
	return ComposeProject(project, id) + "-"
}

// ContainerPrefix returns the environment's container prefix for project.
func (e Environment) ContainerPrefix(project string) string {
	return ContainerPrefix(project, e.ID)
}

// sanitizeProject lowercases and replaces characters compose rejects in project names.
func sanitizeProject(project string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(project)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
