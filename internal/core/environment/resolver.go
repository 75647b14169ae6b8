package environment

import (
	"fmt"
	"path"
	"strings"
)

// =============================================================================
// Rule Table
// =============================================================================

// Ports holds the base port of each environment.
type Ports struct {
	Production int
	Staging    int
	Local      int
}

// Rules is the ordered branch-to-environment rule table.
type Rules struct {
	ProductionBranch string
	StagingBranch    string
	LocalPatterns    []string
	Ports            Ports
}

// DefaultRules returns the conventional rule table.
func DefaultRules() Rules {
	return Rules{
		ProductionBranch: "main",
		StagingBranch:    "develop",
		LocalPatterns:    []string{"feature/*", "hotfix/*", "bugfix/*", "release/*", "local/*"},
		Ports: Ports{
			Production: 3000,
			Staging:    3100,
			Local:      3200,
		},
	}
}

// Validate checks that branches are distinct and port ranges are disjoint.
func (r Rules) Validate() error {
	if strings.TrimSpace(r.ProductionBranch) == "" {
		return &RulesError{Field: "production_branch", Message: "must not be empty"}
	}
	if strings.TrimSpace(r.StagingBranch) == "" {
		return &RulesError{Field: "staging_branch", Message: "must not be empty"}
	}
	if r.ProductionBranch == r.StagingBranch {
		return &RulesError{Field: "staging_branch", Message: "must differ from production_branch"}
	}
	for _, p := range r.LocalPatterns {
		if _, err := path.Match(p, ""); err != nil {
			return &RulesError{Field: "local_patterns", Message: fmt.Sprintf("bad pattern %q", p)}
		}
	}

	bases := map[ID]int{
		Production: r.Ports.Production,
		Staging:    r.Ports.Staging,
		Local:      r.Ports.Local,
	}
	for id, base := range bases {
		if base <= 0 || base+PortRangeSize-1 > 65535 {
			return &RulesError{Field: "ports." + string(id), Message: fmt.Sprintf("base port %d out of range", base)}
		}
	}
	ids := All()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := bases[ids[i]], bases[ids[j]]
			if a < b+PortRangeSize && b < a+PortRangeSize {
				return &RulesError{
					Field:   "ports",
					Message: fmt.Sprintf("%s (%d) and %s (%d) ranges overlap", ids[i], a, ids[j], b),
				}
			}
		}
	}
	return nil
}

// =============================================================================
// Resolver
// =============================================================================

// Resolution is the outcome of resolving a branch name.
type Resolution struct {
	ID ID
	// Rule names the rule that matched: "exact:<branch>", "pattern:<glob>" or "default".
	Rule string
}

// Resolver applies a validated rule table.
type Resolver struct {
	rules Rules
}

// NewResolver validates rules and returns a Resolver.
func NewResolver(rules Rules) (*Resolver, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{rules: rules}, nil
}

// Rules returns the rule table in use.
func (r *Resolver) Rules() Rules {
	return r.rules
}

// Resolve maps a branch name to an environment.
// Exact integration-branch matches win; everything else is local.
func (r *Resolver) Resolve(branch string) Resolution {
	b := normalizeBranch(branch)
	switch b {
	case r.rules.ProductionBranch:
		return Resolution{ID: Production, Rule: "exact:" + b}
	case r.rules.StagingBranch:
		return Resolution{ID: Staging, Rule: "exact:" + b}
	}
	for _, p := range r.rules.LocalPatterns {
		if matchBranch(p, b) {
			return Resolution{ID: Local, Rule: "pattern:" + p}
		}
	}
	return Resolution{ID: Local, Rule: "default"}
}

// ForBranch is Resolve without the rule detail.
func (r *Resolver) ForBranch(branch string) ID {
	return r.Resolve(branch).ID
}

// Lookup returns the attributes of an environment.
// An unknown identity is a programmer error and is reported as ErrUnknownEnvironment.
func (r *Resolver) Lookup(id ID) (Environment, error) {
	base, overlay := DefinitionFiles(id)
	switch id {
	case Production:
		return Environment{ID: id, BasePort: r.rules.Ports.Production, Branch: r.rules.ProductionBranch, BaseFiles: base, DebugOverlay: overlay}, nil
	case Staging:
		return Environment{ID: id, BasePort: r.rules.Ports.Staging, Branch: r.rules.StagingBranch, BaseFiles: base, DebugOverlay: overlay}, nil
	case Local:
		return Environment{ID: id, BasePort: r.rules.Ports.Local, BaseFiles: base}, nil
	}
	return Environment{}, fmt.Errorf("%w: %q", ErrUnknownEnvironment, id)
}

// MustLookup is Lookup for identities already known to be valid.
func (r *Resolver) MustLookup(id ID) Environment {
	env, err := r.Lookup(id)
	if err != nil {
		panic(err)
	}
	return env
}

// TargetBranch returns the integration branch bound to id, or "" for local.
func (r *Resolver) TargetBranch(id ID) (string, error) {
	env, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return env.Branch, nil
}

func normalizeBranch(branch string) string {
	b := strings.TrimSpace(branch)
	return strings.TrimPrefix(b, "refs/heads/")
}

// matchBranch treats a trailing "/*" as a prefix match so nested branch names
// such as feature/team/login still belong to the family.
func matchBranch(pattern, branch string) bool {
	if ok, _ := path.Match(pattern, branch); ok {
		return ok
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(branch, prefix) && len(branch) > len(prefix)
	}
	return false
}
