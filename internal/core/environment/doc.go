// Package environment maps version-control branches to deployment environments.
//
// This package is part of the Functional Core: every function is pure and
// performs no I/O. The imperative shell (internal/shell/orchestrator and
// internal/shell/worktree) asks it which environment a branch belongs to,
// which port range and container-name prefix that environment owns, and
// which container-definition files make up its file set.
//
// # Environments
//
//   - production: bound to the production integration branch
//   - staging: bound to the primary development branch
//   - local: every other branch (feature, hotfix, bugfix, ...)
//
// # Usage
//
//	r, err := environment.NewResolver(environment.DefaultRules())
//	res := r.Resolve("feature/login")  // res.ID == environment.Local
//	env, err := r.Lookup(environment.Staging)
//	prefix := env.ContainerPrefix("shipyard") // "shipyard-staging-"
package environment
