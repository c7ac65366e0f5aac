// Package gassert gates expensive runtime invariant checks.
//
// Checks are compiled in only with the "debug" build tag.
// In a debug build, an [Env] is produced by [EnvironmentFromString]
// from a comma-separated list of rules, and code asks
// [*Environment.Enabled] with a dot-separated path before checking.
//
// Rules:
//   - "*" enables every path.
//   - "a.b.*" enables every path strictly below "a.b".
//   - "a.b.c" enables exactly that path.
//   - "!a.b.c" disables an exact path that a wildcard would otherwise enable.
//
// In non-debug builds Env is an empty struct without methods,
// so callers must keep their assertion code behind the same build tag.
package gassert
