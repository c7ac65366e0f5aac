//go:build !debug

package gassert

// Env is an empty placeholder in non-debug builds.
type Env struct{}

// DefaultEnv returns the placeholder Env.
func DefaultEnv() Env {
	return Env{}
}
