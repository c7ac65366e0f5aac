//go:build debug

package gassert

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Env is a pointer to an assertion environment in debug builds.
type Env = *Environment

// Environment holds parsed rules.
// It is immutable after construction and safe for concurrent use.
type Environment struct {
	prefixes [][]string
	excludes [][]string
	exacts   [][]string

	// Nil means assertion failures panic.
	log *slog.Logger
}

// EnvVar names the environment variable read by [DefaultEnv].
const EnvVar = "GLEDGER_ASSERT"

// DefaultEnv builds an environment from the GLEDGER_ASSERT environment variable,
// or enables everything if the variable is unset.
// It panics on invalid rules.
func DefaultEnv() Env {
	rules, ok := os.LookupEnv(EnvVar)
	if !ok {
		rules = "*"
	}
	e, err := EnvironmentFromString(rules)
	if err != nil {
		panic(fmt.Errorf("invalid %s: %w", EnvVar, err))
	}
	return e
}

// EnvironmentFromString parses a comma-separated rule list.
// The empty string yields an environment with nothing enabled.
func EnvironmentFromString(in string) (*Environment, error) {
	e := new(Environment)
	if in == "" {
		return e, nil
	}

	var errs error
	for _, r := range strings.Split(in, ",") {
		errs = errors.Join(errs, e.addRule(strings.TrimSpace(r)))
	}
	if errs != nil {
		return nil, errs
	}
	return e, nil
}

func (e *Environment) addRule(r string) error {
	switch {
	case r == "":
		return errors.New("empty rule")
	case strings.Contains(r, ".."):
		return fmt.Errorf("rule %q has an empty segment", r)
	}

	if ex, ok := strings.CutPrefix(r, "!"); ok {
		if strings.ContainsAny(ex, "!*") {
			return fmt.Errorf("exclusion rule %q must be an exact path", r)
		}
		e.excludes = append(e.excludes, strings.Split(ex, "."))
		return nil
	}
	if strings.Contains(r, "!") {
		return fmt.Errorf("rule %q: ! is only allowed as the first character", r)
	}

	if r == "*" {
		e.prefixes = append(e.prefixes, []string{})
		return nil
	}
	if p, ok := strings.CutSuffix(r, ".*"); ok && !strings.Contains(p, "*") {
		e.prefixes = append(e.prefixes, strings.Split(p, "."))
		return nil
	}
	if strings.Contains(r, "*") {
		return fmt.Errorf("rule %q: * is only allowed as the last segment", r)
	}

	e.exacts = append(e.exacts, strings.Split(r, "."))
	return nil
}

// OnlyLogFailures makes [*Environment.HandleAssertionFailure] log to log
// instead of panicking. It must be called before concurrent use.
func (e *Environment) OnlyLogFailures(log *slog.Logger) {
	e.log = log
}

// HandleAssertionFailure panics with err,
// or logs it if [*Environment.OnlyLogFailures] was called.
func (e *Environment) HandleAssertionFailure(err error) {
	if err == nil {
		panic(errors.New("BUG: HandleAssertionFailure called with nil error"))
	}
	if e.log == nil {
		panic(fmt.Errorf("assertion failure: %w", err))
	}
	e.log.Error("Assertion failure", "err", err)
}

// Enabled reports whether the dot-separated path is enabled.
func (e *Environment) Enabled(path string) bool {
	parts := strings.Split(path, ".")

	for _, p := range e.exacts {
		if slices.Equal(p, parts) {
			return true
		}
	}

	for _, p := range e.prefixes {
		if len(p) >= len(parts) || !slices.Equal(p, parts[:len(p)]) {
			continue
		}
		return !slices.ContainsFunc(e.excludes, func(ex []string) bool {
			return slices.Equal(ex, parts)
		})
	}

	return false
}
