//go:build debug

package gassert_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/gordian-engine/gledger/gassert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_Enabled(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		rules string
		on    []string
		off   []string
	}{
		{rules: "", off: []string{"a", "a.b"}},
		{rules: "*", on: []string{"a", "a.b.c"}},
		{rules: "gdriver.*", on: []string{"gdriver.commit.version"}, off: []string{"gdriver", "gstore.x"}},
		{rules: "gdriver.commit.version", on: []string{"gdriver.commit.version"}, off: []string{"gdriver.commit"}},
		{
			rules: "gdriver.*,!gdriver.commit.version",
			on:    []string{"gdriver.commit.other"},
			off:   []string{"gdriver.commit.version"},
		},
	} {
		e, err := gassert.EnvironmentFromString(tc.rules)
		require.NoError(t, err, tc.rules)
		for _, p := range tc.on {
			require.Truef(t, e.Enabled(p), "rules %q path %q", tc.rules, p)
		}
		for _, p := range tc.off {
			require.Falsef(t, e.Enabled(p), "rules %q path %q", tc.rules, p)
		}
	}
}

func TestEnvironmentFromString_invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"a,,b",
		"a..b",
		"a.*.b",
		"a.b!",
		"!a.*",
		"a*",
	} {
		_, err := gassert.EnvironmentFromString(in)
		require.Errorf(t, err, "input %q", in)
	}
}

func TestEnvironment_HandleAssertionFailure(t *testing.T) {
	t.Parallel()

	e, err := gassert.EnvironmentFromString("*")
	require.NoError(t, err)

	require.Panics(t, func() {
		e.HandleAssertionFailure(errors.New("boom"))
	})

	var buf bytes.Buffer
	e.OnlyLogFailures(slog.New(slog.NewTextHandler(&buf, nil)))
	e.HandleAssertionFailure(errors.New("boom"))
	require.Contains(t, buf.String(), "boom")
}
