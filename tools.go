//go:build tools

// For the tools.go pattern, see:
// https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module

package gledger

import (
	// For stringer, used by go:generate in gabci.
	_ "golang.org/x/tools/cmd/stringer"
)
