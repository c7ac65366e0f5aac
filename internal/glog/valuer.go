// Package glog contains small helpers for structured logging with log/slog.
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex wraps a byte slice to ensure it serializes as a hex-encoded string.
// Without this, it gets rendered as a Unicode string with embedded escape codes.
type Hex []byte

func (v Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(v))
}

// ShortHex is like [Hex] but only renders the first eight bytes,
// for values such as transactions whose full encoding would flood the log.
type ShortHex []byte

func (v ShortHex) LogValue() slog.Value {
	if len(v) <= 8 {
		return slog.StringValue(hex.EncodeToString(v))
	}
	return slog.StringValue(hex.EncodeToString(v[:8]) + "…")
}
