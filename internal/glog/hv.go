package glog

import "log/slog"

// HV returns a copy of log that includes fields for the given
// consensus height and store version.
//
// The two counters advance together but are not numerically equal,
// so logs around commits should carry both.
func HV(log *slog.Logger, height int64, version uint64) *slog.Logger {
	return log.With("height", height, "version", version)
}
