package gwatchdog

import (
	"context"
	"errors"
)

// UnresponsiveError is the context cause when a monitored loop
// did not acknowledge a poll in time.
type UnresponsiveError struct {
	Name string
}

func (e UnresponsiveError) Error() string {
	return "watchdog: " + e.Name + " did not respond within its timeout"
}

// ForcedTerminationError is the context cause after a call to [*Watchdog.Terminate].
type ForcedTerminationError struct {
	Reason string
}

func (e ForcedTerminationError) Error() string {
	return "watchdog: forced termination: " + e.Reason
}

// IsTermination reports whether ctx was cancelled by a watchdog,
// either by an unresponsive loop or by an explicit Terminate call.
func IsTermination(ctx context.Context) bool {
	cause := context.Cause(ctx)
	if cause == nil {
		return false
	}

	var ue UnresponsiveError
	var fte ForcedTerminationError
	return errors.As(cause, &ue) || errors.As(cause, &fte)
}

// TerminationReason returns the reason passed to [*Watchdog.Terminate]
// if that is what cancelled ctx.
func TerminationReason(ctx context.Context) (string, bool) {
	var fte ForcedTerminationError
	if !errors.As(context.Cause(ctx), &fte) {
		return "", false
	}
	return fte.Reason, true
}
