// Package gwatchdog supervises long-running loops in the node.
//
// A loop opts in through [*Watchdog.Monitor] and is then polled on an interval.
// A loop that fails to acknowledge a poll within its response timeout
// causes the watchdog to cancel the node context it returned from [NewWatchdog].
// Any component may also end the node deliberately with [*Watchdog.Terminate],
// which is how the ledger driver reports an unrecoverable error.
package gwatchdog
