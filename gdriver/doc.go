// Package gdriver contains the block execution driver:
// the application-side loop that turns the consensus engine's ordered requests
// into state transitions on a [gapp.App] and commits on a [gstore.Store].
//
// The consensus engine sends [gabci.Envelope] values on a channel,
// typically through a [Client].
// The [Driver] handles them strictly one at a time, in arrival order,
// and answers each with exactly one response.
//
// A failing transaction is reported in its DeliverTx response and execution continues.
// Every other failure is fatal: the driver logs it, sends no response,
// terminates the node's watchdog if configured, and stops.
// [*Driver.Err] then reports the [*FatalError].
package gdriver
