// Package gabci contains the types exchanged between the consensus engine
// and the ledger driver.
//
// The consensus engine produces one [Request] per call,
// wraps it in an [Envelope] together with a one-shot response channel,
// and sends the envelope to the driver over an ordinary Go channel.
// The driver answers each envelope with exactly one [Response]
// of the matching variant.
//
// Block headers, consensus parameters and events are the CometBFT API types,
// so that an integration layer can pass them through without conversion.
package gabci
