package gabci

import (
	"context"
)

// Envelope is one unit of work sent from the consensus engine to the driver.
type Envelope struct {
	Request Request

	// Resp receives exactly one response on success, and nothing on a fatal error.
	// The driver never blocks sending to Resp,
	// so it must be buffered if the producer may not be waiting on it.
	Resp chan Response

	// Ctx carries request-scoped observability values such as the span context.
	// Its cancellation does not abort handling of the request.
	// A nil Ctx is treated as context.Background.
	Ctx context.Context
}

// NewEnvelope returns an Envelope for req with a 1-buffered response channel.
func NewEnvelope(ctx context.Context, req Request) Envelope {
	return Envelope{
		Request: req,
		Resp:    make(chan Response, 1),
		Ctx:     ctx,
	}
}

// RequestKind returns a stable lowercase name for the variant of req,
// suitable for log keys, metric labels, and span names.
func RequestKind(req Request) string {
	switch req.(type) {
	case InitChainRequest:
		return "init_chain"
	case BeginBlockRequest:
		return "begin_block"
	case DeliverTxRequest:
		return "deliver_tx"
	case EndBlockRequest:
		return "end_block"
	case CommitRequest:
		return "commit"
	case PrepareProposalRequest:
		return "prepare_proposal"
	case ProcessProposalRequest:
		return "process_proposal"
	default:
		return "unknown"
	}
}
