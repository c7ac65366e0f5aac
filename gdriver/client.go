package gdriver

import (
	"context"
	"errors"
	"fmt"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ErrDriverStopped is returned by [Client] methods
// when the driver stops before responding.
var ErrDriverStopped = errors.New("driver stopped")

// Client is the producer side of the envelope protocol.
// It is safe for concurrent use,
// though the driver still handles requests one at a time in arrival order.
type Client struct {
	envelopes chan<- gabci.Envelope
	done      <-chan struct{}
	tracer    oteltrace.Tracer
}

// NewClient returns a Client sending on envelopes.
// driverDone should be the driver's [*Driver.Done] channel,
// so that calls fail instead of hanging after a fatal error.
func NewClient(envelopes chan<- gabci.Envelope, driverDone <-chan struct{}) *Client {
	return &Client{
		envelopes: envelopes,
		done:      driverDone,
		tracer:    otel.Tracer(tracerName),
	}
}

// Do sends req and waits for its response.
// ctx bounds only the wait; once the driver receives the request,
// it handles it to completion regardless of ctx.
func (c *Client) Do(ctx context.Context, req gabci.Request) (gabci.Response, error) {
	kind := gabci.RequestKind(req)
	ctx, span := c.tracer.Start(ctx, "gledger.client."+kind)
	defer span.End()

	env := gabci.NewEnvelope(ctx, req)

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.done:
		return nil, ErrDriverStopped
	case c.envelopes <- env:
	}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case resp := <-env.Resp:
		return resp, nil
	case <-c.done:
		// The response may have been sent just before the driver stopped.
		select {
		case resp := <-env.Resp:
			return resp, nil
		default:
			return nil, ErrDriverStopped
		}
	}
}

func do[R gabci.Response](ctx context.Context, c *Client, req gabci.Request) (R, error) {
	var zero R
	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	r, ok := resp.(R)
	if !ok {
		return zero, fmt.Errorf("BUG: got %T in response to %s", resp, gabci.RequestKind(req))
	}
	return r, nil
}

func (c *Client) InitChain(ctx context.Context, req gabci.InitChainRequest) (gabci.InitChainResponse, error) {
	return do[gabci.InitChainResponse](ctx, c, req)
}

func (c *Client) BeginBlock(ctx context.Context, header cometapitypes.Header) (gabci.BeginBlockResponse, error) {
	return do[gabci.BeginBlockResponse](ctx, c, gabci.BeginBlockRequest{Header: header})
}

func (c *Client) DeliverTx(ctx context.Context, tx []byte) (gabci.DeliverTxResponse, error) {
	return do[gabci.DeliverTxResponse](ctx, c, gabci.DeliverTxRequest{Tx: tx})
}

func (c *Client) EndBlock(ctx context.Context, height int64) (gabci.EndBlockResponse, error) {
	return do[gabci.EndBlockResponse](ctx, c, gabci.EndBlockRequest{Height: height})
}

func (c *Client) Commit(ctx context.Context) (gabci.CommitResponse, error) {
	return do[gabci.CommitResponse](ctx, c, gabci.CommitRequest{})
}

func (c *Client) PrepareProposal(ctx context.Context, req gabci.PrepareProposalRequest) (gabci.PrepareProposalResponse, error) {
	return do[gabci.PrepareProposalResponse](ctx, c, req)
}

func (c *Client) ProcessProposal(ctx context.Context, req gabci.ProcessProposalRequest) (gabci.ProcessProposalResponse, error) {
	return do[gabci.ProcessProposalResponse](ctx, c, req)
}

// BlockResult holds every response produced while executing one block.
type BlockResult struct {
	BeginBlock gabci.BeginBlockResponse
	Txs        []gabci.DeliverTxResponse
	EndBlock   gabci.EndBlockResponse
	Commit     gabci.CommitResponse
}

// ExecuteBlock runs the full lifecycle of a decided block:
// BeginBlock, DeliverTx for each transaction in order, EndBlock, and Commit.
func (c *Client) ExecuteBlock(ctx context.Context, header cometapitypes.Header, txs [][]byte) (BlockResult, error) {
	var res BlockResult
	var err error

	res.BeginBlock, err = c.BeginBlock(ctx, header)
	if err != nil {
		return res, fmt.Errorf("begin block %d: %w", header.Height, err)
	}

	res.Txs = make([]gabci.DeliverTxResponse, len(txs))
	for i, tx := range txs {
		res.Txs[i], err = c.DeliverTx(ctx, tx)
		if err != nil {
			return res, fmt.Errorf("deliver tx %d of block %d: %w", i, header.Height, err)
		}
	}

	res.EndBlock, err = c.EndBlock(ctx, header.Height)
	if err != nil {
		return res, fmt.Errorf("end block %d: %w", header.Height, err)
	}

	res.Commit, err = c.Commit(ctx)
	if err != nil {
		return res, fmt.Errorf("commit block %d: %w", header.Height, err)
	}
	return res, nil
}
