package gdriver

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/internal/glog"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func (d *Driver) handleInitChain(ctx context.Context, req gabci.InitChainRequest) (gabci.InitChainResponse, error) {
	state, err := gapp.ParseGenesisAppState(req.AppStateBytes)
	if err != nil {
		return gabci.InitChainResponse{}, fmt.Errorf("invalid genesis app state: %w", err)
	}

	var appHash []byte
	if state.IsCheckpoint() {
		// State was restored out of band; the store is authoritative.
		appHash = d.store.RootHash()
		if !bytes.Equal(appHash, state.Checkpoint) {
			d.log.Warn(
				"Genesis checkpoint does not match store root hash; using store hash",
				"checkpoint", glog.Hex(state.Checkpoint),
				"store_root_hash", glog.Hex(appHash),
				"store_version", d.store.LatestVersion(),
			)
		}
	} else {
		if v := d.store.LatestVersion(); v != gstore.UninitializedVersion {
			return gabci.InitChainResponse{}, fmt.Errorf(
				"cannot apply genesis content at store version %d: %w", v, ErrAlreadyInitialized,
			)
		}

		if err := d.app.InitChain(ctx, state.Content); err != nil {
			return gabci.InitChainResponse{}, fmt.Errorf("app failed to initialize chain: %w", err)
		}

		appHash, err = d.commit(ctx)
		if err != nil {
			return gabci.InitChainResponse{}, fmt.Errorf("failed to commit genesis state: %w", err)
		}
	}

	// Only read after genesis processing, which may have set the validators.
	vals := d.app.ValidatorUpdates()

	d.log.Info(
		"Initialized chain",
		"chain_id", req.ChainID,
		"initial_height", req.InitialHeight,
		"from_checkpoint", state.IsCheckpoint(),
		"n_vals", len(vals),
		"app_hash", glog.Hex(appHash),
	)

	return gabci.InitChainResponse{
		ConsensusParams: req.ConsensusParams,
		Validators:      vals,
		AppHash:         appHash,
	}, nil
}

func (d *Driver) handleBeginBlock(ctx context.Context, req gabci.BeginBlockRequest) (gabci.BeginBlockResponse, error) {
	oteltrace.SpanFromContext(ctx).SetAttributes(attribute.Int64("gledger.height", req.Header.Height))
	d.height = req.Header.Height

	events, err := d.app.BeginBlock(ctx, req.Header)
	if err != nil {
		return gabci.BeginBlockResponse{}, fmt.Errorf("app failed to begin block %d: %w", req.Header.Height, err)
	}
	d.traceEvents(ctx, "begin_block", events)

	return gabci.BeginBlockResponse{Events: events}, nil
}

// handleDeliverTx cannot fail;
// a rejected transaction is reported in the response.
func (d *Driver) handleDeliverTx(ctx context.Context, req gabci.DeliverTxRequest) gabci.DeliverTxResponse {
	events, err := d.app.DeliverTx(ctx, req.Tx)
	if err != nil {
		d.metrics.deliverTxFailed()

		msg := errorChain(err)
		if msg == "" {
			msg = fmt.Sprintf("transaction failed (%T)", err)
		}

		oteltrace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("gledger.tx.code", int64(gabci.CodeTxFailed)),
		)
		d.log.Info("Transaction failed", "tx", glog.ShortHex(req.Tx), "err", err)

		return gabci.DeliverTxResponse{
			Code: gabci.CodeTxFailed,
			Log:  msg,
		}
	}

	d.traceEvents(ctx, "deliver_tx", events)
	return gabci.DeliverTxResponse{
		Code:   gabci.CodeOK,
		Events: events,
	}
}

func (d *Driver) handleEndBlock(ctx context.Context, req gabci.EndBlockRequest) (gabci.EndBlockResponse, error) {
	events, err := d.app.EndBlock(ctx, req.Height)
	if err != nil {
		return gabci.EndBlockResponse{}, fmt.Errorf("app failed to end block %d: %w", req.Height, err)
	}
	d.traceEvents(ctx, "end_block", events)

	// EndBlock may have changed the validator set, so this must come after it.
	vals := d.app.ValidatorUpdates()

	return gabci.EndBlockResponse{
		ValidatorUpdates: vals,
		Events:           events,
	}, nil
}

func (d *Driver) handleCommit(ctx context.Context) (gabci.CommitResponse, error) {
	appHash, err := d.commit(ctx)
	if err != nil {
		return gabci.CommitResponse{}, err
	}

	return gabci.CommitResponse{
		AppHash:      appHash,
		RetainHeight: 0,
	}, nil
}

// commit has the app commit to the store, and records the resulting version.
func (d *Driver) commit(ctx context.Context) ([]byte, error) {
	before := d.store.LatestVersion()

	appHash, err := d.app.Commit(ctx, d.store)
	if err != nil {
		return nil, fmt.Errorf("app failed to commit: %w", err)
	}

	after := d.store.LatestVersion()
	d.assertCommitVersion(before, after)
	d.metrics.committed(after)

	oteltrace.SpanFromContext(ctx).SetAttributes(attribute.Int64("gledger.version", int64(after)))
	glog.HV(d.log, d.height, after).Debug("Committed", "app_hash", glog.Hex(appHash))

	return appHash, nil
}

func (d *Driver) handlePrepareProposal(ctx context.Context, req gabci.PrepareProposalRequest) (gabci.PrepareProposalResponse, error) {
	txs, err := PackProposal(req.Txs, req.MaxTxBytes)
	if err != nil {
		return gabci.PrepareProposalResponse{}, err
	}

	d.log.Debug(
		"Prepared proposal",
		"height", req.Height,
		"n_candidates", len(req.Txs),
		"n_included", len(txs),
		"max_tx_bytes", req.MaxTxBytes,
	)
	return gabci.PrepareProposalResponse{Txs: txs}, nil
}

func (d *Driver) handleProcessProposal(ctx context.Context, req gabci.ProcessProposalRequest) (gabci.ProcessProposalResponse, error) {
	status, err := d.policy.ProcessProposal(ctx, req.Txs, req.Height)
	if err != nil {
		return gabci.ProcessProposalResponse{}, fmt.Errorf("proposal policy failed: %w", err)
	}

	if status != gabci.ProposalAccept {
		d.log.Info("Rejecting proposal", "height", req.Height, "n_txs", len(req.Txs), "status", status)
	}
	return gabci.ProcessProposalResponse{Status: status}, nil
}

// errorChain formats err followed by every cause in its Unwrap tree
// whose text does not already appear in the message.
func errorChain(err error) string {
	msg := err.Error()

	var walk func(error)
	walk = func(e error) {
		var causes []error
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			causes = u.Unwrap()
		case interface{ Unwrap() error }:
			causes = []error{u.Unwrap()}
		}

		for _, c := range causes {
			if c == nil {
				continue
			}
			if cm := c.Error(); cm != "" && !strings.Contains(msg, cm) {
				if msg == "" {
					msg = cm
				} else {
					msg += ": " + cm
				}
			}
			walk(c)
		}
	}
	walk(err)

	return msg
}
