// Package gapptest contains a scripted [gapp.App] for driver tests.
package gapptest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gstore"
)

// App records every call it receives and lets tests inject
// events, errors, and validator sets.
//
// By default every method succeeds,
// and Commit writes one change recording the number of calls so far,
// so that consecutive commits produce distinct hashes.
//
// Fields must be set before the driver starts;
// the call log may be read concurrently through [*App.Calls].
type App struct {
	// Optional hooks. A nil hook means success with no events.
	InitChainFn  func(ctx context.Context, genesis gapp.GenesisContent) error
	BeginBlockFn func(ctx context.Context, header cometapitypes.Header) ([]gabci.Event, error)
	DeliverTxFn  func(ctx context.Context, tx []byte) ([]gabci.Event, error)
	EndBlockFn   func(ctx context.Context, height int64) ([]gabci.Event, error)
	CommitFn     func(ctx context.Context, store gstore.Store) ([]byte, error)

	// Returned by ValidatorUpdates.
	// The driver must read it only after InitChain and EndBlock return,
	// which hooks can verify by changing it.
	Validators []gabci.Validator

	mu    sync.Mutex
	calls []string
}

var _ gapp.App = (*App)(nil)

func (a *App) record(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls, such as "deliver_tx:abc".
func (a *App) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

func (a *App) InitChain(ctx context.Context, genesis gapp.GenesisContent) error {
	a.record("init_chain:%s", genesis)
	if a.InitChainFn != nil {
		return a.InitChainFn(ctx, genesis)
	}
	return nil
}

func (a *App) BeginBlock(ctx context.Context, header cometapitypes.Header) ([]gabci.Event, error) {
	a.record("begin_block:%d", header.Height)
	if a.BeginBlockFn != nil {
		return a.BeginBlockFn(ctx, header)
	}
	return nil, nil
}

func (a *App) DeliverTx(ctx context.Context, tx []byte) ([]gabci.Event, error) {
	a.record("deliver_tx:%s", tx)
	if a.DeliverTxFn != nil {
		return a.DeliverTxFn(ctx, tx)
	}
	return nil, nil
}

func (a *App) EndBlock(ctx context.Context, height int64) ([]gabci.Event, error) {
	a.record("end_block:%d", height)
	if a.EndBlockFn != nil {
		return a.EndBlockFn(ctx, height)
	}
	return nil, nil
}

func (a *App) ValidatorUpdates() []gabci.Validator {
	a.record("validator_updates")
	return slices.Clone(a.Validators)
}

func (a *App) Commit(ctx context.Context, store gstore.Store) ([]byte, error) {
	a.record("commit")
	if a.CommitFn != nil {
		return a.CommitFn(ctx, store)
	}

	n := len(a.Calls())
	_, h, err := store.Commit(ctx, []gstore.Change{
		{Key: []byte("calls"), Value: []byte(fmt.Sprint(n))},
	})
	return h, err
}
