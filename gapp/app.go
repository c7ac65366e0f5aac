// Package gapp defines the state transition engine consumed by the ledger driver,
// and the genesis formats shared by engines and tools.
package gapp

import (
	"context"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gstore"
)

// App is a deterministic state transition engine.
//
// The driver calls App from a single goroutine,
// in block order: BeginBlock, zero or more DeliverTx, EndBlock, Commit.
// Any error other than from DeliverTx halts the node,
// so engines must only return errors from those methods
// for conditions that make further progress unsafe.
type App interface {
	// InitChain processes the genesis configuration.
	// It is only called on an uninitialized store.
	InitChain(ctx context.Context, genesis GenesisContent) error

	BeginBlock(ctx context.Context, header cometapitypes.Header) ([]gabci.Event, error)

	// DeliverTx applies one transaction.
	// An error rejects only this transaction; the block continues.
	// Engines should return wrapped errors, as the full chain is reported to the client.
	DeliverTx(ctx context.Context, tx []byte) ([]gabci.Event, error)

	EndBlock(ctx context.Context, height int64) ([]gabci.Event, error)

	// ValidatorUpdates returns the complete current validator set.
	// It reflects every change applied so far, including by the last EndBlock.
	ValidatorUpdates() []gabci.Validator

	// Commit writes pending state to store and returns the store's new root hash.
	Commit(ctx context.Context, store gstore.Store) ([]byte, error)
}
