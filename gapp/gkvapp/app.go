// Package gkvapp is a reference state transition engine:
// a token ledger with a stake-weighted validator set.
//
// Transactions are CBOR-encoded [Tx] values.
// Balances live under [AccountPrefix] and validator powers under [ValidatorPrefix],
// both as 8-byte big-endian integers.
package gkvapp

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/internal/glog"
)

var (
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrSelfTransfer      = errors.New("sender and recipient are the same account")
	ErrEmptyValidatorSet = errors.New("change would leave the validator set empty")
	ErrBlockInProgress   = errors.New("previous block was not committed")
	ErrNoBlock           = errors.New("no block in progress")
)

// InsufficientFundsError is returned for a transfer exceeding the sender's balance.
type InsufficientFundsError struct {
	Account    string
	Have, Want uint64
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %q has %d, needs %d", e.Account, e.Have, e.Want)
}

// App implements [gapp.App].
type App struct {
	log *slog.Logger
	reg *gcrypto.Registry

	// Committed state that pending writes are layered over.
	base gstore.Snapshot

	// Uncommitted writes by key; a nil value is a deletion.
	pending map[string][]byte

	// Sorted by descending power, then key.
	validators []gabci.Validator

	// Power changes applied at EndBlock, in delivery order.
	queued []gabci.Validator

	height  int64
	inBlock bool
}

var _ gapp.App = (*App)(nil)

// New returns an App over the latest state of store,
// loading the validator set from it.
func New(ctx context.Context, log *slog.Logger, store gstore.Store, reg *gcrypto.Registry) (*App, error) {
	a := &App{
		log:     log,
		reg:     reg,
		base:    store.LatestSnapshot(),
		pending: map[string][]byte{},
	}

	vals, err := LoadValidators(ctx, a.base, reg)
	if err != nil {
		return nil, err
	}
	a.validators = vals

	if b, err := a.base.Get(ctx, []byte(metaHeightKey)); err == nil {
		h, err := decodeUint64(b)
		if err != nil {
			return nil, fmt.Errorf("invalid stored height: %w", err)
		}
		a.height = int64(h)
	} else if !errors.Is(err, gstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to load height: %w", err)
	}

	return a, nil
}

func (a *App) InitChain(ctx context.Context, content gapp.GenesisContent) error {
	g, vals, err := ParseGenesis(content, a.reg)
	if err != nil {
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(g.Accounts)) {
		a.pending[string(AccountKey(name))] = encodeUint64(g.Accounts[name])
	}
	for _, v := range vals {
		a.pending[string(ValidatorKey(a.reg.Marshal(v.PubKey)))] = encodeUint64(v.Power)
	}
	a.validators = vals

	a.log.Info(
		"Initialized genesis state",
		"n_accounts", len(g.Accounts),
		"n_validators", len(vals),
	)
	return nil
}

func (a *App) BeginBlock(ctx context.Context, header cometapitypes.Header) ([]gabci.Event, error) {
	if a.inBlock {
		return nil, fmt.Errorf("cannot begin block %d: %w", header.Height, ErrBlockInProgress)
	}
	a.inBlock = true
	a.height = header.Height
	a.pending[metaHeightKey] = encodeUint64(uint64(header.Height))

	return []gabci.Event{
		gabci.NewEvent(
			"begin_block",
			"height", strconv.FormatInt(header.Height, 10),
			"chain_id", header.ChainID,
		),
	}, nil
}

func (a *App) DeliverTx(ctx context.Context, b []byte) ([]gabci.Event, error) {
	if !a.inBlock {
		return nil, ErrNoBlock
	}

	tx, err := DecodeTx(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx: %w", err)
	}

	switch {
	case tx.Transfer != nil:
		if err := a.transfer(ctx, *tx.Transfer); err != nil {
			return nil, fmt.Errorf("transfer rejected: %w", err)
		}
		t := tx.Transfer
		return []gabci.Event{
			gabci.NewEvent(
				"transfer",
				"from", t.From,
				"to", t.To,
				"amount", strconv.FormatUint(t.Amount, 10),
			),
		}, nil

	default:
		v, err := a.queuePower(*tx.SetPower)
		if err != nil {
			return nil, fmt.Errorf("set_power rejected: %w", err)
		}
		return []gabci.Event{
			gabci.NewEvent(
				"validator_power",
				"pub_key", hex.EncodeToString(v.PubKey.PubKeyBytes()),
				"power", strconv.FormatUint(v.Power, 10),
			),
		}, nil
	}
}

func (a *App) transfer(ctx context.Context, t Transfer) error {
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if t.From == t.To {
		return ErrSelfTransfer
	}
	if err := validateAccountName(t.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	from, err := a.balance(ctx, t.From)
	if err != nil {
		return fmt.Errorf("failed to read sender balance: %w", err)
	}
	if from < t.Amount {
		return InsufficientFundsError{Account: t.From, Have: from, Want: t.Amount}
	}

	to, err := a.balance(ctx, t.To)
	if err != nil {
		return fmt.Errorf("failed to read recipient balance: %w", err)
	}
	if to+t.Amount < to {
		return fmt.Errorf("recipient %q balance would overflow", t.To)
	}

	// Only write once every check has passed.
	a.pending[string(AccountKey(t.From))] = encodeUint64(from - t.Amount)
	a.pending[string(AccountKey(t.To))] = encodeUint64(to + t.Amount)
	return nil
}

func (a *App) queuePower(sp SetPower) (gabci.Validator, error) {
	pk, err := a.reg.Unmarshal(bytes.Clone(sp.PubKey))
	if err != nil {
		return gabci.Validator{}, fmt.Errorf("invalid public key: %w", err)
	}
	v := gabci.Validator{PubKey: pk, Power: sp.Power}

	projected := applyPowerChanges(a.validators, append(slices.Clone(a.queued), v))
	if len(projected) == 0 {
		return gabci.Validator{}, ErrEmptyValidatorSet
	}

	a.queued = append(a.queued, v)
	return v, nil
}

func (a *App) EndBlock(ctx context.Context, height int64) ([]gabci.Event, error) {
	if !a.inBlock {
		return nil, ErrNoBlock
	}
	if height != a.height {
		return nil, fmt.Errorf("end block height %d does not match begin block height %d", height, a.height)
	}

	for _, v := range a.queued {
		key := string(ValidatorKey(a.reg.Marshal(v.PubKey)))
		if v.Power == 0 {
			a.pending[key] = nil
		} else {
			a.pending[key] = encodeUint64(v.Power)
		}
	}
	changed := len(a.queued)
	a.validators = applyPowerChanges(a.validators, a.queued)
	a.queued = nil

	return []gabci.Event{
		gabci.NewEvent(
			"end_block",
			"height", strconv.FormatInt(height, 10),
			"power_changes", strconv.Itoa(changed),
			"validators", strconv.Itoa(len(a.validators)),
		),
	}, nil
}

func (a *App) ValidatorUpdates() []gabci.Validator {
	return slices.Clone(a.validators)
}

// Height returns the height of the latest block begun,
// or of the latest committed block right after [New].
func (a *App) Height() int64 {
	return a.height
}

func (a *App) Commit(ctx context.Context, store gstore.Store) ([]byte, error) {
	changes := make([]gstore.Change, 0, len(a.pending))
	for k, v := range a.pending {
		changes = append(changes, gstore.Change{
			Key:    []byte(k),
			Value:  v,
			Delete: v == nil,
		})
	}

	version, rootHash, err := store.Commit(ctx, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to commit %d changes: %w", len(changes), err)
	}

	a.log.Debug(
		"Committed state",
		"height", a.height,
		"version", version,
		"n_changes", len(changes),
		"root_hash", glog.Hex(rootHash),
	)

	a.base = store.LatestSnapshot()
	clear(a.pending)
	a.inBlock = false
	return rootHash, nil
}

// balance reads through pending writes to the base snapshot.
func (a *App) balance(ctx context.Context, name string) (uint64, error) {
	key := AccountKey(name)
	if v, ok := a.pending[string(key)]; ok {
		if v == nil {
			return 0, nil
		}
		return decodeUint64(v)
	}
	return Balance(ctx, a.base, name)
}

// applyPowerChanges returns a new sorted set with changes applied in order.
func applyPowerChanges(vals, changes []gabci.Validator) []gabci.Validator {
	out := slices.Clone(vals)
	for _, c := range changes {
		i := slices.IndexFunc(out, func(v gabci.Validator) bool {
			return v.PubKey.Equal(c.PubKey)
		})
		switch {
		case i >= 0 && c.Power == 0:
			out = slices.Delete(out, i, i+1)
		case i >= 0:
			out[i].Power = c.Power
		case c.Power > 0:
			out = append(out, c)
		}
	}
	gabci.SortValidators(out)
	return out
}
