package gkvapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gstore"
)

// Balance returns the balance of the named account at snap.
// A missing account has a zero balance.
func Balance(ctx context.Context, snap gstore.Snapshot, name string) (uint64, error) {
	b, err := snap.Get(ctx, AccountKey(name))
	if errors.Is(err, gstore.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(b)
}

// LoadValidators returns the sorted validator set stored at snap.
func LoadValidators(ctx context.Context, snap gstore.Snapshot, reg *gcrypto.Registry) ([]gabci.Validator, error) {
	entries, err := snap.PrefixScan(ctx, []byte(ValidatorPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to scan validators: %w", err)
	}

	vals := make([]gabci.Validator, 0, len(entries))
	for _, e := range entries {
		pk, err := reg.Unmarshal(e.Key[len(ValidatorPrefix):])
		if err != nil {
			return nil, fmt.Errorf("invalid validator key %x: %w", e.Key, err)
		}
		power, err := decodeUint64(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid power for validator key %x: %w", e.Key, err)
		}
		vals = append(vals, gabci.Validator{PubKey: pk, Power: power})
	}
	gabci.SortValidators(vals)
	return vals, nil
}
