package gsqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/trace"

	"github.com/gordian-engine/gledger/gstore"
)

// snapshot reads one committed version through the read-only pool.
type snapshot struct {
	s        *Store
	version  uint64
	rootHash []byte
}

func (v *snapshot) Version() uint64 { return v.version }

func (v *snapshot) RootHash() []byte { return bytes.Clone(v.rootHash) }

func (v *snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	defer trace.StartRegion(ctx, "Get").End()

	if v.version == gstore.UninitializedVersion {
		return nil, gstore.ErrKeyNotFound
	}
	if v.s.closed.Load() {
		return nil, gstore.ErrStoreClosed
	}

	var deleted int
	var value []byte
	err := v.s.ro.QueryRowContext(
		ctx,
		`SELECT deleted, value FROM entries
WHERE key = ? AND version <= ?
ORDER BY version DESC LIMIT 1`,
		key, int64(v.version),
	).Scan(&deleted, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gstore.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %x at version %d: %w", key, v.version, err)
	}
	if deleted != 0 {
		return nil, gstore.ErrKeyNotFound
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (v *snapshot) PrefixScan(ctx context.Context, prefix []byte) ([]gstore.Entry, error) {
	defer trace.StartRegion(ctx, "PrefixScan").End()

	if v.version == gstore.UninitializedVersion {
		return nil, nil
	}
	if v.s.closed.Load() {
		return nil, gstore.ErrStoreClosed
	}

	entries, err := scanLive(ctx, v.s.ro, prefix, v.version)
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %x at version %d: %w", prefix, v.version, err)
	}
	return entries, nil
}
