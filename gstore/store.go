package gstore

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// UninitializedVersion is reported by a store that has never committed.
// Adding one wraps to zero, so the first commit produces version 0.
const UninitializedVersion uint64 = math.MaxUint64

var (
	// ErrKeyNotFound is returned by [Snapshot.Get] for a key absent at that version.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned by implementations that own external resources
	// once they have been closed.
	ErrStoreClosed = errors.New("store closed")
)

// VersionNotFoundError is returned by [Store.Snapshot] for a version
// the store has not committed.
type VersionNotFoundError struct {
	Want, Latest uint64
}

func (e VersionNotFoundError) Error() string {
	if e.Latest == UninitializedVersion {
		return fmt.Sprintf("version %d not found: store is uninitialized", e.Want)
	}
	return fmt.Sprintf("version %d not found (latest is %d)", e.Want, e.Latest)
}

// Entry is a live key-value pair.
type Entry struct {
	Key, Value []byte
}

// Change is one element of a change set passed to [Store.Commit].
// A Change with Delete set removes Key, and Value is ignored.
type Change struct {
	Key, Value []byte
	Delete     bool
}

// Snapshot is an immutable view of one store version.
// It remains readable while the store commits later versions,
// and it is safe for concurrent use.
type Snapshot interface {
	Version() uint64
	RootHash() []byte

	// Get returns the value for key, or [ErrKeyNotFound].
	Get(ctx context.Context, key []byte) ([]byte, error)

	// PrefixScan returns every live entry whose key starts with prefix,
	// in ascending key order.
	// An empty prefix returns all entries.
	PrefixScan(ctx context.Context, prefix []byte) ([]Entry, error)
}

// Store is a versioned key-value store.
//
// Store values are shared handles:
// every holder of the same Store observes the same latest version.
//
// Commit must only be called from one goroutine at a time.
// All other methods are safe for concurrent use, including during a Commit.
type Store interface {
	// LatestSnapshot returns a view of the latest version.
	// On an uninitialized store, the view is empty,
	// reports [UninitializedVersion], and has the [EmptyRootHash].
	LatestSnapshot() Snapshot

	// LatestVersion returns the latest committed version,
	// or [UninitializedVersion].
	LatestVersion() uint64

	// RootHash returns the root hash of the latest version.
	RootHash() []byte

	// Snapshot returns a view of the given committed version,
	// or a [VersionNotFoundError].
	Snapshot(ctx context.Context, version uint64) (Snapshot, error)

	// Commit applies changes to the latest version
	// and returns the new version and its root hash.
	// An empty change set still produces a new version.
	Commit(ctx context.Context, changes []Change) (version uint64, rootHash []byte, err error)
}

// NextVersion returns the version that follows v.
func NextVersion(v uint64) uint64 {
	// Wraps from UninitializedVersion to zero.
	return v + 1
}
