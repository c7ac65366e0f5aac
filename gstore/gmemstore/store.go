// Package gmemstore is an in-memory [gstore.Store].
//
// Every committed version is retained, so it suits tests and short-lived nodes.
package gmemstore

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gordian-engine/gledger/gstore"
)

// Store is an in-memory versioned store.
// The zero value is not usable; use [NewStore].
type Store struct {
	mu       sync.RWMutex
	versions []*snapshot
}

// NewStore returns an uninitialized Store.
func NewStore() *Store {
	return &Store{}
}

var _ gstore.Store = (*Store)(nil)

func (s *Store) LatestVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.versions)) - 1
}

func (s *Store) RootHash() []byte {
	return s.LatestSnapshot().RootHash()
}

func (s *Store) LatestSnapshot() gstore.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest()
}

// latest must be called with mu held.
func (s *Store) latest() *snapshot {
	if len(s.versions) == 0 {
		return &snapshot{
			version:  gstore.UninitializedVersion,
			rootHash: gstore.EmptyRootHash,
		}
	}
	return s.versions[len(s.versions)-1]
}

func (s *Store) Snapshot(_ context.Context, version uint64) (gstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version >= uint64(len(s.versions)) {
		return nil, gstore.VersionNotFoundError{
			Want:   version,
			Latest: uint64(len(s.versions)) - 1,
		}
	}
	return s.versions[version], nil
}

func (s *Store) Commit(_ context.Context, changes []gstore.Change) (uint64, []byte, error) {
	normalized, err := gstore.NormalizeChanges(changes)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid change set: %w", err)
	}

	// Only Commit writes, so reading the latest without holding the lock
	// across the merge is safe.
	s.mu.RLock()
	prev := s.latest()
	s.mu.RUnlock()

	entries := merge(prev.entries, normalized)
	h, err := gstore.HashEntries(entries)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to hash entries: %w", err)
	}

	next := &snapshot{
		version:  gstore.NextVersion(prev.version),
		rootHash: h,
		entries:  entries,
	}

	s.mu.Lock()
	s.versions = append(s.versions, next)
	s.mu.Unlock()

	return next.version, bytes.Clone(h), nil
}

// merge returns a new sorted entry slice with the sorted, deduplicated changes applied.
// Values are copied so that callers may reuse their change buffers.
func merge(entries []gstore.Entry, changes []gstore.Change) []gstore.Entry {
	out := make([]gstore.Entry, 0, len(entries)+len(changes))
	i, j := 0, 0
	for i < len(entries) || j < len(changes) {
		var cmp int
		switch {
		case i == len(entries):
			cmp = 1
		case j == len(changes):
			cmp = -1
		default:
			cmp = bytes.Compare(entries[i].Key, changes[j].Key)
		}

		switch {
		case cmp < 0:
			out = append(out, entries[i])
			i++
		case cmp > 0:
			if c := changes[j]; !c.Delete {
				out = append(out, gstore.Entry{Key: bytes.Clone(c.Key), Value: cloneValue(c.Value)})
			}
			j++
		default:
			if c := changes[j]; !c.Delete {
				out = append(out, gstore.Entry{Key: entries[i].Key, Value: cloneValue(c.Value)})
			}
			i++
			j++
		}
	}
	return slices.Clip(out)
}

// cloneValue never returns nil, so that an empty value is distinct from a deletion.
func cloneValue(v []byte) []byte {
	return append([]byte{}, v...)
}
