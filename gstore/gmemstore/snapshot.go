package gmemstore

import (
	"bytes"
	"context"
	"slices"

	"github.com/gordian-engine/gledger/gstore"
)

type snapshot struct {
	version  uint64
	rootHash []byte

	// Sorted by key. Never modified after construction.
	entries []gstore.Entry
}

func (s *snapshot) Version() uint64 { return s.version }

func (s *snapshot) RootHash() []byte { return bytes.Clone(s.rootHash) }

func (s *snapshot) Get(_ context.Context, key []byte) ([]byte, error) {
	i, found := slices.BinarySearchFunc(s.entries, key, func(e gstore.Entry, k []byte) int {
		return bytes.Compare(e.Key, k)
	})
	if !found {
		return nil, gstore.ErrKeyNotFound
	}
	return bytes.Clone(s.entries[i].Value), nil
}

func (s *snapshot) PrefixScan(_ context.Context, prefix []byte) ([]gstore.Entry, error) {
	start, _ := slices.BinarySearchFunc(s.entries, prefix, func(e gstore.Entry, k []byte) int {
		return bytes.Compare(e.Key, k)
	})

	var out []gstore.Entry
	for _, e := range s.entries[start:] {
		if !bytes.HasPrefix(e.Key, prefix) {
			break
		}
		out = append(out, gstore.Entry{
			Key:   bytes.Clone(e.Key),
			Value: append([]byte{}, e.Value...),
		})
	}
	return out, nil
}
