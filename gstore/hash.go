package gstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/gordian-engine/gledger/gmerkle"
	"golang.org/x/crypto/blake2b"
)

// Domain separation prefixes for Merkle nodes.
const (
	leafPrefix   byte = 0x00
	branchPrefix byte = 0x01
)

// EmptyRootHash is the root hash of a version with no entries.
var EmptyRootHash = func() []byte {
	h := blake2b.Sum256(nil)
	return h[:]
}()

// HashEntries returns the root hash of entries,
// which must be sorted by key with no duplicates.
//
// Leaves hash as H(0x00 || uvarint(len(key)) || key || value),
// branches as H(0x01 || children...), using a binary tree and blake2b-256.
func HashEntries(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return bytes.Clone(EmptyRootHash), nil
	}

	tree, err := gmerkle.NewMerkleTree[Entry, [blake2b.Size256]byte](entryScheme{}, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	root := tree.RootID()
	return root[:], nil
}

type entryScheme struct{}

func (entryScheme) BranchFactor() uint8 { return 2 }

func (entryScheme) LeafID(_ int, e Entry) ([blake2b.Size256]byte, error) {
	h := newHasher()
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(e.Key)))

	_, _ = h.Write([]byte{leafPrefix})
	_, _ = h.Write(lenBuf[:n])
	_, _ = h.Write(e.Key)
	_, _ = h.Write(e.Value)

	var out [blake2b.Size256]byte
	h.Sum(out[:0])
	return out, nil
}

func (entryScheme) BranchID(_, _ int, childIDs [][blake2b.Size256]byte) ([blake2b.Size256]byte, error) {
	h := newHasher()
	_, _ = h.Write([]byte{branchPrefix})
	for _, c := range childIDs {
		_, _ = h.Write(c[:])
	}

	var out [blake2b.Size256]byte
	h.Sum(out[:0])
	return out, nil
}

func newHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(fmt.Errorf("BUG: blake2b.New256: %w", err))
	}
	return h
}
