// Package gmerkle builds Merkle trees over an ordered collection of leaves.
//
// The ledger uses it to compute the application hash from the sorted
// key-value entries of a store version, but the tree is generic over
// both the leaf type and the node ID type.
package gmerkle

import (
	"errors"
	"fmt"
)

// ErrNoLeaves is returned by [NewMerkleTree] when given an empty leaf slice.
// Callers needing a root for an empty collection must define one themselves.
var ErrNoLeaves = errors.New("merkle tree requires at least one leaf")

// MerkleScheme specifies the details on producing a merkle tree from an ordered collection of leaves.
// Type parameter L is the leaf data, and I is the ID type of the nodes.
type MerkleScheme[L any, I comparable] interface {
	// How many children each branch must have
	// (excepting the rightmost branch in a row, which will have at least 1 element
	// but possibly less than BranchFactor).
	BranchFactor() uint8

	// BranchID calculates the ID for a branch.
	// The childIDs slice may have fewer than BranchFactor elements
	// if it is the rightmost node in a row,
	// but it will always have at least two elements;
	// a lone rightmost child is raised into the parent row unchanged.
	//
	// The depth and rowIdx values are provided so that implementors
	// may include them in ID calculations.
	BranchID(depth, rowIdx int, childIDs []I) (I, error)

	// LeafID calculates the ID for the given leaf data.
	LeafID(idx int, leafData L) (I, error)
}

// MerkleTree is an immutable m-ary Merkle tree.
//
// The tree expects all leaf values to be known up front
// and holds no reference to them after calculating their IDs,
// so methods are safe to call concurrently.
type MerkleTree[I comparable] struct {
	// Branch factor.
	m int

	nLeaves int

	// The first row holds the leaf IDs,
	// and the last row contains the lone root.
	rows [][]I
}

// RootID returns the ID of the root branch of the tree.
func (t *MerkleTree[I]) RootID() I {
	return t.rows[len(t.rows)-1][0]
}

// NLeaves reports the number of leaves the tree was built from.
func (t *MerkleTree[I]) NLeaves() int {
	return t.nLeaves
}

// Depth reports the number of rows above the leaf row.
// A single-leaf tree has depth zero.
func (t *MerkleTree[I]) Depth() int {
	return len(t.rows) - 1
}

// NewMerkleTree returns a new Merkle tree based on the given scheme and leaf data.
func NewMerkleTree[L any, I comparable](scheme MerkleScheme[L, I], leafData []L) (*MerkleTree[I], error) {
	m := int(scheme.BranchFactor()) // m as in "m-ary tree".
	if m < 2 {
		return nil, fmt.Errorf("branch factor must be at least 2 (got %d)", m)
	}

	if len(leafData) == 0 {
		return nil, ErrNoLeaves
	}

	row := make([]I, len(leafData))
	for i, ld := range leafData {
		id, err := scheme.LeafID(i, ld)
		if err != nil {
			return nil, fmt.Errorf("error generating leaf ID for leaf at index %d: %w", i, err)
		}
		row[i] = id
	}

	rows := [][]I{row}
	for depth := 1; len(row) > 1; depth++ {
		sz := (len(row) + m - 1) / m
		next := make([]I, sz)

		for i := range next {
			start := i * m
			end := min(start+m, len(row))

			if end == start+1 {
				// Raise the orphan without hashing it again.
				next[i] = row[start]
				continue
			}

			id, err := scheme.BranchID(depth, i, row[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to calculate branch ID at index %d in depth %d: %w", i, depth, err)
			}
			next[i] = id
		}

		rows = append(rows, next)
		row = next
	}

	return &MerkleTree[I]{
		m:       m,
		nLeaves: len(leafData),
		rows:    rows,
	}, nil
}
