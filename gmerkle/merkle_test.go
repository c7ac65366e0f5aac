package gmerkle_test

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/gordian-engine/gledger/gmerkle"
	"github.com/stretchr/testify/require"
)

// Very simple implementation of MerkleScheme.
type sha256Scheme struct {
	M uint8 // Branch factor.

	// If set, prefix non-leaf hashes with two bytes, the depth and the row-index.
	HashPosition bool
}

func (s sha256Scheme) BranchFactor() uint8 {
	return s.M
}

func (s sha256Scheme) LeafID(_ int, leafData string) ([sha256.Size]byte, error) {
	return sha256.Sum256([]byte(leafData)), nil
}

func (s sha256Scheme) BranchID(depth, rowIdx int, childIDs [][sha256.Size]byte) ([sha256.Size]byte, error) {
	h := sha256.New()
	if s.HashPosition {
		h.Write([]byte{byte(depth), byte(rowIdx)})
	}
	for _, id := range childIDs {
		h.Write(id[:])
	}

	var out [sha256.Size]byte
	_ = h.Sum(out[:0])
	return out, nil
}

func concatSum(ids ...[sha256.Size]byte) [sha256.Size]byte {
	var in []byte
	for _, id := range ids {
		in = append(in, id[:]...)
	}
	return sha256.Sum256(in)
}

func TestMerkleTree_RootID(t *testing.T) {
	t.Run("complete binary tree", func(t *testing.T) {
		leaves := []string{"This", "is", "a", "test."}

		d0 := make([][sha256.Size]byte, 4)
		for i, leaf := range leaves {
			d0[i] = sha256.Sum256([]byte(leaf))
		}
		root := concatSum(concatSum(d0[0], d0[1]), concatSum(d0[2], d0[3]))

		tree, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2}, leaves)
		require.NoError(t, err)
		require.Equal(t, root, tree.RootID())
		require.Equal(t, 4, tree.NLeaves())
		require.Equal(t, 2, tree.Depth())
	})

	t.Run("orphan is raised unchanged", func(t *testing.T) {
		leaves := []string{"a", "b", "c"}

		d0 := make([][sha256.Size]byte, 3)
		for i, leaf := range leaves {
			d0[i] = sha256.Sum256([]byte(leaf))
		}
		root := concatSum(concatSum(d0[0], d0[1]), d0[2])

		tree, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2}, leaves)
		require.NoError(t, err)
		require.Equal(t, root, tree.RootID())
	})

	t.Run("single leaf is its own root", func(t *testing.T) {
		tree, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2}, []string{"only"})
		require.NoError(t, err)
		require.Equal(t, sha256.Sum256([]byte("only")), tree.RootID())
		require.Zero(t, tree.Depth())
	})

	t.Run("ternary tree", func(t *testing.T) {
		leaves := []string{"a", "b", "c", "d"}

		d0 := make([][sha256.Size]byte, 4)
		for i, leaf := range leaves {
			d0[i] = sha256.Sum256([]byte(leaf))
		}
		root := concatSum(concatSum(d0[0], d0[1], d0[2]), d0[3])

		tree, err := gmerkle.NewMerkleTree(sha256Scheme{M: 3}, leaves)
		require.NoError(t, err)
		require.Equal(t, root, tree.RootID())
	})

	t.Run("position affects branch IDs", func(t *testing.T) {
		leaves := []string{"a", "b", "c", "d"}

		plain, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2}, leaves)
		require.NoError(t, err)
		pos, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2, HashPosition: true}, leaves)
		require.NoError(t, err)

		require.NotEqual(t, plain.RootID(), pos.RootID())
	})
}

func TestNewMerkleTree_errors(t *testing.T) {
	t.Run("no leaves", func(t *testing.T) {
		_, err := gmerkle.NewMerkleTree(sha256Scheme{M: 2}, nil)
		require.ErrorIs(t, err, gmerkle.ErrNoLeaves)
	})

	t.Run("branch factor too small", func(t *testing.T) {
		_, err := gmerkle.NewMerkleTree(sha256Scheme{M: 1}, []string{"a"})
		require.Error(t, err)
		require.False(t, errors.Is(err, gmerkle.ErrNoLeaves))
	})
}
