package gstore_test

import (
	"encoding/hex"
	"testing"

	"github.com/gordian-engine/gledger/gstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestHashEntries_empty(t *testing.T) {
	t.Parallel()

	h, err := gstore.HashEntries(nil)
	require.NoError(t, err)

	want := blake2b.Sum256(nil)
	require.Equal(t, want[:], h)
	require.Equal(t, gstore.EmptyRootHash, h)

	// The returned slice is a copy.
	h[0]++
	require.Equal(t, want[:], gstore.EmptyRootHash)
}

func TestHashEntries_singleLeaf(t *testing.T) {
	t.Parallel()

	h, err := gstore.HashEntries([]gstore.Entry{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)

	want := blake2b.Sum256([]byte{0x00, 0x01, 'k', 'v'})
	require.Equal(t, want[:], h, "got %s", hex.EncodeToString(h))
}

func TestHashEntries_twoLeaves(t *testing.T) {
	t.Parallel()

	h, err := gstore.HashEntries([]gstore.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	})
	require.NoError(t, err)

	l1 := blake2b.Sum256([]byte{0x00, 0x01, 'a', '1'})
	l2 := blake2b.Sum256([]byte{0x00, 0x01, 'b', '2'})
	branch := append([]byte{0x01}, l1[:]...)
	branch = append(branch, l2[:]...)
	want := blake2b.Sum256(branch)
	require.Equal(t, want[:], h)
}

func TestHashEntries_keyValueBoundary(t *testing.T) {
	t.Parallel()

	h1, err := gstore.HashEntries([]gstore.Entry{{Key: []byte("ab"), Value: []byte("c")}})
	require.NoError(t, err)
	h2, err := gstore.HashEntries([]gstore.Entry{{Key: []byte("a"), Value: []byte("bc")}})
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}

func TestHashEntries_deterministic(t *testing.T) {
	t.Parallel()

	entries := make([]gstore.Entry, 9)
	for i := range entries {
		entries[i] = gstore.Entry{Key: []byte{'k', byte('0' + i)}, Value: []byte{byte(i)}}
	}

	h1, err := gstore.HashEntries(entries)
	require.NoError(t, err)
	h2, err := gstore.HashEntries(entries)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 32)

	entries[4].Value = []byte("changed")
	h3, err := gstore.HashEntries(entries)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
