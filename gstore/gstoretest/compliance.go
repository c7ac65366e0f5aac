// Package gstoretest contains a compliance suite
// that every [gstore.Store] implementation must pass.
package gstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gordian-engine/gledger/gstore"
	"github.com/stretchr/testify/require"
)

// StoreFactory returns a new, uninitialized store.
// The cleanup argument is t.Cleanup, for closing external resources.
type StoreFactory func(cleanup func(func())) (gstore.Store, error)

// TestStoreCompliance runs the store compliance suite against stores from f.
func TestStoreCompliance(t *testing.T, f StoreFactory) {
	t.Run("uninitialized", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		require.Equal(t, gstore.UninitializedVersion, s.LatestVersion())
		require.Equal(t, gstore.EmptyRootHash, s.RootHash())

		snap := s.LatestSnapshot()
		require.Equal(t, gstore.UninitializedVersion, snap.Version())
		require.Equal(t, gstore.EmptyRootHash, snap.RootHash())

		_, err = snap.Get(ctx, []byte("missing"))
		require.ErrorIs(t, err, gstore.ErrKeyNotFound)

		entries, err := snap.PrefixScan(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, entries)

		_, err = s.Snapshot(ctx, 0)
		require.ErrorAs(t, err, new(gstore.VersionNotFoundError))
	})

	t.Run("first commit is version zero", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		v, h, err := s.Commit(ctx, []gstore.Change{
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("a"), Value: []byte("1")},
		})
		require.NoError(t, err)
		require.Zero(t, v)
		require.Equal(t, uint64(0), s.LatestVersion())

		want, err := gstore.HashEntries([]gstore.Entry{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		})
		require.NoError(t, err)
		require.Equal(t, want, h)
		require.Equal(t, want, s.RootHash())
		require.Equal(t, want, s.LatestSnapshot().RootHash())

		got, err := s.LatestSnapshot().Get(ctx, []byte("a"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), got)
	})

	t.Run("empty commit advances version", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		v, h, err := s.Commit(ctx, nil)
		require.NoError(t, err)
		require.Zero(t, v)
		require.Equal(t, gstore.EmptyRootHash, h)

		_, err = s.Commit(ctx, []gstore.Change{{Key: []byte("k"), Value: []byte("v")}})
		require.NoError(t, err)

		v, h2, err := s.Commit(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, uint64(2), v)

		prev, err := s.Snapshot(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, prev.RootHash(), h2)
	})

	t.Run("updates and deletes", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, h0, err := s.Commit(ctx, []gstore.Change{
			{Key: []byte("acct/alice"), Value: []byte("10")},
			{Key: []byte("acct/bob"), Value: []byte("20")},
			{Key: []byte("val/x"), Value: []byte("1")},
		})
		require.NoError(t, err)

		v, h1, err := s.Commit(ctx, []gstore.Change{
			{Key: []byte("acct/alice"), Value: []byte("11")},
			{Key: []byte("acct/bob"), Delete: true},
			{Key: []byte("acct/carol"), Value: []byte{}},
		})
		require.NoError(t, err)
		require.Equal(t, uint64(1), v)
		require.NotEqual(t, h0, h1)

		latest := s.LatestSnapshot()
		require.Equal(t, uint64(1), latest.Version())

		_, err = latest.Get(ctx, []byte("acct/bob"))
		require.ErrorIs(t, err, gstore.ErrKeyNotFound)

		// An empty value is present, not deleted.
		got, err := latest.Get(ctx, []byte("acct/carol"))
		require.NoError(t, err)
		require.Empty(t, got)

		entries, err := latest.PrefixScan(ctx, []byte("acct/"))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, []byte("acct/alice"), entries[0].Key)
		require.Equal(t, []byte("11"), entries[0].Value)
		require.Equal(t, []byte("acct/carol"), entries[1].Key)
		require.Empty(t, entries[1].Value)

		want, err := gstore.HashEntries([]gstore.Entry{
			{Key: []byte("acct/alice"), Value: []byte("11")},
			{Key: []byte("acct/carol"), Value: []byte{}},
			{Key: []byte("val/x"), Value: []byte("1")},
		})
		require.NoError(t, err)
		require.Equal(t, want, h1)

		// The earlier version is unchanged.
		old, err := s.Snapshot(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(0), old.Version())
		require.Equal(t, h0, old.RootHash())

		got, err = old.Get(ctx, []byte("acct/bob"))
		require.NoError(t, err)
		require.Equal(t, []byte("20"), got)

		_, err = old.Get(ctx, []byte("acct/carol"))
		require.ErrorIs(t, err, gstore.ErrKeyNotFound)

		all, err := old.PrefixScan(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
	})

	t.Run("deleting a missing key is a no-op", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, h0, err := s.Commit(ctx, []gstore.Change{{Key: []byte("a"), Value: []byte("1")}})
		require.NoError(t, err)

		_, h1, err := s.Commit(ctx, []gstore.Change{{Key: []byte("zzz"), Delete: true}})
		require.NoError(t, err)
		require.Equal(t, h0, h1)
	})

	t.Run("duplicate keys: last change wins", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.Commit(ctx, []gstore.Change{
			{Key: []byte("k"), Value: []byte("first")},
			{Key: []byte("k"), Delete: true},
			{Key: []byte("k"), Value: []byte("last")},
		})
		require.NoError(t, err)

		got, err := s.LatestSnapshot().Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("last"), got)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.Commit(ctx, []gstore.Change{{Key: nil, Value: []byte("x")}})
		require.ErrorIs(t, err, gstore.ErrEmptyKey)
		require.Equal(t, gstore.UninitializedVersion, s.LatestVersion())
	})

	t.Run("caller buffers are not retained", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		key := []byte("k")
		val := []byte("v")
		_, _, err = s.Commit(ctx, []gstore.Change{{Key: key, Value: val}})
		require.NoError(t, err)
		key[0] = 'x'
		val[0] = 'x'

		got, err := s.LatestSnapshot().Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)

		// Nor are returned values aliased.
		got[0] = 'y'
		got, err = s.LatestSnapshot().Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
	})

	t.Run("prefix scan boundaries", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.Commit(ctx, []gstore.Change{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("ab"), Value: []byte("2")},
			{Key: []byte("abc"), Value: []byte("3")},
			{Key: []byte("ac"), Value: []byte("4")},
			{Key: []byte{'a', 'b', 0xff}, Value: []byte("5")},
			{Key: []byte("b"), Value: []byte("6")},
		})
		require.NoError(t, err)

		entries, err := s.LatestSnapshot().PrefixScan(ctx, []byte("ab"))
		require.NoError(t, err)
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = string(e.Key)
		}
		require.Equal(t, []string{"ab", "abc", "ab\xff"}, keys)

		entries, err = s.LatestSnapshot().PrefixScan(ctx, []byte("nope"))
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("snapshot reads during commits", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.Commit(ctx, []gstore.Change{{Key: []byte("n"), Value: []byte("0")}})
		require.NoError(t, err)

		const nCommits = 20
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= nCommits; i++ {
				_, _, err := s.Commit(ctx, []gstore.Change{
					{Key: []byte("n"), Value: []byte(fmt.Sprint(i))},
				})
				if err != nil {
					t.Errorf("commit %d: %v", i, err)
					return
				}
			}
		}()

		for range nCommits {
			snap := s.LatestSnapshot()
			got, err := snap.Get(ctx, []byte("n"))
			require.NoError(t, err)
			require.Equal(t, fmt.Sprint(snap.Version()), string(got))
		}
		wg.Wait()

		require.Equal(t, uint64(nCommits), s.LatestVersion())
	})
}
