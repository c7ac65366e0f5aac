package gdriver_test

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gdriver"
	"github.com/stretchr/testify/require"
)

func txsOfLen(lens ...int) [][]byte {
	out := make([][]byte, len(lens))
	for i, n := range lens {
		out[i] = bytes.Repeat([]byte{byte('a' + i)}, n)
	}
	return out
}

func TestPackProposal(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		lens   []int
		budget int64
		wantN  int
	}{
		{name: "no txs", lens: nil, budget: 100, wantN: 0},
		{name: "zero budget", lens: []int{1}, budget: 0, wantN: 0},
		{name: "zero budget with empty tx", lens: []int{0, 1}, budget: 0, wantN: 1},
		{name: "all fit", lens: []int{10, 20, 30}, budget: 60, wantN: 3},
		{name: "stops at first overflow", lens: []int{10, 20, 30}, budget: 59, wantN: 2},
		{name: "does not skip ahead", lens: []int{10, 50, 1}, budget: 20, wantN: 1},
		{name: "first too large", lens: []int{101, 1}, budget: 100, wantN: 0},
		{name: "huge budget", lens: []int{1, 2, 3}, budget: 1<<63 - 1, wantN: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			txs := txsOfLen(tc.lens...)
			got, err := gdriver.PackProposal(txs, tc.budget)
			require.NoError(t, err)
			require.Len(t, got, tc.wantN)
			for i := range got {
				require.Equal(t, txs[i], got[i])
			}
		})
	}
}

func TestPackProposal_negativeBudget(t *testing.T) {
	t.Parallel()

	_, err := gdriver.PackProposal(txsOfLen(1), -1)
	require.ErrorIs(t, err, gdriver.BudgetError{MaxTxBytes: -1})
}

func TestPackProposal_doesNotAliasInput(t *testing.T) {
	t.Parallel()

	txs := txsOfLen(1, 2, 3)
	got, err := gdriver.PackProposal(txs, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got[0] = []byte("replaced")
	require.Equal(t, []byte("a"), txs[0])
}

// For any input, the output is the longest fitting prefix.
func TestPackProposal_randomized(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		lens := make([]int, rng.IntN(20))
		for i := range lens {
			lens[i] = rng.IntN(64)
		}
		txs := txsOfLen(lens...)
		budget := rng.Int64N(512)

		got, err := gdriver.PackProposal(txs, budget)
		require.NoError(t, err)

		var total int64
		for i, tx := range got {
			require.Equal(t, txs[i], tx)
			total += int64(len(tx))
		}
		require.LessOrEqual(t, total, budget)

		if len(got) < len(txs) {
			next := int64(len(txs[len(got)]))
			require.Greater(t, total+next, budget)
		}
	}
}

func TestDriver_PrepareProposal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t)
	fx.Start(ctx)

	resp, err := fx.Client.PrepareProposal(ctx, gabci.PrepareProposalRequest{
		Txs:        txsOfLen(4, 4, 4),
		MaxTxBytes: 10,
		Height:     3,
	})
	require.NoError(t, err)
	require.Equal(t, txsOfLen(4, 4), resp.Txs)

	// The app is not consulted.
	require.Empty(t, fx.Fake.Calls())
}

func TestMaxBytesPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := gdriver.MaxBytesPolicy{MaxTxBytes: 10}

	for _, tc := range []struct {
		name string
		txs  [][]byte
		want gabci.ProposalStatus
	}{
		{name: "empty proposal", txs: nil, want: gabci.ProposalAccept},
		{name: "exactly at budget", txs: txsOfLen(5, 5), want: gabci.ProposalAccept},
		{name: "over budget", txs: txsOfLen(5, 6), want: gabci.ProposalReject},
		{name: "empty tx", txs: txsOfLen(1, 0), want: gabci.ProposalReject},
	} {
		got, err := p.ProcessProposal(ctx, tc.txs, 1)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}

	_, err := gdriver.MaxBytesPolicy{MaxTxBytes: -1}.ProcessProposal(ctx, nil, 1)
	require.ErrorAs(t, err, new(gdriver.BudgetError))
}

func TestDriver_ProcessProposal(t *testing.T) {
	t.Parallel()

	t.Run("default accepts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fx := newFixture(t)
		fx.Start(ctx)

		resp, err := fx.Client.ProcessProposal(ctx, gabci.ProcessProposalRequest{
			Txs:    txsOfLen(1000, 0),
			Height: 2,
		})
		require.NoError(t, err)
		require.Equal(t, gabci.ProposalAccept, resp.Status)
		require.Empty(t, fx.Fake.Calls())
	})

	t.Run("configured policy", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fx := newFixture(t)
		fx.Cfg.ProposalPolicy = gdriver.MaxBytesPolicy{MaxTxBytes: 8}
		fx.Start(ctx)

		resp, err := fx.Client.ProcessProposal(ctx, gabci.ProcessProposalRequest{Txs: txsOfLen(4, 4)})
		require.NoError(t, err)
		require.Equal(t, gabci.ProposalAccept, resp.Status)

		resp, err = fx.Client.ProcessProposal(ctx, gabci.ProcessProposalRequest{Txs: txsOfLen(4, 5)})
		require.NoError(t, err)
		require.Equal(t, gabci.ProposalReject, resp.Status)

		// A rejection is not an error.
		require.NoError(t, fx.Driver.Err())
	})
}
