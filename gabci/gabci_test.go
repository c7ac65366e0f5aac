package gabci_test

import (
	"bytes"
	"context"
	"slices"
	"testing"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func TestRequestKind(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		req  gabci.Request
		want string
	}{
		{req: gabci.InitChainRequest{}, want: "init_chain"},
		{req: gabci.BeginBlockRequest{}, want: "begin_block"},
		{req: gabci.DeliverTxRequest{}, want: "deliver_tx"},
		{req: gabci.EndBlockRequest{}, want: "end_block"},
		{req: gabci.CommitRequest{}, want: "commit"},
		{req: gabci.PrepareProposalRequest{}, want: "prepare_proposal"},
		{req: gabci.ProcessProposalRequest{}, want: "process_proposal"},
		{req: nil, want: "unknown"},
	} {
		require.Equal(t, tc.want, gabci.RequestKind(tc.req))
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := gabci.NewEnvelope(ctx, gabci.CommitRequest{})
	require.Equal(t, gabci.CommitRequest{}, env.Request)
	require.Equal(t, 1, cap(env.Resp))

	// Buffered send must not block even with no receiver.
	env.Resp <- gabci.CommitResponse{}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	e := gabci.NewEvent("transfer", "from", "alice", "to", "bob")
	require.Equal(t, "transfer", e.Type)
	require.Equal(t, []gabci.EventAttribute{
		{Key: "from", Value: "alice", Index: true},
		{Key: "to", Value: "bob", Index: true},
	}, e.Attributes)

	require.Nil(t, gabci.NewEvent("empty").Attributes)

	require.Panics(t, func() {
		_ = gabci.NewEvent("bad", "only-key")
	})
}

func TestSortValidators(t *testing.T) {
	t.Parallel()

	keys := gcryptotest.DeterministicEd25519PubKeys(3)
	// Order keys by bytes so the expectations are explicit.
	slices.SortFunc(keys, func(a, b gcrypto.Ed25519PubKey) int {
		return bytes.Compare(a, b)
	})

	vs := []gabci.Validator{
		{PubKey: keys[2], Power: 5},
		{PubKey: keys[0], Power: 1},
		{PubKey: keys[1], Power: 5},
	}
	gabci.SortValidators(vs)

	want := []gabci.Validator{
		{PubKey: keys[1], Power: 5},
		{PubKey: keys[2], Power: 5},
		{PubKey: keys[0], Power: 1},
	}
	require.True(t, gabci.ValidatorsEqual(want, vs))
}

func TestProposalStatus_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Accept", gabci.ProposalAccept.String())
	require.Equal(t, "Reject", gabci.ProposalReject.String())
	require.Equal(t, "ProposalStatus(9)", gabci.ProposalStatus(9).String())
}
