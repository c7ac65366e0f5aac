package gkvapp_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gstore/gmemstore"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/stretchr/testify/require"
)

func newRegistry() *gcrypto.Registry {
	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)
	return &reg
}

func genesisContent(t *testing.T, accounts map[string]uint64, powers ...uint64) []byte {
	t.Helper()

	keys := gcryptotest.DeterministicEd25519PubKeys(len(powers))
	g := gkvapp.Genesis{Accounts: accounts}
	for i, p := range powers {
		g.Validators = append(g.Validators, gkvapp.GenesisValidator{
			PubKey: hex.EncodeToString(keys[i]),
			Power:  p,
		})
	}
	b, err := json.Marshal(g)
	require.NoError(t, err)
	return b
}

func mustTx(t *testing.T, tx gkvapp.Tx) []byte {
	t.Helper()
	b, err := gkvapp.EncodeTx(tx)
	require.NoError(t, err)
	return b
}

func header(h int64) cometapitypes.Header {
	return cometapitypes.Header{
		ChainID: "test",
		Height:  h,
		Time:    time.Unix(1_700_000_000+h, 0).UTC(),
	}
}

// fixture is an initialized app over a memory store at version 0.
type fixture struct {
	app   *gkvapp.App
	store gstore.Store
	reg   *gcrypto.Registry
}

func newFixture(t *testing.T, ctx context.Context, accounts map[string]uint64, powers ...uint64) fixture {
	t.Helper()

	reg := newRegistry()
	store := gmemstore.NewStore()
	app, err := gkvapp.New(ctx, gtest.NewLogger(t), store, reg)
	require.NoError(t, err)

	require.NoError(t, app.InitChain(ctx, genesisContent(t, accounts, powers...)))
	_, err = app.Commit(ctx, store)
	require.NoError(t, err)

	return fixture{app: app, store: store, reg: reg}
}

func TestApp_InitChain(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx, map[string]uint64{"alice": 100, "bob": 5}, 1, 10)
	require.Equal(t, uint64(0), fx.store.LatestVersion())

	bal, err := gkvapp.Balance(ctx, fx.store.LatestSnapshot(), "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal)

	vals := fx.app.ValidatorUpdates()
	require.Len(t, vals, 2)
	require.Equal(t, uint64(10), vals[0].Power)
	require.Equal(t, uint64(1), vals[1].Power)

	stored, err := gkvapp.LoadValidators(ctx, fx.store.LatestSnapshot(), fx.reg)
	require.NoError(t, err)
	require.True(t, gabci.ValidatorsEqual(vals, stored))
}

func TestApp_InitChain_invalid(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for name, content := range map[string]string{
		"no validators": `{"accounts":{"a":1},"validators":[]}`,
		"zero power":    `{"validators":[{"pub_key":"` + hex.EncodeToString(gcryptotest.DeterministicEd25519PubKeys(1)[0]) + `","power":0}]}`,
		"bad key":       `{"validators":[{"pub_key":"abcd","power":1}]}`,
		"unknown type":  `{"validators":[{"type":"rsa","pub_key":"abcd","power":1}]}`,
		"empty account": `{"accounts":{"":1},"validators":[]}`,
		"unknown field": `{"bogus":true}`,
	} {
		app, err := gkvapp.New(ctx, gtest.NewLogger(t), gmemstore.NewStore(), newRegistry())
		require.NoError(t, err)
		require.Errorf(t, app.InitChain(ctx, []byte(content)), "case %s", name)
	}
}

func TestApp_transfer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx, map[string]uint64{"alice": 100}, 1)

	_, err := fx.app.BeginBlock(ctx, header(1))
	require.NoError(t, err)

	evs, err := fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		Transfer: &gkvapp.Transfer{From: "alice", To: "bob", Amount: 30},
	}))
	require.NoError(t, err)
	require.Equal(t, []gabci.Event{
		gabci.NewEvent("transfer", "from", "alice", "to", "bob", "amount", "30"),
	}, evs)

	// Overdraft fails with a wrapped typed error and changes nothing.
	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		Transfer: &gkvapp.Transfer{From: "alice", To: "bob", Amount: 71},
	}))
	var ife gkvapp.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	require.Equal(t, gkvapp.InsufficientFundsError{Account: "alice", Have: 70, Want: 71}, ife)
	require.Contains(t, err.Error(), "transfer rejected")

	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		Transfer: &gkvapp.Transfer{From: "alice", To: "alice", Amount: 1},
	}))
	require.ErrorIs(t, err, gkvapp.ErrSelfTransfer)

	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		Transfer: &gkvapp.Transfer{From: "alice", To: "bob", Amount: 0},
	}))
	require.ErrorIs(t, err, gkvapp.ErrZeroAmount)

	_, err = fx.app.DeliverTx(ctx, []byte("garbage"))
	require.ErrorContains(t, err, "failed to decode tx")

	_, err = fx.app.EndBlock(ctx, 1)
	require.NoError(t, err)
	h, err := fx.app.Commit(ctx, fx.store)
	require.NoError(t, err)
	require.Equal(t, fx.store.RootHash(), h)
	require.Equal(t, uint64(1), fx.store.LatestVersion())

	snap := fx.store.LatestSnapshot()
	bal, err := gkvapp.Balance(ctx, snap, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(70), bal)
	bal, err = gkvapp.Balance(ctx, snap, "bob")
	require.NoError(t, err)
	require.Equal(t, uint64(30), bal)
}

func TestApp_setPowerAppliesAtEndBlock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx, nil, 5, 5)
	keys := gcryptotest.DeterministicEd25519PubKeys(3)

	_, err := fx.app.BeginBlock(ctx, header(1))
	require.NoError(t, err)

	// Add a third validator with the highest power, and remove the first.
	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		SetPower: &gkvapp.SetPower{PubKey: fx.reg.Marshal(keys[2]), Power: 9},
	}))
	require.NoError(t, err)
	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		SetPower: &gkvapp.SetPower{PubKey: fx.reg.Marshal(keys[0]), Power: 0},
	}))
	require.NoError(t, err)

	// Not yet visible.
	require.Len(t, fx.app.ValidatorUpdates(), 2)

	_, err = fx.app.EndBlock(ctx, 1)
	require.NoError(t, err)

	want := []gabci.Validator{
		{PubKey: keys[2], Power: 9},
		{PubKey: keys[1], Power: 5},
	}
	require.True(t, gabci.ValidatorsEqual(want, fx.app.ValidatorUpdates()))

	_, err = fx.app.Commit(ctx, fx.store)
	require.NoError(t, err)

	stored, err := gkvapp.LoadValidators(ctx, fx.store.LatestSnapshot(), fx.reg)
	require.NoError(t, err)
	require.True(t, gabci.ValidatorsEqual(want, stored))

	// A fresh app over the same store sees the same set.
	app2, err := gkvapp.New(ctx, gtest.NewLogger(t), fx.store, fx.reg)
	require.NoError(t, err)
	require.True(t, gabci.ValidatorsEqual(want, app2.ValidatorUpdates()))
}

func TestApp_setPowerCannotEmptySet(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx, nil, 5)
	keys := gcryptotest.DeterministicEd25519PubKeys(1)

	_, err := fx.app.BeginBlock(ctx, header(1))
	require.NoError(t, err)

	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		SetPower: &gkvapp.SetPower{PubKey: fx.reg.Marshal(keys[0]), Power: 0},
	}))
	require.ErrorIs(t, err, gkvapp.ErrEmptyValidatorSet)

	_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
		SetPower: &gkvapp.SetPower{PubKey: []byte("short"), Power: 1},
	}))
	require.ErrorContains(t, err, "invalid public key")
}

func TestApp_blockLifecycle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, ctx, nil, 1)

	_, err := fx.app.DeliverTx(ctx, nil)
	require.ErrorIs(t, err, gkvapp.ErrNoBlock)

	_, err = fx.app.BeginBlock(ctx, header(1))
	require.NoError(t, err)
	_, err = fx.app.BeginBlock(ctx, header(2))
	require.ErrorIs(t, err, gkvapp.ErrBlockInProgress)

	_, err = fx.app.EndBlock(ctx, 2)
	require.Error(t, err)
}

func TestApp_determinism(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := func() []byte {
		fx := newFixture(t, ctx, map[string]uint64{"a": 10, "b": 10, "c": 10}, 3, 2, 1)
		var h []byte
		for height := int64(1); height <= 3; height++ {
			_, err := fx.app.BeginBlock(ctx, header(height))
			require.NoError(t, err)
			_, err = fx.app.DeliverTx(ctx, mustTx(t, gkvapp.Tx{
				Transfer: &gkvapp.Transfer{From: "a", To: "b", Amount: uint64(height)},
			}))
			require.NoError(t, err)
			_, err = fx.app.EndBlock(ctx, height)
			require.NoError(t, err)
			h, err = fx.app.Commit(ctx, fx.store)
			require.NoError(t, err)
		}
		return h
	}

	require.Equal(t, run(), run())
}
