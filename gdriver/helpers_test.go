package gdriver_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gapp/gapptest"
	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/gordian-engine/gledger/gdriver"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gstore/gmemstore"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/stretchr/testify/require"
)

// fixture wires a driver to a store and app over an unbuffered envelope channel.
// Fields may be changed between newFixture and Start.
type fixture struct {
	t *testing.T

	Store gstore.Store
	App   gapp.App

	// Set when App is the default scripted app.
	Fake *gapptest.App

	Envelopes chan gabci.Envelope

	Cfg gdriver.DriverConfig

	Driver *gdriver.Driver
	Client *gdriver.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := &gapptest.App{}
	return &fixture{
		t:         t,
		Store:     gmemstore.NewStore(),
		App:       fake,
		Fake:      fake,
		Envelopes: make(chan gabci.Envelope),
	}
}

// Start starts the driver and registers a cleanup that waits for it.
// Callers must cancel ctx, or close the envelope channel, before the test ends.
func (f *fixture) Start(ctx context.Context) {
	f.t.Helper()

	cfg := f.Cfg
	cfg.Store = f.Store
	cfg.App = f.App
	cfg.Envelopes = f.Envelopes

	f.Driver = gdriver.NewDriver(ctx, gtest.NewLogger(f.t), cfg)
	f.Client = gdriver.NewClient(f.Envelopes, f.Driver.Done())
	f.t.Cleanup(f.Driver.Wait)
}

// send sends req directly as an envelope and returns the envelope.
func (f *fixture) send(ctx context.Context, req gabci.Request) gabci.Envelope {
	f.t.Helper()
	env := gabci.NewEnvelope(ctx, req)
	gtest.SendSoon(f.t, f.Envelopes, env)
	return env
}

func newRegistry() *gcrypto.Registry {
	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)
	return &reg
}

// kvGenesis returns an InitChain request with gkvapp content.
func kvGenesis(t *testing.T, accounts map[string]uint64, powers ...uint64) gabci.InitChainRequest {
	t.Helper()

	keys := gcryptotest.DeterministicEd25519PubKeys(len(powers))
	g := gkvapp.Genesis{Accounts: accounts}
	for i, p := range powers {
		g.Validators = append(g.Validators, gkvapp.GenesisValidator{
			PubKey: hex.EncodeToString(keys[i]),
			Power:  p,
		})
	}
	content, err := json.Marshal(g)
	require.NoError(t, err)

	appState, err := json.Marshal(gapp.GenesisAppState{Content: content})
	require.NoError(t, err)

	return gabci.InitChainRequest{
		ChainID:       "gledger-test",
		InitialHeight: 1,
		AppStateBytes: appState,
		ConsensusParams: &cometapitypes.ConsensusParams{
			Block: &cometapitypes.BlockParams{MaxBytes: 1 << 20, MaxGas: -1},
		},
	}
}

func contentGenesis(content string) gabci.InitChainRequest {
	return gabci.InitChainRequest{
		ChainID:       "gledger-test",
		InitialHeight: 1,
		AppStateBytes: []byte(`{"content":` + content + `}`),
	}
}

func checkpointGenesis(h []byte) gabci.InitChainRequest {
	return gabci.InitChainRequest{
		ChainID:       "gledger-test",
		InitialHeight: 1,
		AppStateBytes: []byte(`{"checkpoint":"` + hex.EncodeToString(h) + `"}`),
	}
}

func header(h int64) cometapitypes.Header {
	return cometapitypes.Header{
		ChainID: "gledger-test",
		Height:  h,
		Time:    time.Unix(1_700_000_000+h, 0).UTC(),
	}
}

func transferTx(t *testing.T, from, to string, amount uint64) []byte {
	t.Helper()
	b, err := gkvapp.EncodeTx(gkvapp.Tx{Transfer: &gkvapp.Transfer{From: from, To: to, Amount: amount}})
	require.NoError(t, err)
	return b
}
