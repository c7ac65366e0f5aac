package gcrypto_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RoundTrip(t *testing.T) {
	t.Parallel()

	origKey := gcryptotest.DeterministicEd25519PubKeys(1)[0]

	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)

	b := reg.Marshal(origKey)

	newKey, err := reg.Unmarshal(b)
	require.NoError(t, err)

	require.True(t, origKey.Equal(newKey))
}

func TestRegistry_Unmarshal_errors(t *testing.T) {
	t.Parallel()

	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)

	_, err := reg.Unmarshal([]byte("abcd\x00\x00\x00\x00111222333"))
	require.ErrorContains(t, err, "no registered public key type for prefix \"abcd\"")

	_, err = reg.Unmarshal([]byte("ed2"))
	require.ErrorContains(t, err, "too short")

	_, err = reg.Unmarshal([]byte("ed25519\x00short"))
	require.ErrorContains(t, err, "invalid ed25519 public key length")
}

func TestRegistry_Register_duplicatePanics(t *testing.T) {
	t.Parallel()

	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)

	require.Panics(t, func() {
		gcrypto.RegisterEd25519(reg)
	})
}

func TestEd25519(t *testing.T) {
	t.Parallel()

	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)

	keys := gcryptotest.DeterministicEd25519PubKeys(2)
	require.Equal(t, keys, gcryptotest.DeterministicEd25519PubKeys(2))

	dec, err := reg.Decode("ed25519", keys[0].PubKeyBytes())
	require.NoError(t, err)
	require.True(t, keys[0].Equal(dec))
	require.False(t, keys[1].Equal(dec))

	msg := []byte("hello")
	sig := ed25519.Sign(gcryptotest.DeterministicEd25519PrivKey(0), msg)
	require.True(t, keys[0].Verify(msg, sig))
	require.False(t, keys[1].Verify(msg, sig))
}
