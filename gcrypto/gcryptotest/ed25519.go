// Package gcryptotest contains key helpers for tests.
package gcryptotest

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/gordian-engine/gledger/gcrypto"
)

// DeterministicEd25519PubKeys returns n ed25519 public keys
// derived from fixed seeds, so that repeated runs produce the same keys
// and logs are comparable across runs.
func DeterministicEd25519PubKeys(n int) []gcrypto.Ed25519PubKey {
	out := make([]gcrypto.Ed25519PubKey, n)
	for i := range out {
		out[i] = gcrypto.Ed25519PubKey(DeterministicEd25519PrivKey(i).Public().(ed25519.PublicKey))
	}
	return out
}

// DeterministicEd25519PrivKey returns the private key for index i
// as used by [DeterministicEd25519PubKeys].
func DeterministicEd25519PrivKey(i int) ed25519.PrivateKey {
	var seed [ed25519.SeedSize]byte
	copy(seed[:], "gledger-test-key")
	binary.BigEndian.PutUint64(seed[ed25519.SeedSize-8:], uint64(i))
	return ed25519.NewKeyFromSeed(seed[:])
}
