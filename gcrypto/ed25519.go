package gcrypto

import (
	"crypto/ed25519"
	"fmt"
)

const ed25519TypeName = "ed25519"

// RegisterEd25519 registers ed25519 with the given Registry.
// There is no global registry; it is the caller's responsibility
// to register as needed.
func RegisterEd25519(reg *Registry) {
	reg.Register(ed25519TypeName, Ed25519PubKey{}, NewEd25519PubKey)
}

type Ed25519PubKey ed25519.PublicKey

// NewEd25519PubKey returns b as an [Ed25519PubKey],
// or an error if b is not exactly [ed25519.PublicKeySize] bytes.
func NewEd25519PubKey(b []byte) (PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf(
			"invalid ed25519 public key length: want %d, got %d",
			ed25519.PublicKeySize, len(b),
		)
	}
	return Ed25519PubKey(b), nil
}

func (e Ed25519PubKey) PubKeyBytes() []byte {
	return []byte(e)
}

func (e Ed25519PubKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(e), msg, sig)
}

func (e Ed25519PubKey) Equal(other PubKey) bool {
	o, ok := other.(Ed25519PubKey)
	if !ok {
		return false
	}

	return ed25519.PublicKey(e).Equal(ed25519.PublicKey(o))
}

func (e Ed25519PubKey) TypeName() string {
	return ed25519TypeName
}
