// Package gcrypto contains the public key types used to identify validators.
package gcrypto

// PubKey is a validator identity key.
type PubKey interface {
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool

	// TypeName is the name under which the key type is registered
	// in a [Registry].
	TypeName() string
}
