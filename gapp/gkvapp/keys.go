package gkvapp

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes in the store.
const (
	AccountPrefix   = "acct/"
	ValidatorPrefix = "val/"
	metaHeightKey   = "meta/height"
)

// AccountKey is the store key holding the balance of the named account.
func AccountKey(name string) []byte {
	return []byte(AccountPrefix + name)
}

// ValidatorKey is the store key holding the power of the validator
// whose registry-encoded public key is encKey.
func ValidatorKey(encKey []byte) []byte {
	return append([]byte(ValidatorPrefix), encKey...)
}

func encodeUint64(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8-byte integer, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
