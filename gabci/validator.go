package gabci

import (
	"bytes"
	"slices"

	"github.com/gordian-engine/gledger/gcrypto"
)

// Validator is a member of the validator set and its voting power.
type Validator struct {
	PubKey gcrypto.PubKey
	Power  uint64
}

// Equal reports whether v and other have the same power and equal keys.
func (v Validator) Equal(other Validator) bool {
	return v.Power == other.Power && v.PubKey.Equal(other.PubKey)
}

// SortValidators sorts vs in place, by descending power,
// then by ascending public key bytes for equal power.
func SortValidators(vs []Validator) {
	slices.SortStableFunc(vs, func(a, b Validator) int {
		if a.Power != b.Power {
			if a.Power > b.Power {
				return -1
			}
			return 1
		}
		return bytes.Compare(a.PubKey.PubKeyBytes(), b.PubKey.PubKeyBytes())
	})
}

// ValidatorsEqual reports whether a and b contain equal validators in the same order.
func ValidatorsEqual(a, b []Validator) bool {
	return slices.EqualFunc(a, b, Validator.Equal)
}
