package gkvapp

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tx is the transaction envelope.
// Exactly one field must be set.
type Tx struct {
	Transfer *Transfer `cbor:"1,keyasint,omitempty"`
	SetPower *SetPower `cbor:"2,keyasint,omitempty"`
}

// Transfer moves Amount from one account to another.
type Transfer struct {
	From   string `cbor:"1,keyasint"`
	To     string `cbor:"2,keyasint"`
	Amount uint64 `cbor:"3,keyasint"`
}

// SetPower sets the voting power of a validator, effective at the end of the block.
// A power of zero removes the validator.
type SetPower struct {
	// Type-prefixed public key, as produced by gcrypto.Registry.Marshal.
	PubKey []byte `cbor:"1,keyasint"`
	Power  uint64 `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("BUG: cbor encoder options: %w", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("BUG: cbor decoder options: %w", err))
	}
}

var errTxVariant = errors.New("tx must set exactly one of transfer or set_power")

// EncodeTx returns the canonical encoding of tx.
func EncodeTx(tx Tx) ([]byte, error) {
	if (tx.Transfer == nil) == (tx.SetPower == nil) {
		return nil, errTxVariant
	}
	return encMode.Marshal(tx)
}

// DecodeTx decodes b.
// Only the canonical encoding is accepted,
// which also excludes trailing bytes, unknown fields, and duplicate keys.
func DecodeTx(b []byte) (Tx, error) {
	var tx Tx
	if err := decMode.Unmarshal(b, &tx); err != nil {
		return Tx{}, err
	}
	if (tx.Transfer == nil) == (tx.SetPower == nil) {
		return Tx{}, errTxVariant
	}

	canonical, err := encMode.Marshal(tx)
	if err != nil {
		return Tx{}, fmt.Errorf("failed to re-encode tx: %w", err)
	}
	if !bytes.Equal(canonical, b) {
		return Tx{}, errors.New("tx is not canonically encoded")
	}
	return tx, nil
}
