package gkvapp

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gcrypto"
)

// Genesis is the engine's genesis content.
type Genesis struct {
	Accounts   map[string]uint64  `json:"accounts"`
	Validators []GenesisValidator `json:"validators"`
}

type GenesisValidator struct {
	// Key type name in the registry; defaults to "ed25519".
	Type string `json:"type,omitempty"`

	// Hex-encoded raw public key bytes.
	PubKey string `json:"pub_key"`

	Power uint64 `json:"power"`
}

// ParseGenesis decodes and validates genesis content.
func ParseGenesis(b []byte, reg *gcrypto.Registry) (Genesis, []gabci.Validator, error) {
	var g Genesis
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return Genesis{}, nil, fmt.Errorf("failed to decode genesis content: %w", err)
	}

	for name := range g.Accounts {
		if err := validateAccountName(name); err != nil {
			return Genesis{}, nil, fmt.Errorf("genesis account: %w", err)
		}
	}

	if len(g.Validators) == 0 {
		return Genesis{}, nil, errors.New("genesis must have at least one validator")
	}

	vals := make([]gabci.Validator, 0, len(g.Validators))
	seen := make(map[string]struct{}, len(g.Validators))
	for i, gv := range g.Validators {
		typ := gv.Type
		if typ == "" {
			typ = "ed25519"
		}
		raw, err := hex.DecodeString(gv.PubKey)
		if err != nil {
			return Genesis{}, nil, fmt.Errorf("genesis validator %d: invalid pub_key hex: %w", i, err)
		}
		pk, err := reg.Decode(typ, raw)
		if err != nil {
			return Genesis{}, nil, fmt.Errorf("genesis validator %d: %w", i, err)
		}
		if gv.Power == 0 {
			return Genesis{}, nil, fmt.Errorf("genesis validator %d: power must be positive", i)
		}
		enc := string(reg.Marshal(pk))
		if _, dup := seen[enc]; dup {
			return Genesis{}, nil, fmt.Errorf("genesis validator %d: duplicate public key %s", i, gv.PubKey)
		}
		seen[enc] = struct{}{}

		vals = append(vals, gabci.Validator{PubKey: pk, Power: gv.Power})
	}
	gabci.SortValidators(vals)

	return g, vals, nil
}

func validateAccountName(name string) error {
	if name == "" {
		return errors.New("account name must not be empty")
	}
	if strings.ContainsFunc(name, func(r rune) bool {
		return r < 0x20 || r == 0x7f
	}) {
		return fmt.Errorf("account name %q contains control characters", name)
	}
	return nil
}
