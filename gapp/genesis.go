package gapp

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
)

// GenesisContent is the engine-specific genesis configuration, as raw JSON.
type GenesisContent = json.RawMessage

// GenesisAppState is the application state in a genesis file.
// Exactly one of Checkpoint or Content is set.
//
// Its JSON form is externally tagged:
//
//	{"checkpoint": "<hex app hash>"}
//	{"content": { ...engine configuration... }}
type GenesisAppState struct {
	// Checkpoint is the app hash of state that already exists in the store,
	// for a node started from a snapshot.
	Checkpoint []byte

	Content GenesisContent
}

// IsCheckpoint reports whether s is the checkpoint variant.
func (s GenesisAppState) IsCheckpoint() bool {
	return s.Checkpoint != nil
}

var errGenesisVariant = errors.New(`app state must have exactly one of "checkpoint" or "content"`)

type genesisAppStateJSON struct {
	Checkpoint *string         `json:"checkpoint,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
}

// ParseGenesisAppState decodes b, rejecting unknown fields
// and anything other than exactly one variant.
func ParseGenesisAppState(b []byte) (GenesisAppState, error) {
	var raw genesisAppStateJSON
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return GenesisAppState{}, fmt.Errorf("failed to decode app state: %w", err)
	}
	if dec.More() {
		return GenesisAppState{}, errors.New("failed to decode app state: trailing data")
	}

	hasContent := len(raw.Content) > 0 && !bytes.Equal(raw.Content, []byte("null"))
	switch {
	case raw.Checkpoint != nil && hasContent, raw.Checkpoint == nil && !hasContent:
		return GenesisAppState{}, errGenesisVariant
	case raw.Checkpoint != nil:
		h, err := hex.DecodeString(*raw.Checkpoint)
		if err != nil {
			return GenesisAppState{}, fmt.Errorf("invalid checkpoint hash: %w", err)
		}
		if len(h) == 0 {
			return GenesisAppState{}, errors.New("invalid checkpoint hash: empty")
		}
		return GenesisAppState{Checkpoint: h}, nil
	default:
		return GenesisAppState{Content: raw.Content}, nil
	}
}

func (s GenesisAppState) MarshalJSON() ([]byte, error) {
	switch {
	case s.Checkpoint != nil && s.Content != nil, s.Checkpoint == nil && s.Content == nil:
		return nil, errGenesisVariant
	case s.Checkpoint != nil:
		c := hex.EncodeToString(s.Checkpoint)
		return json.Marshal(genesisAppStateJSON{Checkpoint: &c})
	default:
		return json.Marshal(genesisAppStateJSON{Content: s.Content})
	}
}

func (s *GenesisAppState) UnmarshalJSON(b []byte) error {
	parsed, err := ParseGenesisAppState(b)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Genesis is the on-disk genesis file read by the CLI.
type Genesis struct {
	ChainID       string `json:"chain_id"`
	InitialHeight int64  `json:"initial_height"`

	ConsensusParams *cometapitypes.ConsensusParams `json:"consensus_params,omitempty"`

	// Kept raw so that it reaches the driver byte for byte.
	AppState json.RawMessage `json:"app_state"`
}

// ReadGenesisFile reads and minimally validates a genesis file.
// The app state is validated by [ParseGenesisAppState].
func ReadGenesisFile(path string) (Genesis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("failed to read genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(b, &g); err != nil {
		return Genesis{}, fmt.Errorf("failed to decode genesis file %q: %w", path, err)
	}

	if g.ChainID == "" {
		return Genesis{}, errors.New("genesis file has empty chain_id")
	}
	if g.InitialHeight <= 0 {
		g.InitialHeight = 1
	}
	if _, err := ParseGenesisAppState(g.AppState); err != nil {
		return Genesis{}, fmt.Errorf("genesis file %q: %w", path, err)
	}
	return g, nil
}

// WriteGenesisFile writes g as indented JSON.
func WriteGenesisFile(path string, g Genesis) error {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode genesis: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write genesis file: %w", err)
	}
	return nil
}
