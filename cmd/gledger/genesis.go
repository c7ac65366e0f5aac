package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/spf13/cobra"
)

func newInitGenesisCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use: "init-genesis",

		Short: "Write a genesis file for the ledger application",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			v := e.v

			chainID := v.GetString("chain-id")
			if chainID == "" {
				return fmt.Errorf("--chain-id is required")
			}

			var appState gapp.GenesisAppState
			if cp := v.GetString("checkpoint"); cp != "" {
				h, err := hex.DecodeString(cp)
				if err != nil {
					return fmt.Errorf("invalid --checkpoint: %w", err)
				}
				appState.Checkpoint = h
			} else {
				content, err := genesisContent(
					v.GetStringMapString("account"),
					v.GetStringMapString("validator"),
				)
				if err != nil {
					return err
				}
				appState.Content = content
			}

			appStateJSON, err := json.Marshal(appState)
			if err != nil {
				return fmt.Errorf("failed to encode app state: %w", err)
			}

			g := gapp.Genesis{
				ChainID:       chainID,
				InitialHeight: v.GetInt64("initial-height"),
				ConsensusParams: &cometapitypes.ConsensusParams{
					Block: &cometapitypes.BlockParams{
						MaxBytes: v.GetInt64("max-block-bytes"),
						MaxGas:   -1,
					},
				},
				AppState: appStateJSON,
			}

			out := v.GetString("out")
			if out == "-" {
				b, err := json.MarshalIndent(g, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
				return err
			}
			if err := gapp.WriteGenesisFile(out, g); err != nil {
				return err
			}
			e.log.Info("Wrote genesis file", "path", out, "chain_id", chainID)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("chain-id", "", "Chain ID (required)")
	f.Int64("initial-height", 1, "Height of the first block")
	f.Int64("max-block-bytes", 1<<20, "Maximum total transaction bytes in a proposed block")
	f.StringToString("account", nil, "Genesis account balance as NAME=AMOUNT (repeatable)")
	f.StringToString("validator", nil, "Genesis validator as HEX_ED25519_PUBKEY=POWER (repeatable)")
	f.String("checkpoint", "", "Hex app hash of existing state; replaces accounts and validators")
	f.String("out", "genesis.json", "Output path, or - for stdout")

	return cmd
}

// genesisContent builds and validates the ledger genesis content.
func genesisContent(accounts, validators map[string]string) (json.RawMessage, error) {
	g := gkvapp.Genesis{Accounts: make(map[string]uint64, len(accounts))}
	for name, amt := range accounts {
		n, err := parseUint(amt)
		if err != nil {
			return nil, fmt.Errorf("invalid balance for account %q: %w", name, err)
		}
		g.Accounts[name] = n
	}

	// Sorted so the output does not depend on map order.
	keys := make([]string, 0, len(validators))
	for k := range validators {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p, err := parseUint(validators[k])
		if err != nil {
			return nil, fmt.Errorf("invalid power for validator %s: %w", k, err)
		}
		g.Validators = append(g.Validators, gkvapp.GenesisValidator{
			PubKey: strings.ToLower(k),
			Power:  p,
		})
	}

	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode genesis content: %w", err)
	}

	if _, _, err := gkvapp.ParseGenesis(b, newRegistry()); err != nil {
		return nil, err
	}
	return b, nil
}

func newRegistry() *gcrypto.Registry {
	var reg gcrypto.Registry
	gcrypto.RegisterEd25519(&reg)
	return &reg
}
