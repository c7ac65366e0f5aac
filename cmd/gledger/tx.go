package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/spf13/cobra"
)

func newTxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use: "tx SUBCOMMAND",

		Short: "Encode ledger transactions as base64, for use in a blocks file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use: "transfer FROM TO AMOUNT",

			Short: "Encode a transfer between two accounts",

			Args: cobra.ExactArgs(3),

			RunE: func(cmd *cobra.Command, args []string) error {
				amt, err := parseUint(args[2])
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
				return printTx(cmd, gkvapp.Tx{Transfer: &gkvapp.Transfer{
					From:   args[0],
					To:     args[1],
					Amount: amt,
				}})
			},
		},

		&cobra.Command{
			Use: "set-power HEX_ED25519_PUBKEY POWER",

			Short: "Encode a validator power change; power 0 removes the validator",

			Args: cobra.ExactArgs(2),

			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("invalid public key hex: %w", err)
				}
				pubKey, err := gcrypto.NewEd25519PubKey(raw)
				if err != nil {
					return err
				}
				power, err := parseUint(args[1])
				if err != nil {
					return fmt.Errorf("invalid power: %w", err)
				}
				return printTx(cmd, gkvapp.Tx{SetPower: &gkvapp.SetPower{
					PubKey: newRegistry().Marshal(pubKey),
					Power:  power,
				}})
			},
		},
	)

	return cmd
}

func printTx(cmd *cobra.Command, tx gkvapp.Tx) error {
	b, err := gkvapp.EncodeTx(tx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b))
	return err
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
