// Command gledger drives the reference ledger application
// through the block execution driver.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	root := NewRootCmd(os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

// env is shared by every subcommand.
type env struct {
	v *viper.Viper

	logOut io.Writer
	log    *slog.Logger
}

// NewRootCmd returns the gledger root command, logging to logOut.
//
// Every flag may also be set through an environment variable
// with the GLEDGER_ prefix, such as GLEDGER_LOG_LEVEL.
func NewRootCmd(logOut io.Writer) *cobra.Command {
	e := &env{
		v:      viper.New(),
		logOut: logOut,
	}
	e.v.SetEnvPrefix("GLEDGER")
	e.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	e.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use: "gledger SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		SilenceUsage:  true,
		SilenceErrors: true,

		Long: `gledger runs a single-node token ledger through the block execution driver.

A typical session:

1. Write a genesis file:
     $ gledger init-genesis --chain-id demo --account alice=100 --validator <hex-pubkey>=10
2. Encode transactions:
     $ gledger tx transfer alice bob 5
3. Put blocks in a JSON lines file, one {"height":1,"txs":["<base64>"]} per line,
   and replay them into a database:
     $ gledger replay genesis.json blocks.jsonl --db ledger.sqlite
4. Query the resulting state:
     $ gledger serve --db ledger.sqlite --http-addr 127.0.0.1:26680
`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := e.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}

			log, err := newLogger(e.logOut, e.v.GetString("log-level"), e.v.GetString("log-format"))
			if err != nil {
				return err
			}
			e.log = log
			return nil
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "The logging level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "The logging format (text|json)")

	rootCmd.AddCommand(
		newInitGenesisCmd(e),
		newTxCmd(e),

		newReplayCmd(e),
		newServeCmd(e),
	)

	return rootCmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", format)
	}
}
