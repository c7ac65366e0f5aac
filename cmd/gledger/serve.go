package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use: "serve",

		Short: "Serve read-only state queries from an existing SQLite database",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db := e.v.GetString("db")
			if db == "" || db == ":memory:" {
				return fmt.Errorf("--db must name an on-disk database")
			}

			store, closer, err := openStore(ctx, e.log, db)
			if err != nil {
				return err
			}
			defer closer.Close()

			promReg := prometheus.NewRegistry()
			promReg.MustRegister(collectors.NewGoCollector())

			_, srv, err := startHTTP(ctx, e.log, e.v.GetString("http-addr"), store, promReg)
			if err != nil {
				return err
			}
			srv.Wait()
			return nil
		},
	}

	f := cmd.Flags()
	addStoreFlags(f, "SQLite database path (required)", "127.0.0.1:26680", "Address to serve queries on")

	return cmd
}
