package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gserver"
	"github.com/gordian-engine/gledger/gsqlite"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gstore/gmemstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

// addStoreFlags adds the --db and --http-addr flags shared by replay and serve.
func addStoreFlags(f *pflag.FlagSet, dbUsage, defaultHTTPAddr, httpUsage string) {
	f.String("db", "", dbUsage)
	f.String("http-addr", defaultHTTPAddr, httpUsage)
}

// openStore opens the store named by the --db flag:
// empty for an in-process memory store,
// ":memory:" for an in-memory SQLite store,
// or a path to an on-disk SQLite database.
// The returned closer is never nil.
func openStore(ctx context.Context, log *slog.Logger, db string) (gstore.Store, io.Closer, error) {
	switch db {
	case "":
		return gmemstore.NewStore(), nopCloser{}, nil
	case ":memory:":
		s, err := gsqlite.NewInMemStore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open in-memory sqlite store: %w", err)
		}
		return s, s, nil
	default:
		s, err := gsqlite.NewOnDiskStore(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store at %s: %w", db, err)
		}
		log.Info("Opened store", "path", db, "build", s.BuildType, "latest_version", s.LatestVersion())
		return s, s, nil
	}
}

// startHTTP starts the query server on addr,
// returning the bound address and the server.
func startHTTP(
	ctx context.Context,
	log *slog.Logger,
	addr string,
	store gstore.Store,
	gatherer prometheus.Gatherer,
) (net.Addr, *gserver.HTTPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen for HTTP on %s: %w", addr, err)
	}

	reg := newRegistry()
	srv := gserver.NewHTTPServer(ctx, log.With("sys", "http"), gserver.HTTPServerConfig{
		Listener: ln,
		Store:    store,
		Gatherer: gatherer,
		Validators: func(ctx context.Context, snap gstore.Snapshot) ([]gabci.Validator, error) {
			return gkvapp.LoadValidators(ctx, snap, reg)
		},
	})
	log.Info("HTTP server listening", "addr", ln.Addr().String())
	return ln.Addr(), srv, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
