package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	cometapitypes "github.com/cometbft/cometbft/api/cometbft/types/v1"
	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gapp/gkvapp"
	"github.com/gordian-engine/gledger/gassert"
	"github.com/gordian-engine/gledger/gdriver"
	"github.com/gordian-engine/gledger/gserver"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gwatchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// replayBlock is one line of a blocks file.
type replayBlock struct {
	Height int64     `json:"height"`
	Time   time.Time `json:"time"`

	// Base64 encoded, as printed by the tx subcommands.
	Txs [][]byte `json:"txs"`
}

func newReplayCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use: "replay GENESIS_FILE BLOCKS_FILE",

		Short: "Execute the blocks in a JSON lines file, printing the app hash after each",

		Long: `Execute the blocks in a JSON lines file, printing the app hash after each.

Each block is proposed, checked, and executed through the driver,
exactly as a consensus engine would.
If the database already has committed state,
the chain is resumed from its latest version
and blocks at or below the stored height are skipped.
`,

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := gapp.ReadGenesisFile(args[0])
			if err != nil {
				return err
			}

			blocks, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open blocks file: %w", err)
			}
			defer blocks.Close()

			return runReplay(cmd.Context(), e.log, cmd.OutOrStdout(), replayConfig{
				Genesis: g,
				Blocks:  blocks,

				DB:       e.v.GetString("db"),
				HTTPAddr: e.v.GetString("http-addr"),
				Hold:     e.v.GetBool("hold"),

				MaxTxBytes:       e.v.GetInt64("max-tx-bytes"),
				RejectOversized:  e.v.GetBool("reject-oversized"),
				WatchdogInterval: e.v.GetDuration("watchdog-interval"),
			})
		},
	}

	f := cmd.Flags()
	addStoreFlags(f,
		`SQLite database path, ":memory:" for in-memory SQLite, or empty for a memory store`,
		"", "If set, serve queries on this address while replaying",
	)
	f.Bool("hold", false, "Keep serving queries after the replay, until interrupted")
	f.Int64("max-tx-bytes", 0, "Proposal byte budget; defaults to the genesis block max bytes")
	f.Bool("reject-oversized", false, "Reject proposals over the byte budget instead of accepting every proposal")
	f.Duration("watchdog-interval", 0, "Interval between driver liveness checks (0 for the default)")

	return cmd
}

type replayConfig struct {
	Genesis gapp.Genesis
	Blocks  io.Reader

	DB       string
	HTTPAddr string
	Hold     bool

	MaxTxBytes       int64
	RejectOversized  bool
	WatchdogInterval time.Duration
}

func runReplay(ctx context.Context, log *slog.Logger, out io.Writer, cfg replayConfig) (finalErr error) {
	store, closer, err := openStore(ctx, log, cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			finalErr = errors.Join(finalErr, fmt.Errorf("failed to close store: %w", err))
		}
	}()

	wd, wCtx := gwatchdog.NewWatchdog(ctx, log.With("sys", "watchdog"))
	wCtx, cancel := context.WithCancel(wCtx)

	var srv *gserver.HTTPServer
	defer func() {
		cancel()
		if srv != nil {
			srv.Wait()
		}
		wd.Wait()
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := gdriver.NewMetrics(promReg)

	if cfg.HTTPAddr != "" {
		_, srv, err = startHTTP(wCtx, log, cfg.HTTPAddr, store, promReg)
		if err != nil {
			return err
		}
	}

	reg := newRegistry()
	app, err := gkvapp.New(ctx, log.With("sys", "app"), store, reg)
	if err != nil {
		return fmt.Errorf("failed to load application: %w", err)
	}

	budget := cfg.MaxTxBytes
	if budget == 0 {
		budget = 1 << 20
		if cp := cfg.Genesis.ConsensusParams; cp != nil && cp.Block != nil && cp.Block.MaxBytes > 0 {
			budget = cp.Block.MaxBytes
		}
	}

	var policy gdriver.ProposalPolicy = gdriver.AcceptAll{}
	if cfg.RejectOversized {
		policy = gdriver.MaxBytesPolicy{MaxTxBytes: budget}
	}

	envelopes := make(chan gabci.Envelope)
	d := gdriver.NewDriver(wCtx, log.With("sys", "driver"), gdriver.DriverConfig{
		Store:     store,
		App:       app,
		Envelopes: envelopes,

		Watchdog: wd,
		Monitor:  gwatchdog.MonitorConfig{Interval: cfg.WatchdogInterval},

		ProposalPolicy: policy,
		Metrics:        metrics,

		AssertEnv: gassert.DefaultEnv(),
	})
	defer d.Wait()
	defer close(envelopes)

	c := gdriver.NewClient(envelopes, d.Done())

	// withDriverErr adds the driver's fatal error, if any, to err.
	withDriverErr := func(err error) error {
		if errors.Is(err, gdriver.ErrDriverStopped) {
			<-d.Done()
			if dErr := d.Err(); dErr != nil {
				return fmt.Errorf("%w: %w", err, dErr)
			}
		}
		return err
	}

	initReq := gabci.InitChainRequest{
		ChainID:         cfg.Genesis.ChainID,
		InitialHeight:   cfg.Genesis.InitialHeight,
		AppStateBytes:   cfg.Genesis.AppState,
		ConsensusParams: cfg.Genesis.ConsensusParams,
	}
	resumed := store.LatestVersion() != gstore.UninitializedVersion
	if resumed {
		// Existing state: hand the driver a checkpoint instead of genesis content.
		initReq.AppStateBytes, err = json.Marshal(gapp.GenesisAppState{Checkpoint: store.RootHash()})
		if err != nil {
			return err
		}
	}

	initResp, err := c.InitChain(ctx, initReq)
	if err != nil {
		return withDriverErr(fmt.Errorf("init chain: %w", err))
	}
	fmt.Fprintf(out, "genesis resumed=%t validators=%d app_hash=%X\n", resumed, len(initResp.Validators), initResp.AppHash)

	lastHeight := app.Height()
	if !resumed {
		lastHeight = cfg.Genesis.InitialHeight - 1
	}

	sc := bufio.NewScanner(cfg.Blocks)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}

		var b replayBlock
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			return fmt.Errorf("blocks file line %d: %w", line, err)
		}
		if b.Height <= lastHeight {
			if resumed {
				log.Debug("Skipping already committed block", "height", b.Height)
				continue
			}
			return fmt.Errorf("blocks file line %d: height %d does not follow %d", line, b.Height, lastHeight)
		}
		if b.Height != lastHeight+1 {
			return fmt.Errorf("blocks file line %d: height %d does not follow %d", line, b.Height, lastHeight)
		}

		if err := replayOne(ctx, c, out, cfg.Genesis.ChainID, b, budget); err != nil {
			return withDriverErr(err)
		}
		lastHeight = b.Height
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read blocks file: %w", err)
	}

	log.Info("Replay complete", "height", lastHeight, "version", store.LatestVersion())

	if cfg.Hold && cfg.HTTPAddr != "" {
		log.Info("Holding until interrupted")
		<-ctx.Done()
	}
	return nil
}

func replayOne(ctx context.Context, c *gdriver.Client, out io.Writer, chainID string, b replayBlock, budget int64) error {
	prep, err := c.PrepareProposal(ctx, gabci.PrepareProposalRequest{
		Txs:        b.Txs,
		MaxTxBytes: budget,
		Height:     b.Height,
	})
	if err != nil {
		return fmt.Errorf("prepare proposal at height %d: %w", b.Height, err)
	}

	pp, err := c.ProcessProposal(ctx, gabci.ProcessProposalRequest{
		Txs:    prep.Txs,
		Height: b.Height,
	})
	if err != nil {
		return fmt.Errorf("process proposal at height %d: %w", b.Height, err)
	}
	if pp.Status != gabci.ProposalAccept {
		return fmt.Errorf("proposal at height %d: status %s", b.Height, pp.Status)
	}

	res, err := c.ExecuteBlock(ctx, cometapitypes.Header{
		ChainID: chainID,
		Height:  b.Height,
		Time:    b.Time,
	}, prep.Txs)
	if err != nil {
		return err
	}

	var failed int
	for _, r := range res.Txs {
		if !r.IsOK() {
			failed++
		}
	}
	_, err = fmt.Fprintf(
		out, "height=%d txs=%d dropped=%d failed=%d app_hash=%X\n",
		b.Height, len(prep.Txs), len(b.Txs)-len(prep.Txs), failed, res.Commit.AppHash,
	)
	return err
}
