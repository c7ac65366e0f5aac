package gwatchdog

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/gordian-engine/gledger/internal/gchan"
)

// Watchdog owns the node context and the pollers of monitored loops.
type Watchdog struct {
	log *slog.Logger

	cancel context.CancelCauseFunc

	// Nil for a nop watchdog.
	requests chan monitorRequest

	wg sync.WaitGroup
}

type monitorRequest struct {
	Cfg  MonitorConfig
	Resp chan (<-chan Signal)
}

// NewWatchdog returns a Watchdog and the node context it controls,
// derived from ctx.
// The watchdog's goroutines stop when ctx is cancelled;
// use [*Watchdog.Wait] to block until they have.
func NewWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	return newWatchdog(ctx, log, make(chan monitorRequest))
}

// NewNopWatchdog returns a Watchdog that never polls:
// [*Watchdog.Monitor] returns a nil channel, but Terminate still cancels the context.
// It is intended for tests and for tools that do not need liveness checks.
func NewNopWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	return newWatchdog(ctx, log, nil)
}

func newWatchdog(ctx context.Context, log *slog.Logger, reqs chan monitorRequest) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	w := &Watchdog{
		log:      log,
		cancel:   cancel,
		requests: reqs,
	}
	w.wg.Add(1)
	go w.mainLoop(ctx, wCtx)
	return w, wCtx
}

// Wait blocks until the watchdog's goroutines finish,
// which happens after the parent context passed to [NewWatchdog] is cancelled.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// Terminate cancels the watchdog context with a [ForcedTerminationError].
// Only the first cause is retained.
func (w *Watchdog) Terminate(reason string) {
	w.log.Warn("Terminating", "reason", reason)
	w.cancel(ForcedTerminationError{Reason: reason})
}

// Monitor registers a loop to be polled according to cfg.
// The loop must receive from the returned channel in its main select
// and call [Signal.Ack] promptly.
//
// Monitor panics if cfg is invalid.
// It returns nil for a nop watchdog, or if ctx ends before registration completes;
// receiving from a nil channel blocks forever, so callers need no special case.
func (w *Watchdog) Monitor(ctx context.Context, cfg MonitorConfig) <-chan Signal {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("invalid MonitorConfig: %w", err))
	}

	if w.requests == nil {
		return nil
	}

	req := monitorRequest{
		Cfg:  cfg,
		Resp: make(chan (<-chan Signal), 1),
	}
	ch, _ := gchan.ReqResp(ctx, w.log, w.requests, req, req.Resp, "watchdog monitor")
	return ch
}

func (w *Watchdog) mainLoop(rootCtx, wCtx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-rootCtx.Done():
			w.log.Debug("Watchdog stopping", "cause", context.Cause(rootCtx))
			return

		case req := <-w.requests:
			sigs := make(chan Signal)
			p := poller{
				log:    w.log.With("monitored", req.Cfg.Name),
				cfg:    req.Cfg,
				out:    sigs,
				cancel: w.cancel,
				rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
			}

			// Added here rather than in Monitor,
			// so the Add cannot race with a Wait that began after rootCtx ended.
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				p.run(wCtx)
			}()

			req.Resp <- sigs
		}
	}
}
