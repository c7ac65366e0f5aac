package gdriver

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/trace"
	"time"

	"github.com/gordian-engine/gledger/gabci"
	"github.com/gordian-engine/gledger/gapp"
	"github.com/gordian-engine/gledger/gassert"
	"github.com/gordian-engine/gledger/gstore"
	"github.com/gordian-engine/gledger/gwatchdog"
	"github.com/gordian-engine/gledger/internal/gchan"
	"github.com/gordian-engine/gledger/internal/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gordian-engine/gledger/gdriver"

type DriverConfig struct {
	Store gstore.Store
	App   gapp.App

	// Envelopes is the ordered request stream.
	// The driver stops when it is closed.
	Envelopes <-chan gabci.Envelope

	// Optional. If set, the driver loop is monitored,
	// and a fatal error terminates the watchdog.
	Watchdog *gwatchdog.Watchdog

	// Optional; the zero value uses defaults suitable for production.
	Monitor gwatchdog.MonitorConfig

	// Optional; defaults to [AcceptAll].
	ProposalPolicy ProposalPolicy

	// Optional.
	Metrics *Metrics

	// Optional; defaults to the global OpenTelemetry tracer provider.
	Tracer oteltrace.Tracer

	AssertEnv gassert.Env
}

// Driver handles envelopes on a single goroutine.
type Driver struct {
	log *slog.Logger

	store gstore.Store
	app   gapp.App

	envelopes <-chan gabci.Envelope

	wd      *gwatchdog.Watchdog
	sigs    <-chan gwatchdog.Signal
	policy  ProposalPolicy
	metrics *Metrics
	tracer  oteltrace.Tracer

	assertEnv gassert.Env

	// Height of the latest BeginBlock, for logging only.
	height int64

	// Written by the driver goroutine before done is closed.
	err error

	done chan struct{}
}

// NewDriver starts a driver that runs until ctx is cancelled,
// the envelope channel is closed, or a fatal error occurs.
// It panics if Store, App, or Envelopes is unset.
func NewDriver(ctx context.Context, log *slog.Logger, cfg DriverConfig) *Driver {
	if cfg.Store == nil || cfg.App == nil || cfg.Envelopes == nil {
		panic(fmt.Errorf(
			"BUG: DriverConfig requires Store, App, and Envelopes (got store=%v app=%v envelopes=%v)",
			cfg.Store != nil, cfg.App != nil, cfg.Envelopes != nil,
		))
	}

	d := &Driver{
		log: log,

		store: cfg.Store,
		app:   cfg.App,

		envelopes: cfg.Envelopes,

		wd:      cfg.Watchdog,
		policy:  cfg.ProposalPolicy,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,

		assertEnv: cfg.AssertEnv,

		done: make(chan struct{}),
	}
	if d.policy == nil {
		d.policy = AcceptAll{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}

	if d.wd != nil {
		d.sigs = d.wd.Monitor(ctx, monitorConfig(cfg.Monitor))
	}

	go d.run(ctx)
	return d
}

func monitorConfig(c gwatchdog.MonitorConfig) gwatchdog.MonitorConfig {
	if c.Name == "" {
		c.Name = "gdriver"
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
		c.Jitter = time.Second
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	return c
}

// Wait blocks until the driver goroutine has stopped.
func (d *Driver) Wait() {
	<-d.done
}

// Done is closed when the driver goroutine has stopped.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Err returns the error that stopped the driver:
// a [*FatalError], or the cause of a watchdog termination of the node context.
// It is nil if the driver is still running or stopped normally.
func (d *Driver) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

func (d *Driver) run(ctx context.Context) {
	ctx, task := trace.NewTask(ctx, "gdriver.Driver.run")
	defer task.End()

	defer close(d.done)

	d.log.Info(
		"Driver starting",
		"latest_version", d.store.LatestVersion(),
		"root_hash", glog.Hex(d.store.RootHash()),
	)
	defer d.log.Info("Driver goroutine finished")

	d.mainLoop(ctx)
}

func (d *Driver) mainLoop(ctx context.Context) {
	defer trace.StartRegion(ctx, "mainLoop").End()

	for {
		select {
		case <-ctx.Done():
			cause := context.Cause(ctx)
			if gwatchdog.IsTermination(ctx) {
				d.err = fmt.Errorf("node context terminated: %w", cause)
			}
			d.log.Info("Stopping due to context cancellation", "cause", cause)
			return

		case sig := <-d.sigs:
			sig.Ack()

		case env, ok := <-d.envelopes:
			if !ok {
				d.log.Info("Stopping due to closed envelope channel")
				return
			}
			if !d.handleEnvelope(ctx, env) {
				return
			}
		}
	}
}

// handleEnvelope reports whether the driver should continue.
func (d *Driver) handleEnvelope(ctx context.Context, env gabci.Envelope) bool {
	kind := gabci.RequestKind(env.Request)
	defer trace.StartRegion(ctx, kind).End()

	// The envelope context carries observability values only;
	// a request is always handled to completion.
	reqCtx := env.Ctx
	if reqCtx == nil {
		reqCtx = context.Background()
	}
	reqCtx = context.WithoutCancel(reqCtx)

	reqCtx, span := d.tracer.Start(
		reqCtx, "gdriver."+kind,
		oteltrace.WithAttributes(attribute.String("gledger.request.kind", kind)),
	)
	defer span.End()

	start := time.Now()
	stopAck := d.ackDuring(ctx)
	resp, err := d.dispatch(reqCtx, env.Request)
	stopAck()
	d.metrics.observeRequest(kind, time.Since(start))

	if err != nil {
		d.fail(span, &FatalError{Kind: kind, Err: err})
		return false
	}

	gchan.TrySend(d.log, env.Resp, resp, "sending "+kind+" response")
	return true
}

// ackDuring acknowledges watchdog polls on a helper goroutine
// until the returned function is called.
// Handlers have no deadline; the monitor only detects a stuck loop between envelopes.
func (d *Driver) ackDuring(ctx context.Context) (stop func()) {
	if d.sigs == nil {
		return func() {}
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case sig := <-d.sigs:
				sig.Ack()
			}
		}
	}()

	return func() {
		close(quit)
		<-done
	}
}

func (d *Driver) dispatch(ctx context.Context, req gabci.Request) (gabci.Response, error) {
	switch req := req.(type) {
	case gabci.InitChainRequest:
		return d.handleInitChain(ctx, req)
	case gabci.BeginBlockRequest:
		return d.handleBeginBlock(ctx, req)
	case gabci.DeliverTxRequest:
		// Transaction failures are never fatal.
		return d.handleDeliverTx(ctx, req), nil
	case gabci.EndBlockRequest:
		return d.handleEndBlock(ctx, req)
	case gabci.CommitRequest:
		return d.handleCommit(ctx)
	case gabci.PrepareProposalRequest:
		return d.handlePrepareProposal(ctx, req)
	case gabci.ProcessProposalRequest:
		return d.handleProcessProposal(ctx, req)
	default:
		panic(fmt.Errorf("BUG: unhandled request type %T", req))
	}
}

func (d *Driver) fail(span oteltrace.Span, fe *FatalError) {
	d.log.Error(
		"Fatal error; stopping driver",
		"kind", fe.Kind,
		"err", fe.Err,
		"latest_version", d.store.LatestVersion(),
	)

	span.RecordError(fe)
	span.SetStatus(codes.Error, fe.Error())

	d.err = fe

	if d.wd != nil {
		d.wd.Terminate(fe.Error())
	}
}

// traceEvents attaches events to the current span and logs them.
func (d *Driver) traceEvents(ctx context.Context, kind string, events []gabci.Event) {
	if len(events) == 0 {
		return
	}

	span := oteltrace.SpanFromContext(ctx)
	for _, e := range events {
		attrs := make([]attribute.KeyValue, len(e.Attributes))
		logAttrs := make([]any, 0, 2+2*len(e.Attributes))
		logAttrs = append(logAttrs, "kind", kind)
		for i, a := range e.Attributes {
			attrs[i] = attribute.String(a.Key, a.Value)
			logAttrs = append(logAttrs, a.Key, a.Value)
		}
		span.AddEvent(e.Type, oteltrace.WithAttributes(attrs...))
		d.log.Debug("Event: "+e.Type, logAttrs...)
	}
}
