package gwatchdog

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// MonitorConfig describes how a loop is polled.
type MonitorConfig struct {
	// Name identifies the loop in logs and in [UnresponsiveError].
	Name string

	// Polls happen every Interval, offset by a uniformly random value in [-Jitter, +Jitter).
	// Jitter may be zero.
	Interval, Jitter time.Duration

	// The loop must both receive the [Signal] and close its Alive channel
	// within ResponseTimeout.
	ResponseTimeout time.Duration
}

func (c MonitorConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("Name must not be empty"))
	}
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("Interval must be positive"))
	}
	if c.Jitter < 0 {
		err = errors.Join(err, errors.New("Jitter must not be negative"))
	}
	if c.Jitter >= c.Interval {
		err = errors.Join(err, errors.New("Jitter must be less than Interval"))
	}
	if c.ResponseTimeout <= 0 {
		err = errors.Join(err, errors.New("ResponseTimeout must be positive"))
	}
	return err
}

// Signal is a single poll delivered to a monitored loop.
type Signal struct {
	// The loop closes Alive to acknowledge the poll.
	Alive chan<- struct{}
}

// Ack acknowledges the poll.
func (s Signal) Ack() {
	close(s.Alive)
}

// poller polls one loop until its context ends
// or until it observes a missed poll.
type poller struct {
	log    *slog.Logger
	cfg    MonitorConfig
	out    chan<- Signal
	cancel context.CancelCauseFunc
	rng    *rand.Rand
}

func (p poller) run(ctx context.Context) {
	for {
		t := time.NewTimer(p.nextDelay())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if !p.poll(ctx) {
			return
		}
	}
}

func (p poller) nextDelay() time.Duration {
	if p.cfg.Jitter == 0 {
		return p.cfg.Interval
	}
	j := p.rng.Int64N(int64(2*p.cfg.Jitter)) - int64(p.cfg.Jitter)
	return p.cfg.Interval + time.Duration(j)
}

// poll reports whether polling should continue.
func (p poller) poll(ctx context.Context) bool {
	alive := make(chan struct{})
	deadline := time.NewTimer(p.cfg.ResponseTimeout)
	defer deadline.Stop()

	select {
	case <-ctx.Done():
		return false
	case p.out <- Signal{Alive: alive}:
	case <-deadline.C:
		p.fail("signal not received")
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-alive:
		return true
	case <-deadline.C:
		// Both cases may have been ready at once.
		select {
		case <-alive:
			return true
		default:
			p.fail("signal not acknowledged")
			return false
		}
	}
}

func (p poller) fail(what string) {
	p.log.Error("Monitored loop is unresponsive; terminating", "detail", what, "timeout", p.cfg.ResponseTimeout)
	p.cancel(UnresponsiveError{Name: p.cfg.Name})
}
