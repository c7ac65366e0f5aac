package gwatchdog_test

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gledger/gwatchdog"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestWatchdog_Terminate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.NoError(t, wCtx.Err())
	require.False(t, gwatchdog.IsTermination(wCtx))

	w.Terminate("commit failed")
	require.Error(t, wCtx.Err())
	require.True(t, gwatchdog.IsTermination(wCtx))

	reason, ok := gwatchdog.TerminationReason(wCtx)
	require.True(t, ok)
	require.Equal(t, "commit failed", reason)

	// The first cause wins.
	w.Terminate("again")
	reason, _ = gwatchdog.TerminationReason(wCtx)
	require.Equal(t, "commit failed", reason)
}

func TestWatchdog_Terminate_afterParentCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()

	cancel()
	w.Terminate("late")

	require.Error(t, wCtx.Err())
	require.False(t, gwatchdog.IsTermination(wCtx))
	_, ok := gwatchdog.TerminationReason(wCtx)
	require.False(t, ok)
}

func TestWatchdog_Monitor_ignoredSignalTerminates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	_ = w.Monitor(ctx, gwatchdog.MonitorConfig{
		Name:            "ignored",
		Interval:        time.Millisecond,
		ResponseTimeout: time.Millisecond,
	})

	_ = gtest.ReceiveSoon(t, wCtx.Done())
	require.True(t, gwatchdog.IsTermination(wCtx))
	require.Equal(t, gwatchdog.UnresponsiveError{Name: "ignored"}, context.Cause(wCtx))
}

func TestWatchdog_Monitor_unacknowledgedSignalTerminates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	sigs := w.Monitor(ctx, gwatchdog.MonitorConfig{
		Name:            "stuck",
		Interval:        time.Millisecond,
		ResponseTimeout: time.Duration(gtest.ScaleMs(50)),
	})

	// Receive but never acknowledge.
	_ = gtest.ReceiveSoon(t, sigs)

	_ = gtest.ReceiveSoon(t, wCtx.Done())
	require.True(t, gwatchdog.IsTermination(wCtx))
}

func TestWatchdog_Monitor_acknowledgedSignalsKeepRunning(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	sigs := w.Monitor(ctx, gwatchdog.MonitorConfig{
		Name:            "healthy",
		Interval:        2 * time.Millisecond,
		Jitter:          time.Millisecond,
		ResponseTimeout: time.Duration(gtest.ScaleMs(100)),
	})

	for range 5 {
		sig := gtest.ReceiveSoon(t, sigs)
		sig.Ack()
	}

	require.NoError(t, wCtx.Err())
}

func TestWatchdog_Monitor_invalidConfigPanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, _ := gwatchdog.NewWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.Panics(t, func() {
		_ = w.Monitor(ctx, gwatchdog.MonitorConfig{Name: "bad"})
	})
	require.Panics(t, func() {
		_ = w.Monitor(ctx, gwatchdog.MonitorConfig{
			Name:            "jitter",
			Interval:        time.Millisecond,
			Jitter:          time.Millisecond,
			ResponseTimeout: time.Millisecond,
		})
	})
}

func TestNopWatchdog(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := gwatchdog.NewNopWatchdog(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.Nil(t, w.Monitor(ctx, gwatchdog.MonitorConfig{
		Name:            "nop",
		Interval:        time.Millisecond,
		ResponseTimeout: time.Millisecond,
	}))

	w.Terminate("nop terminate")
	require.True(t, gwatchdog.IsTermination(wCtx))
}
