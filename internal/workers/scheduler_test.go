package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	*BaseWorker
	runs    atomic.Int32
	runFunc func(ctx context.Context) error
}

func newStubWorker(name string, interval time.Duration, enabled bool) *stubWorker {
	return &stubWorker{
		BaseWorker: NewBaseWorker(name, interval, enabled),
	}
}

func (w *stubWorker) Run(ctx context.Context) error {
	w.runs.Add(1)
	if w.runFunc != nil {
		return w.runFunc(ctx)
	}
	return nil
}

func (w *stubWorker) RunCount() int {
	return int(w.runs.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler()

	w := newStubWorker("scan", 100*time.Millisecond, true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	time.Sleep(250 * time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	// Immediate run on start plus at least one tick
	assert.GreaterOrEqual(t, w.RunCount(), 2)
}

func TestScheduler_DisabledWorkerNeverRuns(t *testing.T) {
	s := NewScheduler()

	enabled := newStubWorker("scan", 100*time.Millisecond, true)
	disabled := newStubWorker("scan-chain", 100*time.Millisecond, false)
	s.RegisterWorker(enabled)
	s.RegisterWorker(disabled)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Greater(t, enabled.RunCount(), 0)
	assert.Equal(t, 0, disabled.RunCount())
}

func TestScheduler_WorkerErrorDoesNotStopTheLoop(t *testing.T) {
	s := NewScheduler()

	w := newStubWorker("flaky", 50*time.Millisecond, true)
	w.runFunc = func(ctx context.Context) error {
		return fmt.Errorf("scan failed")
	}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, w.RunCount(), 2, "failed iterations must not stop the schedule")
}

func TestScheduler_RecoversFromWorkerPanic(t *testing.T) {
	s := NewScheduler()

	w := newStubWorker("panicky", 50*time.Millisecond, true)
	w.runFunc = func(ctx context.Context) error {
		panic("boom")
	}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, w.RunCount(), 2, "a panicking iteration must not kill the worker loop")
}

func TestScheduler_ContextCancellationStopsWorkers(t *testing.T) {
	s := NewScheduler()
	s.RegisterWorker(newStubWorker("scan", 100*time.Millisecond, true))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	time.Sleep(200 * time.Millisecond)

	// Stop still works after the parent context has died
	require.NoError(t, s.Stop())
}

func TestScheduler_CannotStartTwice(t *testing.T) {
	s := NewScheduler()
	s.RegisterWorker(newStubWorker("scan", 100*time.Millisecond, true))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	s.Stop()
}

func TestScheduler_RegisterAfterStartIsIgnored(t *testing.T) {
	s := NewScheduler()
	s.RegisterWorker(newStubWorker("scan", 100*time.Millisecond, true))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.RegisterWorker(newStubWorker("late", 100*time.Millisecond, true))
	assert.Len(t, s.GetWorkers(), 1)
}

func TestScheduler_GetWorkers(t *testing.T) {
	s := NewScheduler()
	s.RegisterWorker(newStubWorker("scan", 100*time.Millisecond, true))
	s.RegisterWorker(newStubWorker("scan-chain", 200*time.Millisecond, false))

	ws := s.GetWorkers()
	require.Len(t, ws, 2)
	assert.Equal(t, "scan", ws[0].Name())
	assert.Equal(t, "scan-chain", ws[1].Name())
}

func TestBaseWorker_HealthTracking(t *testing.T) {
	w := NewBaseWorker("scan", time.Minute, true)

	w.RecordRun()
	w.RecordError(fmt.Errorf("upstream down"))
	w.RecordRun()

	h := w.Health()
	assert.Equal(t, int64(3), h.RunCount)
	assert.Equal(t, int64(1), h.ErrorCount)
	assert.NoError(t, h.LastError, "a successful run clears the last error")
	assert.False(t, h.LastRun.IsZero())
	assert.True(t, h.Enabled)
}
