package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func newEngine(t *testing.T, locker Locker) (*Engine, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e, err := NewEngine(Options{Locker: locker, Meter: provider.Meter("test")})
	require.NoError(t, err)
	return e, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestRunOnce(t *testing.T) {
	e, reader := newEngine(t, nil)
	var calls int
	e.Register(&funcJob{name: "ok", fn: func(ctx context.Context) error { calls++; return nil }}, 0)
	e.Register(&funcJob{name: "bad", fn: func(ctx context.Context) error { return stderrors.New("boom") }}, 0)

	require.NoError(t, e.RunOnce(context.Background(), "ok"))
	assert.Equal(t, 1, calls)
	assert.EqualError(t, e.RunOnce(context.Background(), "bad"), "boom")

	err := e.RunOnce(context.Background(), "missing")
	assert.True(t, stderrors.Is(err, errors.ErrJobNotFound))

	assert.Equal(t, []string{"bad", "ok"}, e.GetRegisteredJobs())
	assert.Equal(t, int64(2), counter(t, reader, "aira.job.runs"))
	assert.Equal(t, int64(1), counter(t, reader, "aira.job.failures"))
}

func TestRunOnce_NoOverlap(t *testing.T) {
	e, _ := newEngine(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	e.Register(&funcJob{name: "slow", fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}, 0)

	done := make(chan error, 1)
	go func() { done <- e.RunOnce(context.Background(), "slow") }()
	<-started

	err := e.RunOnce(context.Background(), "slow")
	assert.True(t, stderrors.Is(err, errors.ErrJobRunning))

	close(release)
	require.NoError(t, <-done)
}

type denyLocker struct{}

func (denyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	return nil, false, nil
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	unlocked int
}

func (l *recordingLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l, true, nil
}

func (l *recordingLocker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked++
	return nil
}

func TestRunOnce_Locker(t *testing.T) {
	e, _ := newEngine(t, denyLocker{})
	ran := false
	e.Register(&funcJob{name: "guarded", fn: func(ctx context.Context) error { ran = true; return nil }}, 0)
	err := e.RunOnce(context.Background(), "guarded")
	assert.True(t, stderrors.Is(err, errors.ErrJobRunning))
	assert.False(t, ran)

	l := &recordingLocker{}
	e, _ = newEngine(t, l)
	e.Register(&funcJob{name: "guarded", fn: func(ctx context.Context) error { return nil }}, 0)
	require.NoError(t, e.RunOnce(context.Background(), "guarded"))
	assert.Equal(t, []string{"aira:job:guarded"}, l.keys)
	assert.Equal(t, 1, l.unlocked)
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	e, _ := newEngine(t, nil)
	var ticks atomic.Int32
	e.Register(&funcJob{name: "tick", fn: func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}}, 10*time.Millisecond)
	e.Register(&funcJob{name: "manual", fn: func(ctx context.Context) error {
		t.Error("manual job must not be scheduled")
		return nil
	}}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
