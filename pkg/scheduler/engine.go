// Package scheduler runs periodic jobs without overlapping runs of the same
// job, optionally coordinated across instances through a Locker.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultLockTTL = 5 * time.Minute

// Job 周期任务
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Options struct {
	Locker  Locker
	LockTTL time.Duration
	Meter   metric.Meter
}

type entry struct {
	job   Job
	every time.Duration
	mu    sync.Mutex // 本进程内防止重叠
}

// Engine 任务引擎
type Engine struct {
	mu      sync.RWMutex
	entries map[string]*entry
	locker  Locker
	lockTTL time.Duration
	metrics *jobMetrics
}

// NewEngine 创建新的引擎实例
func NewEngine(opts Options) (*Engine, error) {
	if opts.Locker == nil {
		opts.Locker = NopLocker{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("github.com/flaboy/aira-checkout/pkg/scheduler")
	}
	m, err := newJobMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}
	return &Engine{
		entries: make(map[string]*entry),
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		metrics: m,
	}, nil
}

// Register 注册任务，every<=0 时只能手动触发
func (e *Engine) Register(job Job, every time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[job.Name()] = &entry{job: job, every: every}
}

// GetRegisteredJobs 获取已注册的任务名
func (e *Engine) GetRegisteredJobs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.entries))
	for name := range e.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce runs a job now. It fails with ErrJobRunning instead of waiting
// when the job is already running here or on another instance.
func (e *Engine) RunOnce(ctx context.Context, name string) error {
	e.mu.RLock()
	en, ok := e.entries[name]
	e.mu.RUnlock()
	if !ok {
		return errors.Wrap(errors.ErrJobNotFound, name)
	}
	return e.run(ctx, en)
}

func (e *Engine) run(ctx context.Context, en *entry) error {
	name := en.job.Name()
	if !en.mu.TryLock() {
		return errors.Wrap(errors.ErrJobRunning, name)
	}
	defer en.mu.Unlock()

	lock, acquired, err := e.locker.TryLock(ctx, "aira:job:"+name, e.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for job %s: %w", name, err)
	}
	if !acquired {
		return errors.Wrap(errors.ErrJobRunning, name)
	}
	defer func() {
		// ctx可能已取消，释放锁用独立的context
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("[Scheduler] Failed to release lock", "job", name, "error", err)
		}
	}()

	start := time.Now()
	err = en.job.Run(ctx)
	e.metrics.record(ctx, name, time.Since(start), err)
	if err != nil {
		slog.Error("[Scheduler] Job failed", "job", name, "duration", time.Since(start), "error", err)
		return err
	}
	slog.Debug("[Scheduler] Job finished", "job", name, "duration", time.Since(start))
	return nil
}

// Start runs every periodic job on its own ticker and blocks until ctx is
// cancelled and all in-flight runs have returned.
func (e *Engine) Start(ctx context.Context) {
	e.mu.RLock()
	var periodic []*entry
	for _, en := range e.entries {
		if en.every > 0 {
			periodic = append(periodic, en)
		}
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, en := range periodic {
		wg.Add(1)
		go func(en *entry) {
			defer wg.Done()
			e.loop(ctx, en)
		}(en)
	}
	slog.Info("[Scheduler] Started", "jobs", len(periodic))
	wg.Wait()
	slog.Info("[Scheduler] Stopped")
}

func (e *Engine) loop(ctx context.Context, en *entry) {
	ticker := time.NewTicker(en.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.run(ctx, en); err != nil {
				if ue, ok := errors.AsUserError(err); ok && ue == errors.ErrJobRunning {
					slog.Debug("[Scheduler] Skipped tick, job still running", "job", en.job.Name())
				}
			}
		}
	}
}

type jobMetrics struct {
	runs     metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newJobMetrics(meter metric.Meter) (*jobMetrics, error) {
	runs, err := meter.Int64Counter("aira.job.runs",
		metric.WithDescription("Number of job runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	failures, err := meter.Int64Counter("aira.job.failures",
		metric.WithDescription("Number of failed job runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failures counter: %w", err)
	}
	duration, err := meter.Float64Histogram("aira.job.duration",
		metric.WithDescription("Job run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return &jobMetrics{runs: runs, failures: failures, duration: duration}, nil
}

func (m *jobMetrics) record(ctx context.Context, job string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("job", job))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}
