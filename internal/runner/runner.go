// Package runner drains the persisted job queue with bounded concurrency.
// It partitions slow and fast pipeline variants into lanes, recovers jobs
// orphaned by crashed workers, and guards terminal status writes against
// races with out-of-band cancellation.
package runner

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/health"
	"github.com/factharbor/verify-cli/internal/jobstore"
	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/resilience"
)

// Executor runs the analysis pipeline for one job and returns the
// serialized result. In-flight work always runs to completion; external
// cancellation is detected afterwards by the completion guard.
type Executor interface {
	Execute(ctx context.Context, job *model.Job) (resultJSON string, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *model.Job) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *model.Job) (string, error) {
	return f(ctx, job)
}

// Config holds runner tuning. Zero values take defaults.
type Config struct {
	// MaxConcurrency bounds total jobs in flight. Default 3.
	MaxConcurrency int
	// MaxSlowConcurrency bounds slow-variant jobs in flight. Default
	// MaxConcurrency-1 so one slot always stays reservable for fast jobs.
	MaxSlowConcurrency int
	// QueueMaxWait marks jobs FAILED instead of running them once they
	// have waited this long. Default 6h.
	QueueMaxWait time.Duration
	// StaleThreshold force-fails RUNNING jobs not updated within it.
	// Default 15m.
	StaleThreshold time.Duration
	// WatchdogInterval is how often the runner re-scans the job store for
	// queued and stale jobs. Default 30s.
	WatchdogInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.MaxSlowConcurrency <= 0 {
		c.MaxSlowConcurrency = c.MaxConcurrency - 1
	}
	if c.MaxSlowConcurrency < 1 {
		c.MaxSlowConcurrency = 1
	}
	if c.QueueMaxWait <= 0 {
		c.QueueMaxWait = 6 * time.Hour
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 15 * time.Minute
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 30 * time.Second
	}
	return c
}

// maxFailureMessageLen truncates error text written to the job store.
const maxFailureMessageLen = 2000

// Runner owns the in-process queue state. All collaborators are explicit
// constructor arguments; there are no package-level singletons.
type Runner struct {
	cfg    Config
	store  jobstore.Client
	exec   Executor
	health *health.Tracker

	mu           sync.Mutex
	queue        []*model.Job
	queued       map[string]bool
	running      map[string]bool
	slowRunning  int
	draining     bool
	drainPending bool

	wg      sync.WaitGroup
	nowFunc func() time.Time
}

// New creates a runner. store, exec, and tracker must be non-nil.
func New(cfg Config, store jobstore.Client, exec Executor, tracker *health.Tracker) *Runner {
	return &Runner{
		cfg:     cfg.withDefaults(),
		store:   store,
		exec:    exec,
		health:  tracker,
		queued:  map[string]bool{},
		running: map[string]bool{},
		nowFunc: time.Now,
	}
}

// Enqueue adds a job to the local queue and triggers a drain. Jobs already
// queued or running are ignored.
func (r *Runner) Enqueue(ctx context.Context, job *model.Job) {
	r.mu.Lock()
	if r.queued[job.JobID] || r.running[job.JobID] {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, job)
	r.queued[job.JobID] = true
	r.mu.Unlock()

	r.Drain(ctx)
}

// Drain services the queue until capacity or the queue is exhausted. Only
// one drain pass runs at a time; a request arriving mid-pass is deferred
// and retried exactly once when the pass completes. Draining is skipped
// entirely while the system is paused.
func (r *Runner) Drain(ctx context.Context) {
	r.mu.Lock()
	if r.draining {
		r.drainPending = true
		r.mu.Unlock()
		return
	}
	r.draining = true
	r.mu.Unlock()

	r.drainPass(ctx)

	r.mu.Lock()
	r.draining = false
	retry := r.drainPending
	r.drainPending = false
	r.mu.Unlock()

	if retry {
		r.Drain(ctx)
	}
}

func (r *Runner) drainPass(ctx context.Context) {
	if paused, reason, _ := r.health.Paused(); paused {
		zap.L().Debug("runner: drain skipped, system paused", zap.String("reason", reason))
		return
	}

	// Slow jobs over their lane cap are held here and re-prepended in
	// order, so they stay at the front without starving fast jobs behind
	// them.
	var held []*model.Job

	for {
		r.mu.Lock()
		if len(r.queue) == 0 || len(r.running) >= r.cfg.MaxConcurrency {
			r.queue = append(held, r.queue...)
			r.mu.Unlock()
			return
		}

		job := r.queue[0]
		r.queue = r.queue[1:]

		now := r.nowFunc()
		if created := job.CreatedAt(); !created.IsZero() && now.Sub(created) > r.cfg.QueueMaxWait {
			delete(r.queued, job.JobID)
			r.mu.Unlock()
			r.failJob(ctx, job.JobID, "queue wait timeout exceeded")
			continue
		}

		if job.Variant.Slow() && r.slowRunning >= r.cfg.MaxSlowConcurrency {
			held = append(held, job)
			r.mu.Unlock()
			continue
		}

		delete(r.queued, job.JobID)
		r.running[job.JobID] = true
		if job.Variant.Slow() {
			r.slowRunning++
		}
		r.mu.Unlock()

		r.wg.Add(1)
		go r.runJob(ctx, job)
	}
}

func (r *Runner) runJob(ctx context.Context, job *model.Job) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, job.JobID)
		if job.Variant.Slow() {
			r.slowRunning--
		}
		r.mu.Unlock()
		r.Drain(ctx)
	}()

	if err := r.store.UpdateStatus(ctx, job.JobID, jobstore.StatusUpdate{
		Status:   model.JobRunning,
		Progress: 0,
		Level:    "info",
		Message:  "analysis started",
	}); err != nil {
		zap.L().Error("runner: failed to mark job running",
			zap.String("job_id", job.JobID), zap.Error(err))
	}

	resultJSON, err := r.execute(ctx, job)
	if err != nil {
		r.handleFailure(ctx, job, err)
		return
	}
	r.completeJob(ctx, job, resultJSON)
}

// execute invokes the executor, converting a panic inside the pipeline into
// an ordinary execution error carrying the stack trace. A single bad job
// must never take down the process or its sibling in-flight jobs.
func (r *Runner) execute(ctx context.Context, job *model.Job) (resultJSON string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := string(debug.Stack())
			zap.L().Error("runner: panic during job execution",
				zap.String("job_id", job.JobID),
				zap.Any("panic", rec),
				zap.String("stack", truncate(stack)))
			err = eris.Errorf("panic during execution: %v\n%s", rec, stack)
		}
	}()
	return r.exec.Execute(ctx, job)
}

// completeJob writes SUCCEEDED behind a guard: the job's current status is
// re-fetched first, and the write goes through only while it is still
// RUNNING. A stale-recovery or cancellation that already failed the job
// wins; the late success is discarded. If the status cannot be re-verified
// at all, the write is skipped rather than risked.
func (r *Runner) completeJob(ctx context.Context, job *model.Job, resultJSON string) {
	current, err := r.store.GetJob(ctx, job.JobID)
	if err != nil {
		zap.L().Warn("runner: completion guard could not verify status, skipping success write",
			zap.String("job_id", job.JobID), zap.Error(err))
		return
	}
	if current.Status != model.JobRunning {
		zap.L().Warn("runner: discarding late success for job no longer running",
			zap.String("job_id", job.JobID),
			zap.String("current_status", string(current.Status)))
		return
	}

	if err := r.store.PutResult(ctx, job.JobID, resultJSON); err != nil {
		zap.L().Error("runner: failed to write result",
			zap.String("job_id", job.JobID), zap.Error(err))
		r.failJob(ctx, job.JobID, "result write failed: "+truncate(err.Error()))
		return
	}
	if err := r.store.UpdateStatus(ctx, job.JobID, jobstore.StatusUpdate{
		Status:   model.JobSucceeded,
		Progress: 100,
		Level:    "info",
		Message:  "analysis complete",
	}); err != nil {
		zap.L().Error("runner: failed to mark job succeeded",
			zap.String("job_id", job.JobID), zap.Error(err))
	}
}

// handleFailure classifies the execution error, records circuit-breaker
// bookkeeping for provider failures, and writes FAILED with a truncated
// message. Errors never propagate out of the runner.
func (r *Runner) handleFailure(ctx context.Context, job *model.Job, err error) {
	if provider := resilience.ProviderOf(err); provider != "" && resilience.IsFatal(err) {
		r.health.RecordFailure(provider, err.Error())
	}

	zap.L().Error("runner: job execution failed",
		zap.String("job_id", job.JobID), zap.Error(err))
	r.failJob(ctx, job.JobID, truncate(err.Error()))
}

func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	if err := r.store.UpdateStatus(ctx, jobID, jobstore.StatusUpdate{
		Status:  model.JobFailed,
		Level:   "error",
		Message: message,
	}); err != nil {
		zap.L().Error("runner: failed to mark job failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// RecoverStale force-fails RUNNING jobs whose last update is older than the
// stale threshold, whether or not this process started them. Jobs with
// unparsable update timestamps are skipped, never crashed on.
func (r *Runner) RecoverStale(ctx context.Context) {
	jobs, err := r.store.ListAllJobs(ctx, 100)
	if err != nil {
		zap.L().Error("runner: stale scan failed", zap.Error(err))
		return
	}

	now := r.nowFunc()
	for i := range jobs {
		job := &jobs[i]
		if job.Status != model.JobRunning {
			continue
		}
		updated, ok := job.UpdatedAt()
		if !ok {
			zap.L().Warn("runner: skipping stale check, unparsable timestamp",
				zap.String("job_id", job.JobID),
				zap.String("updated_utc", job.UpdatedUtc))
			continue
		}
		if now.Sub(updated) <= r.cfg.StaleThreshold {
			continue
		}

		zap.L().Warn("runner: recovering stale job",
			zap.String("job_id", job.JobID),
			zap.Duration("age", now.Sub(updated)))
		r.failJob(ctx, job.JobID, "job stale: no progress update within threshold, recovered")
	}
}

// reloadQueued pulls QUEUED jobs from the store into the local queue, so
// jobs enqueued by another process or left over from a restart get picked
// up without a new enqueue event.
func (r *Runner) reloadQueued(ctx context.Context) {
	jobs, err := r.store.ListAllJobs(ctx, 100)
	if err != nil {
		zap.L().Error("runner: queue reload failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	for i := range jobs {
		job := &jobs[i]
		if job.Status != model.JobQueued || r.queued[job.JobID] || r.running[job.JobID] {
			continue
		}
		r.queue = append(r.queue, job)
		r.queued[job.JobID] = true
	}
	r.mu.Unlock()
}

// Start runs the watchdog loop until ctx is cancelled: each tick recovers
// stale jobs, reloads persisted QUEUED jobs, and attempts a drain.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.WatchdogInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RecoverStale(ctx)
				r.reloadQueued(ctx)
				r.Drain(ctx)
			}
		}
	}()
}

// Wait blocks until all in-flight jobs finish. Used for orderly shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// truncate caps a message at maxFailureMessageLen bytes, cutting on a rune
// boundary so the stored message stays valid UTF-8.
func truncate(s string) string {
	if len(s) <= maxFailureMessageLen {
		return s
	}
	cut := maxFailureMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
