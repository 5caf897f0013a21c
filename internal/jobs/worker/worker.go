package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/jobs/runtime"
	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/envutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type Config struct {
	Concurrency       int
	MaxAttempts       int
	RetryDelay        time.Duration
	StaleRunning      time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// ConfigFromEnv reads WORKER_CONCURRENCY and WORKER_MAX_ATTEMPTS. Failed jobs
// are not retried unless WORKER_MAX_ATTEMPTS is raised above 1.
func ConfigFromEnv() Config {
	return Config{
		Concurrency: envutil.PositiveInt("WORKER_CONCURRENCY", 4),
		MaxAttempts: envutil.PositiveInt("WORKER_MAX_ATTEMPTS", 1),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 30 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every loop
// has returned. A job in flight when ctx is cancelled sees the cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.MaxAttempts,
		"job_types", w.registry.Types(),
	)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			if workerID == 1 {
				if _, err := w.ReapStale(ctx); err != nil {
					w.log.Warn("Failing exhausted stale jobs failed", "error", err)
				}
			}
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx, workerID)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// ReapStale fails running jobs whose heartbeat lapsed after their last
// allowed attempt. ClaimNextRunnable leaves those alone, so without this they
// would stay running forever.
func (w *Worker) ReapStale(ctx context.Context) (int64, error) {
	n, err := w.repo.FailExhaustedStale(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.log.Warn("Failed stale jobs with no attempts left", "count", n, "max_attempts", w.cfg.MaxAttempts)
	}
	return n, nil
}

// RunOnce claims and executes at most one job. It reports whether a job was
// claimed; handler failures are recorded on the job, not returned.
func (w *Worker) RunOnce(ctx context.Context, workerID int) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, workerID, job)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.JobRun) {
	start := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	log := w.log.With("worker_id", workerID, "job_id", job.ID, "job_type", job.JobType)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		observability.Current().ObserveJob(job.JobType, job.Status, time.Since(start))
		return
	}

	stopHeartbeat := w.heartbeat(ctx, job)
	defer stopHeartbeat()

	ctx, span := observability.StartSpan(jc.Ctx, "job."+job.JobType)
	jc.Ctx = ctx
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				runErr = errFromRecover(r)
				jc.Fail("panic", runErr)
			}
		}()
		runErr = h.Run(jc)
	}()
	observability.EndSpan(span, runErr)

	switch {
	case runErr != nil && !job.Terminal():
		jc.Fail("run", runErr)
	case runErr == nil && !job.Terminal():
		jc.Succeed("done", nil)
	}
	if runErr != nil {
		log.Error("Job failed", "error", runErr, "attempts", job.Attempts, "duration_ms", time.Since(start).Milliseconds())
	} else {
		log.Info("Job finished", "status", job.Status, "duration_ms", time.Since(start).Milliseconds())
	}
	observability.Current().ObserveJob(job.JobType, job.Status, time.Since(start))
}

// heartbeat keeps heartbeat_at fresh so a long run is not reclaimed as stale.
func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: hbCtx}, job.ID); err != nil && hbCtx.Err() == nil {
					w.log.Warn("Job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
