package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	domainjobs "github.com/yungbote/candidate-intel-backend/internal/domain/jobs"
	"github.com/yungbote/candidate-intel-backend/internal/jobs/runtime"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type funcHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
}

func (h funcHandler) Type() string                   { return h.jobType }
func (h funcHandler) Run(jc *runtime.Context) error { return h.run(jc) }

type recordingEmitter struct{ msgs []realtime.SSEMessage }

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.msgs = append(e.msgs, msg)
}

type fixture struct {
	repo   repos.JobRunRepo
	worker *Worker
	emit   *recordingEmitter
}

func newFixture(t *testing.T, handlers ...runtime.Handler) fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	emit := &recordingEmitter{}
	w := NewWorker(db, log, repo, reg, services.NewJobNotifier(emit), Config{MaxAttempts: 1})
	return fixture{repo: repo, worker: w, emit: emit}
}

func (f fixture) enqueue(t *testing.T, jobType string) *types.JobRun {
	t.Helper()
	job := &types.JobRun{
		OwnerID:  "owner",
		JobType:  jobType,
		Status:   domainjobs.StatusQueued,
		Stage:    domainjobs.StatusQueued,
		EntityID: "ada",
	}
	if _, err := f.repo.Create(testutil.Ctx(), []*types.JobRun{job}); err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

func (f fixture) reload(t *testing.T, job *types.JobRun) *types.JobRun {
	t.Helper()
	got, err := f.repo.GetByID(testutil.Ctx(), job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	return got
}

func TestRunOnceSucceeds(t *testing.T) {
	f := newFixture(t, funcHandler{jobType: "ok", run: func(jc *runtime.Context) error { return nil }})
	job := f.enqueue(t, "ok")

	ran, err := f.worker.RunOnce(context.Background(), 1)
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	got := f.reload(t, job)
	if got.Status != domainjobs.StatusSucceeded || got.Progress != 100 || got.Attempts != 1 {
		t.Fatalf("job: status=%s progress=%d attempts=%d", got.Status, got.Progress, got.Attempts)
	}
	if n := len(f.emit.msgs); n != 1 || f.emit.msgs[0].Event != realtime.SSEEventJobDone {
		t.Fatalf("events: got=%+v", f.emit.msgs)
	}

	ran, err = f.worker.RunOnce(context.Background(), 1)
	if err != nil || ran {
		t.Fatalf("empty queue: ran=%v err=%v", ran, err)
	}
}

func TestRunOnceRecordsHandlerError(t *testing.T) {
	f := newFixture(t, funcHandler{jobType: "bad", run: func(jc *runtime.Context) error {
		return errors.New("model refused")
	}})
	job := f.enqueue(t, "bad")

	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := f.reload(t, job)
	if got.Status != domainjobs.StatusFailed || got.Error != "model refused" || got.LastErrorAt == nil {
		t.Fatalf("job: status=%s error=%q", got.Status, got.Error)
	}
	if n := len(f.emit.msgs); n != 1 || f.emit.msgs[0].Event != realtime.SSEEventJobFailed {
		t.Fatalf("events: got=%+v", f.emit.msgs)
	}

	// max attempts is 1, so the failed job is not claimed again.
	ran, err := f.worker.RunOnce(context.Background(), 1)
	if err != nil || ran {
		t.Fatalf("retry: ran=%v err=%v", ran, err)
	}
}

func TestRunOnceRecoversPanic(t *testing.T) {
	f := newFixture(t, funcHandler{jobType: "boom", run: func(jc *runtime.Context) error {
		panic("nil map")
	}})
	job := f.enqueue(t, "boom")

	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := f.reload(t, job)
	if got.Status != domainjobs.StatusFailed || got.Stage != "panic" || !strings.Contains(got.Error, "nil map") {
		t.Fatalf("job: status=%s stage=%s error=%q", got.Status, got.Stage, got.Error)
	}
}

func TestRunOnceUnknownJobType(t *testing.T) {
	f := newFixture(t)
	job := f.enqueue(t, "mystery")

	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := f.reload(t, job)
	if got.Status != domainjobs.StatusFailed || got.Stage != "dispatch" {
		t.Fatalf("job: status=%s stage=%s", got.Status, got.Stage)
	}
}

func TestHandlerProgressIsPersisted(t *testing.T) {
	var seen *types.JobRun
	f := newFixture(t, funcHandler{jobType: "steps", run: func(jc *runtime.Context) error {
		jc.Progress("halfway", 50, "Halfway")
		seen = jc.Job
		jc.Succeed("finished", map[string]any{"n": 1})
		return nil
	}})
	job := f.enqueue(t, "steps")

	if _, err := f.worker.RunOnce(context.Background(), 1); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := f.reload(t, job)
	if got.Stage != "finished" || string(got.Result) != `{"n":1}` {
		t.Fatalf("job: stage=%s result=%s", got.Stage, got.Result)
	}
	if seen == nil || seen.Status != domainjobs.StatusSucceeded {
		t.Fatalf("in-memory job should track the final state")
	}
	var events []realtime.SSEEvent
	for _, m := range f.emit.msgs {
		events = append(events, m.Event)
	}
	if len(events) != 2 || events[0] != realtime.SSEEventJobProgress || events[1] != realtime.SSEEventJobDone {
		t.Fatalf("events: got=%v", events)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Concurrency != 1 || cfg.MaxAttempts != 1 || cfg.StaleRunning.Minutes() != 30 {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "7")
	t.Setenv("WORKER_MAX_ATTEMPTS", "")
	cfg := ConfigFromEnv()
	if cfg.Concurrency != 7 || cfg.MaxAttempts != 1 {
		t.Fatalf("env: got=%+v", cfg)
	}
}

func TestLapsedSingleAttemptJobIsFailedNotRerun(t *testing.T) {
	runs := 0
	f := newFixture(t, funcHandler{jobType: "once", run: func(jc *runtime.Context) error {
		runs++
		return nil
	}})
	lapsed := time.Now().Add(-time.Hour)
	job := &types.JobRun{
		OwnerID:     "owner",
		JobType:     "once",
		Status:      domainjobs.StatusRunning,
		Stage:       "generate",
		Attempts:    1,
		EntityID:    "ada",
		HeartbeatAt: &lapsed,
	}
	if _, err := f.repo.Create(testutil.Ctx(), []*types.JobRun{job}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ran, err := f.worker.RunOnce(context.Background(), 1)
	if err != nil || ran || runs != 0 {
		t.Fatalf("RunOnce: ran=%v runs=%d err=%v", ran, runs, err)
	}
	n, err := f.worker.ReapStale(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ReapStale: want=1 got=%d err=%v", n, err)
	}
	got := f.reload(t, job)
	if got.Status != domainjobs.StatusFailed || !strings.Contains(got.Error, "heartbeat") {
		t.Fatalf("job: status=%s error=%q", got.Status, got.Error)
	}
	if n, _ := f.worker.ReapStale(context.Background()); n != 0 {
		t.Fatalf("second ReapStale: want=0 got=%d", n)
	}
}
