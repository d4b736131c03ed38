package progress

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/async"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
	"github.com/joseph-ayodele/packing-tracker/internal/repository"
)

type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and runs every timer that came due, in
// deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due []*manualTimer
	rest := s.timers[:0]
	for _, t := range s.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(s.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	s.timers = rest
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// inlineRunner runs tasks on the submitting goroutine.
type inlineRunner struct{}

func (inlineRunner) Submit(ctx context.Context, task async.Task) error {
	_ = task.Run(ctx)
	return nil
}

// queuedRunner holds tasks until drained.
type queuedRunner struct {
	mu    sync.Mutex
	tasks []async.Task
}

func (r *queuedRunner) Submit(_ context.Context, task async.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *queuedRunner) drain() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, t := range tasks {
		_ = t.Run(context.Background())
	}
}

// gatedRunner blocks the first Submit until release is closed, then runs
// every task inline.
type gatedRunner struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRunner) Submit(ctx context.Context, task async.Task) error {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	_ = task.Run(ctx)
	return nil
}

type panickingFlusher struct{}

func (panickingFlusher) SaveProgress(context.Context, uuid.UUID, entity.PhaseProgress, constants.Phase, bool, string, ...lifecycle.WriteOption) (lifecycle.ProgressResult, error) {
	panic("driver crashed")
}

type saveCall struct {
	progress entity.PhaseProgress
	phase    constants.Phase
	advance  bool
}

// recordingFlusher counts writes before handing them to the engine.
type recordingFlusher struct {
	next  Flusher
	err   error
	mu    sync.Mutex
	calls []saveCall
}

func (f *recordingFlusher) SaveProgress(ctx context.Context, jobID uuid.UUID, progress entity.PhaseProgress, phase constants.Phase, advance bool, actor string, opts ...lifecycle.WriteOption) (lifecycle.ProgressResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, saveCall{progress: progress, phase: phase, advance: advance})
	f.mu.Unlock()
	if f.err != nil {
		return lifecycle.ProgressResult{}, f.err
	}
	return f.next.SaveProgress(ctx, jobID, progress, phase, advance, actor, opts...)
}

func (f *recordingFlusher) Calls() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.calls...)
}

func newEngine(t *testing.T) (*lifecycle.Engine, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore(nil)
	return lifecycle.NewEngine(store, nil), store
}

// startedJob creates a job and moves it to OnProcess (Picking).
func startedJob(t *testing.T, eng *lifecycle.Engine) *entity.Job {
	t.Helper()
	ctx := context.Background()
	job, err := eng.Create(ctx, lifecycle.CreateJobRequest{
		Customer:  "Acme",
		Product:   "Shrink wrap",
		Priority:  constants.PriorityHigh,
		SIQty:     4,
		JobQty:    400,
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	}, "planner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err = eng.AdvanceNext(ctx, job.ID, "planner")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return job
}
