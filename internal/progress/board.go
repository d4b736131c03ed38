package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

// Source provides the job feed and the write path for a board.
type Source interface {
	Flusher
	Get(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	Subscribe(ctx context.Context, filter entity.JobFilter) (<-chan []*entity.Job, error)
}

// Board owns the open views and feeds them from a single subscription.
type Board struct {
	source Source
	runner Runner
	sched  Scheduler
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	views map[uuid.UUID]*View
}

type BoardOption func(*Board)

func WithScheduler(s Scheduler) BoardOption {
	return func(b *Board) { b.sched = s }
}

func WithConfig(c Config) BoardOption {
	return func(b *Board) { b.cfg = c }
}

func NewBoard(source Source, runner Runner, logger *slog.Logger, opts ...BoardOption) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		source: source,
		runner: runner,
		sched:  SystemScheduler{},
		cfg:    DefaultConfig(),
		logger: logger,
		views:  make(map[uuid.UUID]*View),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Open returns the view for jobID, loading the job if no view is open yet.
// A view already open for the same actor is returned as is and keeps the
// hooks it was opened with. Opening it for another actor fails with Conflict.
func (b *Board) Open(ctx context.Context, jobID uuid.UUID, actor string, hooks Hooks) (*View, error) {
	if actor == "" {
		return nil, common.NewValidationError("actor is required")
	}
	b.mu.Lock()
	if v, ok := b.views[jobID]; ok {
		b.mu.Unlock()
		return openedView(v, actor)
	}
	b.mu.Unlock()

	job, err := b.source.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.views[jobID]; ok {
		return openedView(v, actor)
	}
	v := NewView(job, actor, b.cfg, b.sched, b.source, b.runner, hooks, b.logger)
	b.views[jobID] = v
	b.logger.Debug("progress view opened", "job_id", jobID, "actor", actor)
	return v, nil
}

func openedView(v *View, actor string) (*View, error) {
	if v.actor != actor {
		return nil, common.NewConflict("job %s is already open for %s", v.jobID, v.actor)
	}
	return v, nil
}

// Close closes and forgets the view for jobID.
func (b *Board) Close(jobID uuid.UUID) {
	b.mu.Lock()
	v, ok := b.views[jobID]
	delete(b.views, jobID)
	b.mu.Unlock()
	if ok {
		v.Close()
	}
}

// Views returns the ids of the open views.
func (b *Board) Views() []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(b.views))
	for id := range b.views {
		ids = append(ids, id)
	}
	return ids
}

// Run subscribes to active jobs and reconciles open views until ctx is
// cancelled. Subscription failures are returned; open views keep their
// last known state.
func (b *Board) Run(ctx context.Context) error {
	updates, err := b.source.Subscribe(ctx, entity.ActiveJobs())
	if err != nil {
		b.logger.Error("board subscription failed", "error", err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return nil
		case jobs, ok := <-updates:
			if !ok {
				b.logger.Warn("board subscription ended")
				return nil
			}
			b.Apply(jobs)
		}
	}
}

// Apply offers one feed result to every open view.
func (b *Board) Apply(jobs []*entity.Job) {
	b.mu.Lock()
	views := make(map[uuid.UUID]*View, len(b.views))
	for id, v := range b.views {
		views[id] = v
	}
	b.mu.Unlock()

	for _, j := range jobs {
		if v, ok := views[j.ID]; ok {
			v.Reconcile(j)
		}
	}
}

func (b *Board) closeAll() {
	b.mu.Lock()
	views := b.views
	b.views = make(map[uuid.UUID]*View)
	b.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}
