package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
)

// MemoryStore is an in-process JobStore used for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*entity.Job
	audits map[uuid.UUID][]*entity.AuditLog
	seq    int64

	now    Clock
	bus    feed.Bus
	logger *slog.Logger
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the timestamp source.
func WithClock(c Clock) MemoryOption {
	return func(m *MemoryStore) {
		if c != nil {
			m.now = c
		}
	}
}

// WithBus publishes changes on b instead of a private local bus.
func WithBus(b feed.Bus) MemoryOption {
	return func(m *MemoryStore) {
		if b != nil {
			m.bus = b
		}
	}
}

func NewMemoryStore(logger *slog.Logger, opts ...MemoryOption) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MemoryStore{
		jobs:   make(map[uuid.UUID]*entity.Job),
		audits: make(map[uuid.UUID][]*entity.AuditLog),
		now:    defaultClock,
		bus:    feed.NewLocalBus(),
		logger: logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, common.NewNotFound("job %s not found", id)
	}
	return job.Clone(), nil
}

func (m *MemoryStore) Insert(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	m.mu.Lock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := m.jobs[job.ID]; exists {
		m.mu.Unlock()
		return nil, common.NewConflict("job %s already exists", job.ID)
	}
	if err := checkDocument(job); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	stored := job.Clone()
	now := m.now()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.jobs[stored.ID] = stored
	out := stored.Clone()
	m.mu.Unlock()

	publishChange(ctx, m.bus, out, m.logger)
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, id uuid.UUID, expectVersion int64, fn UpdateFunc) (*entity.Job, error) {
	m.mu.Lock()
	cur, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, common.NewNotFound("job %s not found", id)
	}
	next, err := applyUpdate(cur, expectVersion, fn, m.now())
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.jobs[id] = next
	out := next.Clone()
	m.mu.Unlock()

	publishChange(ctx, m.bus, out, m.logger)
	return out, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, jobID uuid.UUID, entry *entity.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return common.NewNotFound("job %s not found", jobID)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.seq++
	entry.JobID = jobID
	entry.Seq = m.seq
	entry.Timestamp = m.now()
	cp := *entry
	m.audits[jobID] = append(m.audits[jobID], &cp)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, jobID uuid.UUID) ([]*entity.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, common.NewNotFound("job %s not found", jobID)
	}
	entries := m.audits[jobID]
	out := make([]*entity.AuditLog, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, filter entity.JobFilter) ([]*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if filter.Match(j) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, filter entity.JobFilter) (<-chan []*entity.Job, error) {
	return watch(ctx, m.bus, filter, m.List, m.logger)
}

func (m *MemoryStore) Close() error {
	return nil
}

func sortJobs(jobs []*entity.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID.String() < jobs[j].ID.String()
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
