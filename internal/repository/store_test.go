package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

func newAllocatedJob(customer string) *entity.Job {
	return &entity.Job{
		Customer:  customer,
		Product:   "Cartons",
		Priority:  constants.PriorityStandard,
		SIQty:     10,
		JobQty:    100,
		Status:    constants.JobStatusAllocated,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}
}

func storeFactories() map[string]func(t *testing.T) JobStore {
	return map[string]func(t *testing.T) JobStore{
		"memory": func(t *testing.T) JobStore {
			return NewMemoryStore(nil)
		},
		"sqlite": func(t *testing.T) JobStore {
			path := filepath.Join(t.TempDir(), "jobs.db")
			s, err := OpenSQLite(context.Background(), path, nil, nil)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("InsertGet", func(t *testing.T) { testInsertGet(t, factory(t)) })
			t.Run("UpdateBumpsVersion", func(t *testing.T) { testUpdateBumpsVersion(t, factory(t)) })
			t.Run("StaleVersionConflicts", func(t *testing.T) { testStaleVersion(t, factory(t)) })
			t.Run("PhaseRemoval", func(t *testing.T) { testPhaseRemoval(t, factory(t)) })
			t.Run("DeletedIsNotFound", func(t *testing.T) { testDeleted(t, factory(t)) })
			t.Run("InvariantRejected", func(t *testing.T) { testInvariant(t, factory(t)) })
			t.Run("AuditOrdering", func(t *testing.T) { testAuditOrdering(t, factory(t)) })
			t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, factory(t)) })
		})
	}
}

func testInsertGet(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, err := s.Insert(ctx, newAllocatedJob("ACME"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(created.Customer, got.Customer); diff != "" {
		t.Fatalf("customer mismatch (-want +got):\n%s", diff)
	}
	if got.CurrentPhase != nil {
		t.Fatalf("allocated job must not carry a phase, got %v", *got.CurrentPhase)
	}
	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testUpdateBumpsVersion(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	for want := int64(2); want <= 4; want++ {
		updated, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
			j.Remark = "rev"
			j.Version = 99 // ignored
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Version != want {
			t.Fatalf("expected version %d, got %d", want, updated.Version)
		}
	}
}

func testStaleVersion(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	if _, err := s.Update(ctx, created.ID, created.Version, func(j *entity.Job) error { return nil }); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, err := s.Update(ctx, created.ID, created.Version, func(j *entity.Job) error { return nil })
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func testPhaseRemoval(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	started, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
		j.Status = constants.JobStatusOnProcess
		j.SetPhase(constants.PhasePicking)
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p, ok := started.Phase(); !ok || p != constants.PhasePicking {
		t.Fatalf("expected Picking, got %v %v", p, ok)
	}
	back, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
		j.Status = constants.JobStatusAllocated
		j.ClearPhase()
		return nil
	})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	reread, _ := s.Get(ctx, back.ID)
	if reread.CurrentPhase != nil {
		t.Fatalf("phase should be removed, got %v", *reread.CurrentPhase)
	}
}

func testDeleted(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	if _, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
		j.IsDeleted = true
		return nil
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error { return nil })
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found for deleted job, got %v", err)
	}
	active, _ := s.List(ctx, entity.ActiveJobs())
	if len(active) != 0 {
		t.Fatalf("deleted job listed as active: %+v", active)
	}
	all, _ := s.List(ctx, entity.JobFilter{IncludeDeleted: true})
	if len(all) != 1 {
		t.Fatalf("expected deleted job with IncludeDeleted, got %d", len(all))
	}
}

func testInvariant(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	_, err := s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
		j.Status = constants.JobStatusOnProcess
		return nil
	})
	if err == nil {
		t.Fatalf("expected OnProcess without phase to be rejected")
	}
	got, _ := s.Get(ctx, created.ID)
	if got.Version != 1 {
		t.Fatalf("rejected write must not bump version, got %d", got.Version)
	}
}

func testAuditOrdering(t *testing.T, s JobStore) {
	ctx := context.Background()
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	actions := []constants.AuditAction{constants.AuditActionCreate, constants.AuditActionMove, constants.AuditActionComment}
	for _, a := range actions {
		if err := s.AppendAudit(ctx, created.ID, &entity.AuditLog{Action: a, PerformedBy: "u1"}); err != nil {
			t.Fatalf("append %s: %v", a, err)
		}
	}
	entries, err := s.ListAudit(ctx, created.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	got := make([]constants.AuditAction, len(entries))
	for i, e := range entries {
		got[i] = e.Action
	}
	if diff := cmp.Diff(actions, got); diff != "" {
		t.Fatalf("audit order mismatch (-want +got):\n%s", diff)
	}
	if err := s.AppendAudit(ctx, uuid.New(), &entity.AuditLog{Action: constants.AuditActionComment}); err == nil {
		t.Fatalf("expected append to an unknown job to fail")
	}
}

func testSubscribe(t *testing.T, s JobStore) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.Subscribe(ctx, entity.ActiveJobs())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	first := receive(t, ch)
	if len(first) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(first))
	}
	created, _ := s.Insert(ctx, newAllocatedJob("ACME"))
	waitFor(t, ch, func(jobs []*entity.Job) bool { return len(jobs) == 1 && jobs[0].ID == created.ID })

	_, _ = s.Update(ctx, created.ID, 0, func(j *entity.Job) error {
		j.IsDeleted = true
		return nil
	})
	waitFor(t, ch, func(jobs []*entity.Job) bool { return len(jobs) == 0 })

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription channel not closed after cancel")
		}
	}
}

func receive(t *testing.T, ch <-chan []*entity.Job) []*entity.Job {
	t.Helper()
	select {
	case jobs := <-ch:
		return jobs
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return nil
}

func waitFor(t *testing.T, ch <-chan []*entity.Job, ok func([]*entity.Job) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case jobs := <-ch:
			if ok(jobs) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching snapshot")
		}
	}
}
