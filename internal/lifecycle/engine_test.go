package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/repository"
)

func validRequest() CreateJobRequest {
	return CreateJobRequest{
		Customer:  "Northwind",
		Product:   "Blister packs",
		Priority:  constants.PriorityStandard,
		SIQty:     12,
		JobQty:    1200,
		StartDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(repository.NewMemoryStore(nil), nil, opts...)
}

func createJob(t *testing.T, e *Engine) *entity.Job {
	t.Helper()
	job, err := e.Create(context.Background(), validRequest(), "planner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

// completeCurrentPhase sets the current phase to 100 and lets the write advance the job.
func completeCurrentPhase(t *testing.T, e *Engine, id uuid.UUID) *entity.Job {
	t.Helper()
	ctx := context.Background()
	job, err := e.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cur, ok := job.Phase()
	if !ok {
		t.Fatalf("job is %s, not on a phase", job.State())
	}
	progress := job.PhaseProgress
	progress.Set(cur, 100)
	res, err := e.SaveProgress(ctx, id, progress, cur, true, "packer")
	if err != nil {
		t.Fatalf("complete %s: %v", cur, err)
	}
	if !res.Moved {
		t.Fatalf("completing %s did not move the job", cur)
	}
	return res.Job
}

func toWaiting(t *testing.T, e *Engine) *entity.Job {
	t.Helper()
	job := createJob(t, e)
	if _, err := e.AdvanceNext(context.Background(), job.ID, "planner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for range constants.Phases() {
		job = completeCurrentPhase(t, e, job.ID)
	}
	return job
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name   string
		mutate func(*CreateJobRequest)
	}{
		{"missing customer", func(r *CreateJobRequest) { r.Customer = "  " }},
		{"missing product", func(r *CreateJobRequest) { r.Product = "" }},
		{"zero si qty", func(r *CreateJobRequest) { r.SIQty = 0 }},
		{"negative job qty", func(r *CreateJobRequest) { r.JobQty = -5 }},
		{"unknown priority", func(r *CreateJobRequest) { r.Priority = "Urgent" }},
		{"missing start date", func(r *CreateJobRequest) { r.StartDate = time.Time{} }},
		{"due before start", func(r *CreateJobRequest) { r.DueDate = r.StartDate.AddDate(0, 0, -1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if _, err := e.Create(context.Background(), req, "planner"); !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCreateStartsAllocated(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)

	if job.Status != constants.JobStatusAllocated || job.CurrentPhase != nil {
		t.Fatalf("state = %s, want Allocated", job.State())
	}
	if job.Version != 1 {
		t.Fatalf("version = %d, want 1", job.Version)
	}
	if job.PhaseProgress != (entity.PhaseProgress{}) {
		t.Fatalf("progress = %+v, want zeros", job.PhaseProgress)
	}
	entries, err := e.ListAudit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != constants.AuditActionCreate || entries[0].PerformedBy != "planner" {
		t.Fatalf("audit = %+v, want one create entry by planner", entries)
	}
}

func TestFullWorkflow(t *testing.T) {
	e := newTestEngine(t)
	job := toWaiting(t, e)

	if job.Status != constants.JobStatusWaiting || job.CurrentPhase != nil {
		t.Fatalf("state = %s, want Waiting", job.State())
	}
	want := entity.PhaseProgress{Picking: 100, Packing: 100, ProcessData: 100, Storage: 100}
	if diff := cmp.Diff(want, job.PhaseProgress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}

	entries, err := e.ListAudit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var actions []constants.AuditAction
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	wantActions := []constants.AuditAction{constants.AuditActionCreate}
	for i := 0; i < 5; i++ {
		wantActions = append(wantActions, constants.AuditActionMove)
	}
	if diff := cmp.Diff(wantActions, actions); diff != "" {
		t.Fatalf("audit actions mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceRejectsWrongEdge(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)
	packing := constants.PhasePacking

	_, err := e.Advance(context.Background(), job.ID, constants.JobStatusOnProcess, &packing, "planner")
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
	_, err = e.Advance(context.Background(), job.ID, constants.JobStatusComplete, nil, "planner")
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("skip to Complete: err = %v, want invalid transition", err)
	}
}

func TestAdvanceRequiresFinishedPhase(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)
	ctx := context.Background()
	if _, err := e.AdvanceNext(ctx, job.ID, "planner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := e.AdvanceNext(ctx, job.ID, "planner")
	if !errors.Is(err, common.ErrPreconditionFailed) {
		t.Fatalf("err = %v, want precondition failed", err)
	}
}

func TestCompleteRequiresJobsheetAndReference(t *testing.T) {
	e := newTestEngine(t)
	job := toWaiting(t, e)
	ctx := context.Background()

	if _, err := e.Advance(ctx, job.ID, constants.JobStatusComplete, nil, "planner"); !errors.Is(err, common.ErrPreconditionFailed) {
		t.Fatalf("err = %v, want precondition failed", err)
	}

	sheet, ref := "JS-1001", "REF-77"
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{JobsheetNo: &sheet}, "planner"); err != nil {
		t.Fatalf("set jobsheet: %v", err)
	}
	if _, err := e.Advance(ctx, job.ID, constants.JobStatusComplete, nil, "planner"); !errors.Is(err, common.ErrPreconditionFailed) {
		t.Fatalf("with jobsheet only: err = %v, want precondition failed", err)
	}
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{ReferenceNo: &ref}, "planner"); err != nil {
		t.Fatalf("set reference: %v", err)
	}
	done, err := e.Advance(ctx, job.ID, constants.JobStatusComplete, nil, "planner")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != constants.JobStatusComplete {
		t.Fatalf("status = %s, want Complete", done.Status)
	}

	report, err := e.AdvanceNext(ctx, job.ID, "planner")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := e.AdvanceNext(ctx, job.ID, "planner"); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("advance from Report: err = %v, want invalid transition", err)
	}
	if report.Status != constants.JobStatusReport {
		t.Fatalf("status = %s, want Report", report.Status)
	}
}

func TestReverseResetsPhaseProgress(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	if _, err := e.AdvanceNext(ctx, job.ID, "planner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	completeCurrentPhase(t, e, job.ID)

	res, err := e.SaveProgress(ctx, job.ID, entity.PhaseProgress{Picking: 100, Packing: 55}, constants.PhasePacking, false, "packer")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	reversed, err := e.Reverse(ctx, res.Job, "supervisor")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if cur, _ := reversed.Phase(); cur != constants.PhasePicking {
		t.Fatalf("phase = %s, want Picking", cur)
	}
	if reversed.PhaseProgress != (entity.PhaseProgress{}) {
		t.Fatalf("progress = %+v, want zeros", reversed.PhaseProgress)
	}

	entries, err := e.ListAudit(ctx, job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Action != constants.AuditActionMove || last.Details != "Reversed to OnProcess (Picking)" {
		t.Fatalf("last audit = %s %q", last.Action, last.Details)
	}
	var before moveSnapshot
	if err := json.Unmarshal(last.OldValue, &before); err != nil {
		t.Fatalf("decode old value: %v", err)
	}
	if before.PhaseProgress.Packing != 55 {
		t.Fatalf("audit old packing = %d, want 55", before.PhaseProgress.Packing)
	}
}

func TestReverseUndoesAdvance(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	// walk one job along every edge except Complete -> Report, checking the
	// reverse of each step against a fresh job at the same point
	job := createJob(t, e)
	sheet, ref := "JS-2", "REF-2"
	for step := 0; step < 6; step++ {
		before, err := e.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if before.Status == constants.JobStatusWaiting {
			if before, err = e.UpdateFields(ctx, job.ID, entity.JobPatch{JobsheetNo: &sheet, ReferenceNo: &ref}, "planner"); err != nil {
				t.Fatalf("set numbers: %v", err)
			}
		}
		var advanced *entity.Job
		if cur, ok := before.Phase(); ok {
			progress := before.PhaseProgress
			progress.Set(cur, 100)
			res, err := e.SaveProgress(ctx, job.ID, progress, cur, true, "packer")
			if err != nil {
				t.Fatalf("step %d: %v", step, err)
			}
			advanced = res.Job
		} else if advanced, err = e.AdvanceNext(ctx, job.ID, "planner"); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}

		reversed, err := e.Reverse(ctx, advanced, "supervisor")
		if err != nil {
			t.Fatalf("step %d reverse: %v", step, err)
		}
		if got, want := reversed.State().String(), before.State().String(); got != want {
			t.Fatalf("step %d: reversed to %s, want %s", step, got, want)
		}

		// redo the step for the next iteration
		if cur, ok := reversed.Phase(); ok {
			progress := reversed.PhaseProgress
			progress.Set(cur, 100)
			if _, err := e.SaveProgress(ctx, job.ID, progress, cur, true, "packer"); err != nil {
				t.Fatalf("step %d redo: %v", step, err)
			}
		} else {
			if reversed.Status == constants.JobStatusWaiting {
				if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{JobsheetNo: &sheet, ReferenceNo: &ref}, "planner"); err != nil {
					t.Fatalf("step %d renumber: %v", step, err)
				}
			}
			if _, err := e.AdvanceNext(ctx, job.ID, "planner"); err != nil {
				t.Fatalf("step %d redo: %v", step, err)
			}
		}
	}
	final, err := e.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != constants.JobStatusComplete {
		t.Fatalf("final status = %s, want Complete", final.Status)
	}
}

func TestReverseFromWaitingClearsNumbers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := toWaiting(t, e)
	sheet, ref := "JS-9", "REF-9"
	job, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{JobsheetNo: &sheet, ReferenceNo: &ref}, "planner")
	if err != nil {
		t.Fatalf("set numbers: %v", err)
	}

	reversed, err := e.Reverse(ctx, job, "supervisor")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if cur, _ := reversed.Phase(); reversed.Status != constants.JobStatusOnProcess || cur != constants.PhaseStorage {
		t.Fatalf("state = %s, want OnProcess (Storage)", reversed.State())
	}
	if reversed.JobsheetNo != "" || reversed.ReferenceNo != "" {
		t.Fatalf("numbers kept: %q %q", reversed.JobsheetNo, reversed.ReferenceNo)
	}
	want := entity.PhaseProgress{Picking: 100, Packing: 100, ProcessData: 100}
	if diff := cmp.Diff(want, reversed.PhaseProgress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestReverseAllocatedRejected(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)
	if _, err := e.Reverse(context.Background(), job, "supervisor"); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestReverseStaleViewConflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	started, err := e.AdvanceNext(ctx, job.ID, "planner")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.SaveProgress(ctx, job.ID, entity.PhaseProgress{Picking: 20}, constants.PhasePicking, false, "packer"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := e.Reverse(ctx, started, "supervisor"); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestExpectVersionConflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	remark := "fragile"
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{Remark: &remark}, "planner", ExpectVersion(job.Version+1)); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{Remark: &remark}, "planner", ExpectVersion(job.Version)); err != nil {
		t.Fatalf("matching version: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	other := createJob(t, e)
	if _, err := e.AdvanceNext(ctx, other.ID, "planner"); err != nil {
		t.Fatalf("start other: %v", err)
	}

	if _, err := e.SoftDelete(ctx, other.ID, "planner"); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("delete OnProcess: err = %v, want invalid transition", err)
	}
	if _, err := e.SoftDelete(ctx, job.ID, "planner"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := e.Get(ctx, job.ID)
	if err != nil || !got.IsDeleted {
		t.Fatalf("get deleted: job = %+v, err = %v; want the document marked deleted", got, err)
	}
	active, err := e.List(ctx, entity.ActiveJobs())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, j := range active {
		if j.ID == job.ID {
			t.Fatal("deleted job listed as active")
		}
	}
	if _, err := e.SoftDelete(ctx, job.ID, "planner"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("delete twice: err = %v, want not found", err)
	}

	entries, err := e.ListAudit(ctx, job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 2 || entries[1].Action != constants.AuditActionDelete {
		t.Fatalf("audit = %d entries, want create + delete", len(entries))
	}
}

func TestUpdateFieldsRecordsDiff(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	customer := "Contoso"
	qty := 1500

	updated, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{Customer: &customer, JobQty: &qty}, "planner")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Customer != customer || updated.JobQty != qty || updated.Status != constants.JobStatusAllocated {
		t.Fatalf("updated = %+v", updated)
	}

	sheet := "JS-1"
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{JobsheetNo: &sheet}, "planner"); !errors.Is(err, common.ErrPreconditionFailed) {
		t.Fatalf("jobsheet while Allocated: err = %v, want precondition failed", err)
	}
	zero := 0
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{SIQty: &zero}, "planner"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("zero qty: err = %v, want validation", err)
	}
	if _, err := e.UpdateFields(ctx, job.ID, entity.JobPatch{}, "planner"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("empty patch: err = %v, want validation", err)
	}

	entries, err := e.ListAudit(ctx, job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Action != constants.AuditActionUpdate {
		t.Fatalf("last action = %s, want update", last.Action)
	}
	var before, after map[string]any
	if err := json.Unmarshal(last.OldValue, &before); err != nil {
		t.Fatalf("decode old: %v", err)
	}
	if err := json.Unmarshal(last.NewValue, &after); err != nil {
		t.Fatalf("decode new: %v", err)
	}
	if before["customer"] != "Northwind" || after["customer"] != "Contoso" {
		t.Fatalf("customer diff = %v -> %v", before["customer"], after["customer"])
	}
	if _, ok := after["product"]; ok {
		t.Fatal("unchanged field recorded in diff")
	}
}

func TestSaveProgressClampsAndCaps(t *testing.T) {
	e := newTestEngine(t, WithPhaseCap(80))
	ctx := context.Background()
	job := createJob(t, e)
	if _, err := e.AdvanceNext(ctx, job.ID, "planner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := e.SaveProgress(ctx, job.ID, entity.PhaseProgress{Picking: 140, Packing: 95, Storage: -3}, constants.PhasePacking, true, "packer")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Moved {
		t.Fatal("write on a later phase moved the job")
	}
	want := entity.PhaseProgress{Picking: 100, Packing: 80}
	if diff := cmp.Diff(want, res.Job.PhaseProgress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveProgressOutsideOnProcess(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)
	_, err := e.SaveProgress(context.Background(), job.ID, entity.PhaseProgress{Picking: 10}, constants.PhasePicking, false, "packer")
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestAddComment(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	job := createJob(t, e)
	if err := e.AddComment(ctx, job.ID, "  pallet 3 damaged ", "packer"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := e.AddComment(ctx, job.ID, " ", "packer"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("blank comment: err = %v, want validation", err)
	}
	if err := e.AddComment(ctx, uuid.New(), "hello", "packer"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("unknown job: err = %v, want not found", err)
	}
	entries, err := e.ListAudit(ctx, job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Action != constants.AuditActionComment || last.Details != "pallet 3 damaged" {
		t.Fatalf("last audit = %s %q", last.Action, last.Details)
	}
	stored, err := e.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != job.Version {
		t.Fatalf("comment bumped version to %d", stored.Version)
	}
}

type failingAuditStore struct {
	repository.JobStore
}

func (failingAuditStore) AppendAudit(context.Context, uuid.UUID, *entity.AuditLog) error {
	return errors.New("audit collection unavailable")
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	store := failingAuditStore{JobStore: repository.NewMemoryStore(nil)}
	e := NewEngine(store, nil)
	ctx := context.Background()

	job, err := e.Create(ctx, validRequest(), "planner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	started, err := e.AdvanceNext(ctx, job.ID, "planner")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if started.Status != constants.JobStatusOnProcess {
		t.Fatalf("status = %s, want OnProcess", started.Status)
	}
	entries, err := e.ListAudit(ctx, job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("audit entries = %d, want 0", len(entries))
	}
}

func TestAuditSurvivesCancelledContext(t *testing.T) {
	e := newTestEngine(t)
	job := createJob(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	store := e.store
	updated, err := store.Update(ctx, job.ID, 0, func(j *entity.Job) error {
		j.Remark = "late"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	cancel()
	e.audit.Record(ctx, updated.ID, constants.AuditActionUpdate, nil, map[string]string{"remark": "late"}, "planner", "remark")

	entries, err := e.ListAudit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
}

func TestDecodeCreateRequest(t *testing.T) {
	req, err := DecodeCreateRequest([]byte(`{"customer":"Acme","product":"Trays","priority":"High","siQty":2,"jobQty":20,"startDate":"2026-05-01","dueDate":"2026-05-03"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := CreateJobRequest{
		Customer:  "Acme",
		Product:   "Trays",
		Priority:  constants.PriorityHigh,
		SIQty:     2,
		JobQty:    20,
		StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	bad := []string{
		`{"customer":"Acme"}`,
		`{"customer":"Acme","product":"Trays","siQty":0,"jobQty":20,"startDate":"2026-05-01","dueDate":"2026-05-03"}`,
		`{"customer":"Acme","product":"Trays","siQty":1,"jobQty":20,"startDate":"May 1","dueDate":"2026-05-03"}`,
		`{"customer":"Acme","product":"Trays","siQty":1,"jobQty":20,"startDate":"2026-05-01","dueDate":"2026-05-03","status":"Report"}`,
		`not json`,
	}
	for _, doc := range bad {
		if _, err := DecodeCreateRequest([]byte(doc)); !errors.Is(err, common.ErrValidation) {
			t.Errorf("decode %s: err = %v, want validation", doc, err)
		}
	}
}

func TestNormalizeProgress(t *testing.T) {
	got := NormalizeProgress(entity.PhaseProgress{Picking: 10, Packing: 101, ProcessData: 95, Storage: 40}, constants.PhasePacking, 90)
	want := entity.PhaseProgress{Picking: 100, Packing: 100, ProcessData: 90, Storage: 40}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
}
