// Package lifecycle owns the job status/phase state machine. Every
// transition runs as one store transaction followed by one audit entry.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/repository"
)

// Engine executes workflow transitions against a JobStore.
type Engine struct {
	store    repository.JobStore
	audit    *AuditLogger
	logger   *slog.Logger
	phaseCap int
}

type Option func(*Engine)

// WithPhaseCap sets the ceiling for phases that are not yet current.
func WithPhaseCap(c int) Option {
	return func(e *Engine) {
		if c >= 0 && c < constants.ProgressMax {
			e.phaseCap = c
		}
	}
}

// WithAuditLogger replaces the default audit logger.
func WithAuditLogger(a *AuditLogger) Option {
	return func(e *Engine) {
		if a != nil {
			e.audit = a
		}
	}
}

func NewEngine(store repository.JobStore, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		logger:   logger,
		phaseCap: DefaultPhaseCap,
	}
	for _, o := range opts {
		o(e)
	}
	if e.audit == nil {
		e.audit = NewAuditLogger(store, logger)
	}
	return e
}

// PhaseCap reports the configured ceiling for not-yet-current phases.
func (e *Engine) PhaseCap() int { return e.phaseCap }

type writeOptions struct {
	expectVersion int64
}

// WriteOption tunes a single engine write.
type WriteOption func(*writeOptions)

// ExpectVersion rejects the write with ErrConflict unless the stored job is
// still at version v.
func ExpectVersion(v int64) WriteOption {
	return func(o *writeOptions) { o.expectVersion = v }
}

func collect(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// CreateJobRequest carries the fields needed to open a job.
type CreateJobRequest struct {
	Customer  string
	Product   string
	Priority  constants.Priority
	SIQty     int
	JobQty    int
	Remark    string
	StartDate time.Time
	DueDate   time.Time
}

// Create validates req and persists a new Allocated job at version 1.
func (e *Engine) Create(ctx context.Context, req CreateJobRequest, actor string) (*entity.Job, error) {
	if req.Priority == "" {
		req.Priority = constants.PriorityStandard
	}
	validator := common.NewValidator()
	validator.Field("customer", req.Customer, common.Required)
	validator.Field("product", req.Product, common.Required)
	validator.Field("priority", string(req.Priority), common.OneOf(constants.PriorityStrings()...))
	validator.Field("siQty", req.SIQty, common.Positive)
	validator.Field("jobQty", req.JobQty, common.Positive)
	validator.Field("startDate", req.StartDate, common.Required)
	validator.Field("dueDate", req.DueDate, common.Required)
	validator.Check(req.StartDate.IsZero() || req.DueDate.IsZero() || !req.DueDate.Before(req.StartDate),
		"dueDate", req.DueDate.Format(dateLayout), "must not be before startDate")
	validator.Field("actor", actor, common.Required)
	if err := validator.Err(); err != nil {
		e.logger.Warn("create job rejected", "actor", actor, "error", err)
		return nil, err
	}

	job := &entity.Job{
		ID:        uuid.New(),
		Customer:  strings.TrimSpace(req.Customer),
		Product:   strings.TrimSpace(req.Product),
		Priority:  req.Priority,
		SIQty:     req.SIQty,
		JobQty:    req.JobQty,
		Remark:    strings.TrimSpace(req.Remark),
		Status:    constants.JobStatusAllocated,
		StartDate: req.StartDate,
		DueDate:   req.DueDate,
		CreatedBy: actor,
	}
	created, err := e.store.Insert(ctx, job)
	if err != nil {
		e.logger.Error("failed to create job", "customer", job.Customer, "actor", actor, "error", err)
		return nil, err
	}
	e.audit.Record(ctx, created.ID, constants.AuditActionCreate, nil, created, actor, "Job created")
	e.logger.Info("job created", "job_id", created.ID, "customer", created.Customer, "actor", actor)
	return created, nil
}

// Advance moves the job one step forward to target. The edge must match the
// allowed-transition table exactly.
func (e *Engine) Advance(ctx context.Context, jobID uuid.UUID, targetStatus constants.JobStatus, targetPhase *constants.Phase, actor string, opts ...WriteOption) (*entity.Job, error) {
	target := entity.WorkflowState{Status: targetStatus, Phase: targetPhase}
	var from entity.WorkflowState
	updated, err := e.store.Update(ctx, jobID, collect(opts).expectVersion, func(j *entity.Job) error {
		from = j.State()
		if err := checkForward(j, target); err != nil {
			return err
		}
		moveTo(j, target)
		return nil
	})
	if err != nil {
		e.logger.Warn("advance rejected", "job_id", jobID, "target", target.String(), "actor", actor, "error", err)
		return nil, err
	}
	to := updated.State()
	e.audit.Record(ctx, jobID, constants.AuditActionMove, from, to, actor, "Advanced to "+to.String())
	e.logger.Info("job advanced", "job_id", jobID, "from", from.String(), "to", to.String(), "version", updated.Version, "actor", actor)
	return updated, nil
}

// AdvanceNext moves the job along its single forward edge.
func (e *Engine) AdvanceNext(ctx context.Context, jobID uuid.UUID, actor string, opts ...WriteOption) (*entity.Job, error) {
	cur, err := e.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	next, err := NextState(cur)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		opts = []WriteOption{ExpectVersion(cur.Version)}
	}
	return e.Advance(ctx, jobID, next.Status, next.Phase, actor, opts...)
}

// Reverse undoes exactly one workflow step. job is the caller's view; the
// write is rejected with ErrConflict if the stored job moved on since.
func (e *Engine) Reverse(ctx context.Context, job *entity.Job, actor string) (*entity.Job, error) {
	if job == nil {
		return nil, common.NewValidationError("job is required")
	}
	var from entity.WorkflowState
	var oldProgress entity.PhaseProgress
	updated, err := e.store.Update(ctx, job.ID, job.Version, func(j *entity.Job) error {
		from = j.State()
		oldProgress = j.PhaseProgress
		return reverseOne(j)
	})
	if err != nil {
		e.logger.Warn("reverse rejected", "job_id", job.ID, "actor", actor, "error", err)
		return nil, err
	}
	to := updated.State()
	e.audit.Record(ctx, job.ID, constants.AuditActionMove,
		moveSnapshot{WorkflowState: from, PhaseProgress: oldProgress},
		moveSnapshot{WorkflowState: to, PhaseProgress: updated.PhaseProgress},
		actor, "Reversed to "+to.String())
	e.logger.Info("job reversed", "job_id", job.ID, "from", from.String(), "to", to.String(), "version", updated.Version, "actor", actor)
	return updated, nil
}

type moveSnapshot struct {
	entity.WorkflowState
	PhaseProgress entity.PhaseProgress `json:"phaseProgress"`
}

// SoftDelete flags an Allocated job as deleted. The document and its audit
// trail are kept.
func (e *Engine) SoftDelete(ctx context.Context, jobID uuid.UUID, actor string, opts ...WriteOption) (*entity.Job, error) {
	updated, err := e.store.Update(ctx, jobID, collect(opts).expectVersion, func(j *entity.Job) error {
		if j.Status != constants.JobStatusAllocated {
			return common.NewInvalidTransition("job %s is %s; only Allocated jobs can be deleted", j.ID, j.Status)
		}
		j.IsDeleted = true
		return nil
	})
	if err != nil {
		e.logger.Warn("delete rejected", "job_id", jobID, "actor", actor, "error", err)
		return nil, err
	}
	e.audit.Record(ctx, jobID, constants.AuditActionDelete,
		map[string]bool{"isDeleted": false}, map[string]bool{"isDeleted": true}, actor, "Job deleted")
	e.logger.Info("job deleted", "job_id", jobID, "actor", actor)
	return updated, nil
}

// UpdateFields applies patch to the descriptive fields of a job. Workflow
// fields are never touched.
func (e *Engine) UpdateFields(ctx context.Context, jobID uuid.UUID, patch entity.JobPatch, actor string, opts ...WriteOption) (*entity.Job, error) {
	if patch.Empty() {
		return nil, common.NewValidationError("update has no fields")
	}
	var oldDiff, newDiff map[string]any
	updated, err := e.store.Update(ctx, jobID, collect(opts).expectVersion, func(j *entity.Job) error {
		if (patch.JobsheetNo != nil || patch.ReferenceNo != nil) && j.Status != constants.JobStatusWaiting {
			return common.NewPreconditionFailed("jobsheetNo/referenceNo can only be set while job %s is Waiting (status %s)", j.ID, j.Status)
		}
		before := j.Clone()
		applyPatch(j, patch)
		if err := validateFields(j); err != nil {
			return err
		}
		oldDiff, newDiff = diffFields(before, j)
		return nil
	})
	if err != nil {
		e.logger.Warn("update rejected", "job_id", jobID, "actor", actor, "error", err)
		return nil, err
	}
	e.audit.Record(ctx, jobID, constants.AuditActionUpdate, oldDiff, newDiff, actor, describeDiff(newDiff))
	e.logger.Info("job updated", "job_id", jobID, "fields", len(newDiff), "version", updated.Version, "actor", actor)
	return updated, nil
}

// ProgressResult describes the outcome of a progress write.
type ProgressResult struct {
	Job   *entity.Job
	Moved bool
	From  entity.WorkflowState
	To    entity.WorkflowState
}

// SaveProgress writes the full progress snapshot of an OnProcess job. When
// advance is set and phase is the current phase at 100%, the same
// transaction also moves the job along its forward edge.
func (e *Engine) SaveProgress(ctx context.Context, jobID uuid.UUID, progress entity.PhaseProgress, phase constants.Phase, advance bool, actor string, opts ...WriteOption) (ProgressResult, error) {
	if !phase.Valid() {
		return ProgressResult{}, common.NewValidationError(fmt.Sprintf("unknown phase %q", phase))
	}
	var res ProgressResult
	var oldProgress entity.PhaseProgress
	updated, err := e.store.Update(ctx, jobID, collect(opts).expectVersion, func(j *entity.Job) error {
		if j.Status != constants.JobStatusOnProcess {
			return common.NewInvalidTransition("job %s is %s; progress can only change while OnProcess", j.ID, j.Status)
		}
		cur, _ := j.Phase()
		res.From = j.State()
		oldProgress = j.PhaseProgress
		j.PhaseProgress = NormalizeProgress(progress, cur, e.phaseCap)

		if !advance || phase != cur || j.PhaseProgress.Get(cur) != constants.ProgressMax {
			return nil
		}
		next, err := NextState(j)
		if err != nil {
			return err
		}
		if err := checkForward(j, next); err != nil {
			return err
		}
		moveTo(j, next)
		res.Moved = true
		return nil
	})
	if err != nil {
		e.logger.Warn("progress write rejected", "job_id", jobID, "phase", phase, "actor", actor, "error", err)
		return ProgressResult{}, err
	}
	res.Job = updated
	res.To = updated.State()

	if res.Moved {
		e.audit.Record(ctx, jobID, constants.AuditActionMove,
			moveSnapshot{WorkflowState: res.From, PhaseProgress: oldProgress},
			moveSnapshot{WorkflowState: res.To, PhaseProgress: updated.PhaseProgress},
			actor, fmt.Sprintf("%s completed; advanced to %s", phase, res.To))
		e.logger.Info("job advanced by progress", "job_id", jobID, "from", res.From.String(), "to", res.To.String(), "actor", actor)
	} else {
		e.audit.Record(ctx, jobID, constants.AuditActionUpdate,
			map[string]any{"phaseProgress": oldProgress}, map[string]any{"phaseProgress": updated.PhaseProgress},
			actor, fmt.Sprintf("%s progress %d%%", phase, updated.PhaseProgress.Get(phase)))
		e.logger.Debug("job progress saved", "job_id", jobID, "phase", phase, "version", updated.Version, "actor", actor)
	}
	return res, nil
}

// AddComment appends a free-text comment to the audit trail without
// touching the job document.
func (e *Engine) AddComment(ctx context.Context, jobID uuid.UUID, text, actor string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return common.NewValidationError("comment text is required")
	}
	if _, err := e.store.Get(ctx, jobID); err != nil {
		return err
	}
	entry := &entity.AuditLog{Action: constants.AuditActionComment, PerformedBy: actor, Details: text}
	if err := e.store.AppendAudit(ctx, jobID, entry); err != nil {
		e.logger.Error("failed to add comment", "job_id", jobID, "actor", actor, "error", err)
		return err
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	return e.store.Get(ctx, jobID)
}

func (e *Engine) List(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error) {
	return e.store.List(ctx, filter)
}

func (e *Engine) ListAudit(ctx context.Context, jobID uuid.UUID) ([]*entity.AuditLog, error) {
	return e.store.ListAudit(ctx, jobID)
}

// Subscribe exposes the store feed for board views.
func (e *Engine) Subscribe(ctx context.Context, filter entity.JobFilter) (<-chan []*entity.Job, error) {
	return e.store.Subscribe(ctx, filter)
}
