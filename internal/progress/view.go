// Package progress keeps a job's phase sliders responsive: edits apply
// locally at once, writes are debounced, and pushes from the live feed are
// held back while a local edit is still settling.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/async"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
)

// SyncState is the reconciliation state of a view.
type SyncState int

const (
	// StateIdle accepts server snapshots.
	StateIdle SyncState = iota
	// StatePendingFlush has a debounced write armed.
	StatePendingFlush
	// StateFlushing has a write in flight.
	StateFlushing
	// StateRecentlyInteracted is inside the grace window after the last edit.
	StateRecentlyInteracted
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingFlush:
		return "pending_flush"
	case StateFlushing:
		return "flushing"
	case StateRecentlyInteracted:
		return "recently_interacted"
	}
	return "unknown"
}

// Config tunes a view.
type Config struct {
	Debounce    time.Duration
	GraceWindow time.Duration
	PhaseCap    int
}

// DefaultConfig matches the board defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:    600 * time.Millisecond,
		GraceWindow: 2 * time.Second,
		PhaseCap:    lifecycle.DefaultPhaseCap,
	}
}

// ConfigFromCommon converts the environment-loaded sync settings.
func ConfigFromCommon(c common.SyncConfig) Config {
	return Config{Debounce: c.Debounce, GraceWindow: c.GraceWindow, PhaseCap: c.PhaseCap}
}

// Flusher persists a progress snapshot, optionally advancing the job.
type Flusher interface {
	SaveProgress(ctx context.Context, jobID uuid.UUID, progress entity.PhaseProgress, phase constants.Phase, advance bool, actor string, opts ...lifecycle.WriteOption) (lifecycle.ProgressResult, error)
}

// AdvanceEvent reports a flush that moved the job.
type AdvanceEvent struct {
	JobID uuid.UUID
	Phase constants.Phase
	From  entity.WorkflowState
	To    entity.WorkflowState
	Job   *entity.Job
	// CloseView is set when the job left the phase board (Waiting or Complete).
	CloseView bool
}

// Snapshot is what a view currently displays.
type Snapshot struct {
	Job      *entity.Job
	Progress entity.PhaseProgress
	State    SyncState
}

// Hooks receive view notifications. Each may be nil. Hooks run without the
// view lock held, on the goroutine that caused them.
type Hooks struct {
	OnChange  func(Snapshot)
	OnAdvance func(AdvanceEvent)
	OnError   func(error)
}

// View is the per-job progress sync state.
type View struct {
	jobID   uuid.UUID
	actor   string
	cfg     Config
	sched   Scheduler
	flusher Flusher
	runner  Runner
	hooks   Hooks
	logger  *slog.Logger

	// submitMu orders issuing a write with handing it to the runner, so
	// writes reach the runner in the order they were issued.
	submitMu sync.Mutex

	mu              sync.Mutex
	job             *entity.Job
	local           entity.PhaseProgress
	lastInteraction time.Time
	pending         Timer
	pendingReq      *flushRequest
	pendingSeq      uint64
	issued          uint64
	inFlight        int
	deferred        *entity.Job
	recheck         Timer
	closed          bool
	lastErr         error
}

// NewView opens a view on job for actor. job is the snapshot the view starts from.
func NewView(job *entity.Job, actor string, cfg Config, sched Scheduler, flusher Flusher, runner Runner, hooks Hooks, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	if sched == nil {
		sched = SystemScheduler{}
	}
	return &View{
		jobID:   job.ID,
		actor:   actor,
		cfg:     cfg,
		sched:   sched,
		flusher: flusher,
		runner:  runner,
		hooks:   hooks,
		logger:  logger.With("job_id", job.ID, "actor", actor),
		job:     job.Clone(),
		local:   job.PhaseProgress,
	}
}

func (v *View) JobID() uuid.UUID { return v.jobID }

// Snapshot returns the currently displayed state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	return Snapshot{Job: v.job.Clone(), Progress: v.local, State: v.stateLocked()}
}

// LastError returns the most recent flush failure, if any.
func (v *View) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

func (v *View) stateLocked() SyncState {
	switch {
	case v.inFlight > 0:
		return StateFlushing
	case v.pending != nil:
		return StatePendingFlush
	case !v.lastInteraction.IsZero() && v.sched.Now().Sub(v.lastInteraction) < v.cfg.GraceWindow:
		return StateRecentlyInteracted
	}
	return StateIdle
}

type flushRequest struct {
	seq      uint64
	phase    constants.Phase
	value    int
	snapshot entity.PhaseProgress
	issuedAt time.Time
}

// issueLocked counts req in flight and stamps it with the next issue number.
func (v *View) issueLocked(req *flushRequest) {
	v.issued++
	req.seq = v.issued
	v.inFlight++
}

// supersededLocked reports whether a newer write was issued after req. A
// completed phase still has to be written since it carries the advance.
func (v *View) supersededLocked(req flushRequest) bool {
	return req.seq < v.issued && req.value != constants.ProgressMax
}

// UpdateProgress applies a slider edit locally and schedules its write.
// It returns the value actually applied after capping.
func (v *View) UpdateProgress(phase constants.Phase, raw int) (int, error) {
	if !phase.Valid() {
		return 0, common.NewValidationError("unknown phase " + string(phase))
	}

	v.submitMu.Lock()
	defer v.submitMu.Unlock()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, common.NewInvalidTransition("view for job %s is closed", v.jobID)
	}
	if v.job.Status != constants.JobStatusOnProcess {
		status := v.job.Status
		v.mu.Unlock()
		return 0, common.NewInvalidTransition("job %s is %s; progress can only change while OnProcess", v.jobID, status)
	}
	now := v.sched.Now()
	v.lastInteraction = now

	cur, _ := v.job.Phase()
	value := raw
	if value < constants.ProgressMin {
		value = constants.ProgressMin
	}
	if value > constants.ProgressMax {
		value = constants.ProgressMax
	}
	switch {
	case phase.Index() > cur.Index() && value > v.cfg.PhaseCap:
		// a later phase can be prepared but not finished ahead of the current one
		value = v.cfg.PhaseCap
	case phase.Index() < cur.Index():
		value = constants.ProgressMax
	}
	v.local.Set(phase, value)

	v.cancelPendingLocked()
	req := flushRequest{phase: phase, value: value, snapshot: v.local, issuedAt: now}
	immediate := value == constants.ProgressMax
	if immediate {
		v.issueLocked(&req)
	} else {
		seq := v.pendingSeq
		v.pendingReq = &req
		v.pending = v.sched.AfterFunc(v.cfg.Debounce, func() { v.fire(seq) })
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.notifyChange(snap)
	if immediate {
		v.dispatch(req)
	}
	return value, nil
}

// CancelPending drops an armed debounced write. It reports whether one was armed.
func (v *View) CancelPending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancelPendingLocked()
}

func (v *View) cancelPendingLocked() bool {
	v.pendingSeq++
	v.pendingReq = nil
	if v.pending == nil {
		return false
	}
	v.pending.Stop()
	v.pending = nil
	return true
}

// takePendingLocked disarms the debounce timer and issues the write it held.
func (v *View) takePendingLocked() (flushRequest, bool) {
	if v.pendingReq == nil {
		return flushRequest{}, false
	}
	req := *v.pendingReq
	v.cancelPendingLocked()
	v.issueLocked(&req)
	return req, true
}

// fire runs when a debounce timer expires. Superseded timers are ignored.
func (v *View) fire(seq uint64) {
	v.submitMu.Lock()
	defer v.submitMu.Unlock()
	v.mu.Lock()
	if v.closed || seq != v.pendingSeq {
		v.mu.Unlock()
		return
	}
	req, ok := v.takePendingLocked()
	v.mu.Unlock()

	if ok {
		v.dispatch(req)
	}
}

// FlushNow issues the debounced write at once instead of waiting for the
// timer. It reports whether a write was pending.
func (v *View) FlushNow() bool {
	v.submitMu.Lock()
	defer v.submitMu.Unlock()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	req, ok := v.takePendingLocked()
	v.mu.Unlock()

	if ok {
		v.dispatch(req)
	}
	return ok
}

// dispatch hands req to the runner. The caller has already issued it.
func (v *View) dispatch(req flushRequest) {
	jobID, actor := v.jobID, v.actor
	task := async.Task{
		Key:  jobID.String(),
		Name: "progress_flush",
		Run: func(ctx context.Context) (err error) {
			v.mu.Lock()
			skip := v.supersededLocked(req)
			v.mu.Unlock()
			if skip {
				v.logger.Debug("dropped superseded progress write", "phase", req.phase, "value", req.value)
				v.release()
				return nil
			}

			var res lifecycle.ProgressResult
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("progress flush panicked: %v", r)
				}
				v.complete(req, res, err)
			}()
			res, err = v.flusher.SaveProgress(ctx, jobID, req.snapshot, req.phase, req.value == constants.ProgressMax, actor)
			return err
		},
	}
	if err := v.runner.Submit(context.Background(), task); err != nil {
		v.complete(req, lifecycle.ProgressResult{}, err)
	}
}

// release ends a write that was dropped without reaching the store.
func (v *View) release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.doneLocked()
}

func (v *View) doneLocked() {
	v.inFlight--
	if v.deferred != nil && !v.closed && v.inFlight == 0 {
		v.armRecheckLocked()
	}
}

func (v *View) complete(req flushRequest, res lifecycle.ProgressResult, err error) {
	v.mu.Lock()
	v.doneLocked()
	if err != nil {
		v.lastErr = err
		closed := v.closed
		v.mu.Unlock()
		v.logger.Warn("progress flush failed; keeping local state", "phase", req.phase, "value", req.value, "error", err)
		if !closed && v.hooks.OnError != nil {
			v.hooks.OnError(err)
		}
		return
	}
	v.lastErr = nil
	v.job = res.Job.Clone()
	// adopt the stored progress only if nothing was edited after this write was issued
	if !v.lastInteraction.After(req.issuedAt) {
		v.local = res.Job.PhaseProgress
	}
	closed := v.closed
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if closed {
		v.logger.Info("progress flush completed after view closed", "phase", req.phase, "moved", res.Moved)
		return
	}
	v.notifyChange(snap)
	if res.Moved && v.hooks.OnAdvance != nil {
		v.hooks.OnAdvance(AdvanceEvent{
			JobID:     v.jobID,
			Phase:     req.phase,
			From:      res.From,
			To:        res.To,
			Job:       res.Job.Clone(),
			CloseView: res.To.Status == constants.JobStatusWaiting || res.To.Status == constants.JobStatusComplete,
		})
	}
}

// Reconcile offers a server snapshot to the view. It reports whether the
// snapshot was applied. Snapshots arriving while a local edit is pending,
// in flight or inside the grace window are held and retried once the view
// settles.
func (v *View) Reconcile(job *entity.Job) bool {
	if job == nil || job.ID != v.jobID {
		return false
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	switch state := v.stateLocked(); state {
	case StateFlushing, StatePendingFlush:
		v.deferred = job.Clone()
		v.mu.Unlock()
		v.logger.Debug("held server snapshot", "state", state.String(), "version", job.Version)
		return false
	case StateRecentlyInteracted:
		v.deferred = job.Clone()
		v.armRecheckLocked()
		v.mu.Unlock()
		v.logger.Debug("held server snapshot", "state", state.String(), "version", job.Version)
		return false
	}
	v.deferred = nil
	if job.Version < v.job.Version {
		v.mu.Unlock()
		return false
	}
	changed := v.applyLocked(job)
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if changed {
		v.notifyChange(snap)
	}
	return true
}

// applyLocked adopts job wholesale and reports whether anything visible changed.
func (v *View) applyLocked(job *entity.Job) bool {
	changed := job.Status != v.job.Status || !samePhase(job, v.job)
	v.job = job.Clone()
	if v.local != job.PhaseProgress {
		v.local = job.PhaseProgress
		changed = true
	}
	return changed
}

func samePhase(a, b *entity.Job) bool {
	pa, oka := a.Phase()
	pb, okb := b.Phase()
	return oka == okb && pa == pb
}

func (v *View) armRecheckLocked() {
	if v.recheck != nil {
		v.recheck.Stop()
	}
	wait := v.cfg.GraceWindow - v.sched.Now().Sub(v.lastInteraction)
	if wait < 0 {
		wait = 0
	}
	v.recheck = v.sched.AfterFunc(wait, v.retryDeferred)
}

// retryDeferred re-offers the last held snapshot.
func (v *View) retryDeferred() {
	v.mu.Lock()
	v.recheck = nil
	job := v.deferred
	v.mu.Unlock()
	if job != nil {
		v.Reconcile(job)
	}
}

// Close cancels any pending debounced write. A write already in flight is
// left to finish.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.cancelPendingLocked()
	if v.recheck != nil {
		v.recheck.Stop()
		v.recheck = nil
	}
	v.deferred = nil
}

func (v *View) notifyChange(s Snapshot) {
	if v.hooks.OnChange != nil {
		v.hooks.OnChange(s)
	}
}
