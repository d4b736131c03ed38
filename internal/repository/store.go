package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
)

// UpdateFunc mutates a private copy of the current document inside a
// transaction. Returning an error aborts the write.
type UpdateFunc func(job *entity.Job) error

// JobStore is the persistence collaborator behind the lifecycle engine.
type JobStore interface {
	// Get returns the document, including soft-deleted ones.
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	// Insert persists a new document at version 1.
	Insert(ctx context.Context, job *entity.Job) (*entity.Job, error)
	// Update is an atomic read-modify-write. expectVersion > 0 rejects the
	// write with ErrConflict unless it matches the stored version.
	// Soft-deleted documents report ErrNotFound.
	Update(ctx context.Context, id uuid.UUID, expectVersion int64, fn UpdateFunc) (*entity.Job, error)
	// AppendAudit adds an entry to the job's audit trail and stamps its timestamp.
	AppendAudit(ctx context.Context, jobID uuid.UUID, entry *entity.AuditLog) error
	// ListAudit returns the trail ordered by timestamp.
	ListAudit(ctx context.Context, jobID uuid.UUID) ([]*entity.AuditLog, error)
	List(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error)
	// Subscribe pushes the full matching result set now and after every change.
	// The channel closes when ctx is done.
	Subscribe(ctx context.Context, filter entity.JobFilter) (<-chan []*entity.Job, error)
	Close() error
}

// Clock returns the store's notion of "server time".
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// applyUpdate runs fn against a copy of cur and returns the next revision.
func applyUpdate(cur *entity.Job, expectVersion int64, fn UpdateFunc, now time.Time) (*entity.Job, error) {
	if cur.IsDeleted {
		return nil, common.NewNotFound("job %s was deleted", cur.ID)
	}
	if expectVersion > 0 && cur.Version != expectVersion {
		return nil, common.NewConflict("job %s is at version %d, caller read %d", cur.ID, cur.Version, expectVersion)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if err := checkDocument(next); err != nil {
		return nil, err
	}
	return next, nil
}

// checkDocument rejects writes that would break the status/phase invariants.
func checkDocument(j *entity.Job) error {
	phase, hasPhase := j.Phase()
	onProcess := j.Status == constants.JobStatusOnProcess
	switch {
	case !constants.IsValidStatus(string(j.Status)):
		return common.NewAppError(common.CodeValidation, "unknown status "+string(j.Status), common.ErrInternal)
	case onProcess && !hasPhase:
		return common.NewAppError(common.CodeValidation, "OnProcess job without a current phase", common.ErrInternal)
	case !onProcess && hasPhase:
		return common.NewAppError(common.CodeValidation, string(j.Status)+" job with current phase "+string(phase), common.ErrInternal)
	case hasPhase && !phase.Valid():
		return common.NewAppError(common.CodeValidation, "unknown phase "+string(phase), common.ErrInternal)
	case !j.PhaseProgress.Valid():
		return common.NewAppError(common.CodeValidation, "phase progress out of range", common.ErrInternal)
	}
	return nil
}

// watch turns change notifications into re-reads of list, latest result wins.
func watch(ctx context.Context, bus feed.Bus, filter entity.JobFilter, list func(context.Context, entity.JobFilter) ([]*entity.Job, error), logger *slog.Logger) (<-chan []*entity.Job, error) {
	out := make(chan []*entity.Job, 1)
	dirty := make(chan struct{}, 1)
	dirty <- struct{}{}

	cancel, err := bus.Subscribe(func(feed.Change) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-dirty:
			}
			jobs, err := list(ctx, filter)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("subscription refresh failed", "error", err)
				continue
			}
			// replace an unread snapshot rather than queue behind it
			select {
			case <-out:
			default:
			}
			select {
			case out <- jobs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func publishChange(ctx context.Context, bus feed.Bus, job *entity.Job, logger *slog.Logger) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, feed.Change{JobID: job.ID, Version: job.Version, Deleted: job.IsDeleted}); err != nil {
		logger.Warn("failed to publish job change", "job_id", job.ID, "version", job.Version, "error", err)
	}
}
