package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
	"github.com/joseph-ayodele/packing-tracker/internal/repository"
)

// AuditLogger appends entries to a job's audit trail. Appends are best
// effort: failures are logged and never reported to the caller.
type AuditLogger struct {
	store  repository.JobStore
	logger *slog.Logger
}

func NewAuditLogger(store repository.JobStore, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{store: store, logger: logger}
}

// Record appends one entry. It must be called after the state write it
// describes has committed.
func (a *AuditLogger) Record(ctx context.Context, jobID uuid.UUID, action constants.AuditAction, oldValue, newValue any, actor, details string) {
	entry := &entity.AuditLog{
		Action:      action,
		OldValue:    a.snapshot(jobID, oldValue),
		NewValue:    a.snapshot(jobID, newValue),
		PerformedBy: actor,
		Details:     details,
	}
	// the state write already happened; a cancelled request must not lose its entry
	ctx = context.WithoutCancel(ctx)
	if err := a.store.AppendAudit(ctx, jobID, entry); err != nil {
		a.logger.Error("failed to append audit log", "job_id", jobID, "action", action, "actor", actor, "error", err)
		return
	}
	a.logger.Debug("audit log appended", "job_id", jobID, "action", action, "actor", actor)
}

func (a *AuditLogger) snapshot(jobID uuid.UUID, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		a.logger.Warn("failed to encode audit snapshot", "job_id", jobID, "error", err)
		return nil
	}
	return b
}
