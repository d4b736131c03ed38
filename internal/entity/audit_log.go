package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
)

// AuditLog is one immutable entry in a job's audit trail.
type AuditLog struct {
	ID          uuid.UUID             `json:"id"`
	JobID       uuid.UUID             `json:"jobId"`
	Seq         int64                 `json:"seq"`
	Action      constants.AuditAction `json:"action"`
	OldValue    json.RawMessage       `json:"oldValue,omitempty"`
	NewValue    json.RawMessage       `json:"newValue,omitempty"`
	PerformedBy string                `json:"performedBy"`
	Timestamp   time.Time             `json:"timestamp"`
	Details     string                `json:"details,omitempty"`
}
