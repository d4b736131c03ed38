package server

import (
	"encoding/json"

	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

// Operations served on "<prefix>.<op>".
const (
	OpCreate   = "create"
	OpAdvance  = "advance"
	OpReverse  = "reverse"
	OpDelete   = "delete"
	OpUpdate   = "update"
	OpProgress = "progress"
	OpComment  = "comment"
	OpGet      = "get"
	OpList     = "list"
	OpAudit    = "audit"
	OpExport   = "export"
)

// Ops lists every operation the command service subscribes to.
func Ops() []string {
	return []string{OpCreate, OpAdvance, OpReverse, OpDelete, OpUpdate, OpProgress, OpComment, OpGet, OpList, OpAudit, OpExport}
}

// HeaderRequestID carries the caller's correlation id.
const HeaderRequestID = "Request-Id"

// Reply is the envelope returned for every operation.
type Reply struct {
	OK      bool               `json:"ok"`
	Code    string             `json:"code,omitempty"`
	Status  string             `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
	Job     *entity.Job        `json:"job,omitempty"`
	Jobs    []*entity.Job      `json:"jobs,omitempty"`
	Entries []*entity.AuditLog `json:"entries,omitempty"`
	Moved   bool               `json:"moved,omitempty"`
	XLSX    []byte             `json:"xlsx,omitempty"`
}

// CreateCommand carries a job document validated against the job schema.
type CreateCommand struct {
	Actor string          `json:"actor"`
	Job   json.RawMessage `json:"job"`
}

// AdvanceCommand moves a job forward. With Next set the single forward edge
// is taken and Status/Phase are ignored.
type AdvanceCommand struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status,omitempty"`
	Phase         string `json:"phase,omitempty"`
	Next          bool   `json:"next,omitempty"`
	ExpectVersion int64  `json:"expectVersion,omitempty"`
	Actor         string `json:"actor"`
}

// ReverseCommand undoes one step. Version is the version the caller saw;
// zero reverses whatever is stored.
type ReverseCommand struct {
	JobID   string `json:"jobId"`
	Version int64  `json:"version,omitempty"`
	Actor   string `json:"actor"`
}

type DeleteCommand struct {
	JobID         string `json:"jobId"`
	ExpectVersion int64  `json:"expectVersion,omitempty"`
	Actor         string `json:"actor"`
}

type UpdateCommand struct {
	JobID         string          `json:"jobId"`
	Patch         entity.JobPatch `json:"patch"`
	ExpectVersion int64           `json:"expectVersion,omitempty"`
	Actor         string          `json:"actor"`
}

type ProgressCommand struct {
	JobID    string               `json:"jobId"`
	Phase    string               `json:"phase"`
	Progress entity.PhaseProgress `json:"progress"`
	Advance  bool                 `json:"advance,omitempty"`
	Actor    string               `json:"actor"`
}

type CommentCommand struct {
	JobID string `json:"jobId"`
	Text  string `json:"text"`
	Actor string `json:"actor"`
}

// JobQuery addresses a single job (get, audit).
type JobQuery struct {
	JobID string `json:"jobId"`
}

type ListQuery struct {
	IncludeDeleted bool     `json:"includeDeleted,omitempty"`
	Statuses       []string `json:"statuses,omitempty"`
	Customer       string   `json:"customer,omitempty"`
}

// ExportQuery selects a workbook: kind "jobs" (active board) or "audit" (JobID required).
type ExportQuery struct {
	Kind  string `json:"kind"`
	JobID string `json:"jobId,omitempty"`
}
