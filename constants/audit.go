package constants

// AuditAction classifies an entry in a job's audit trail.
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionMove    AuditAction = "move"
	AuditActionDelete  AuditAction = "delete"
	AuditActionComment AuditAction = "comment"
)

// Priority of a packing job.
type Priority string

const (
	PriorityStandard Priority = "Standard"
	PriorityHigh     Priority = "High"
)

// PriorityStrings returns the allowed priority values.
func PriorityStrings() []string {
	return []string{string(PriorityStandard), string(PriorityHigh)}
}

// Progress bounds for a single phase column.
const (
	ProgressMin = 0
	ProgressMax = 100
)

// AllowedAttachmentExtensions holds the file extensions accepted for jobsheet attachments.
var AllowedAttachmentExtensions = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}
