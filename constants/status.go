package constants

// JobStatus is the canonical workflow status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusAllocated JobStatus = "Allocated" // created, not started
	JobStatusOnProcess JobStatus = "OnProcess" // moving through the packing phases
	JobStatusWaiting   JobStatus = "Waiting"   // all phases done, waiting for jobsheet/reference
	JobStatusComplete  JobStatus = "Complete"
	JobStatusReport    JobStatus = "Report" // terminal
)

var allStatuses = []JobStatus{
	JobStatusAllocated,
	JobStatusOnProcess,
	JobStatusWaiting,
	JobStatusComplete,
	JobStatusReport,
}

// Statuses returns the workflow statuses in board order.
func Statuses() []JobStatus {
	out := make([]JobStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// StatusStrings returns the workflow statuses as plain strings.
func StatusStrings() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}

// IsValidStatus reports whether s is one of the stored status values.
func IsValidStatus(s string) bool {
	for _, st := range allStatuses {
		if string(st) == s {
			return true
		}
	}
	return false
}
