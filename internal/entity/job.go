package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packing-tracker/constants"
)

// PhaseProgress holds the completion percentage (0..100) of each packing phase.
type PhaseProgress struct {
	Picking     int `json:"picking"`
	Packing     int `json:"packing"`
	ProcessData int `json:"processData"`
	Storage     int `json:"storage"`
}

// Get returns the progress recorded for phase p. Unknown phases report 0.
func (p PhaseProgress) Get(ph constants.Phase) int {
	switch ph {
	case constants.PhasePicking:
		return p.Picking
	case constants.PhasePacking:
		return p.Packing
	case constants.PhaseProcessData:
		return p.ProcessData
	case constants.PhaseStorage:
		return p.Storage
	}
	return 0
}

// Set stores v for phase p. Unknown phases are ignored.
func (p *PhaseProgress) Set(ph constants.Phase, v int) {
	switch ph {
	case constants.PhasePicking:
		p.Picking = v
	case constants.PhasePacking:
		p.Packing = v
	case constants.PhaseProcessData:
		p.ProcessData = v
	case constants.PhaseStorage:
		p.Storage = v
	}
}

// Valid reports whether every column lies in [0,100].
func (p PhaseProgress) Valid() bool {
	for _, ph := range constants.Phases() {
		v := p.Get(ph)
		if v < constants.ProgressMin || v > constants.ProgressMax {
			return false
		}
	}
	return true
}

// Job is a packing job moving through the workflow board.
type Job struct {
	ID      uuid.UUID `json:"id"`
	Version int64     `json:"version"`

	Customer string             `json:"customer"`
	Product  string             `json:"product"`
	Priority constants.Priority `json:"priority"`
	SIQty    int                `json:"siQty"`
	JobQty   int                `json:"jobQty"`
	Remark   string             `json:"remark,omitempty"`

	Status        constants.JobStatus `json:"status"`
	CurrentPhase  *constants.Phase    `json:"currentPhase,omitempty"` // present iff Status == OnProcess
	PhaseProgress PhaseProgress       `json:"phaseProgress"`

	StartDate time.Time `json:"startDate"`
	DueDate   time.Time `json:"dueDate"`

	JobsheetNo  string `json:"jobsheetNo,omitempty"`
	ReferenceNo string `json:"referenceNo,omitempty"`

	IsDeleted bool      `json:"isDeleted"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Phase returns the current phase and whether one is set.
func (j *Job) Phase() (constants.Phase, bool) {
	if j == nil || j.CurrentPhase == nil {
		return "", false
	}
	return *j.CurrentPhase, true
}

// SetPhase makes p the current phase.
func (j *Job) SetPhase(p constants.Phase) {
	j.CurrentPhase = &p
}

// ClearPhase removes the current phase.
func (j *Job) ClearPhase() {
	j.CurrentPhase = nil
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.CurrentPhase != nil {
		p := *j.CurrentPhase
		cp.CurrentPhase = &p
	}
	return &cp
}

// WorkflowState is the {status, phase} pair recorded by move audit entries.
type WorkflowState struct {
	Status constants.JobStatus `json:"status"`
	Phase  *constants.Phase    `json:"phase,omitempty"`
}

// State returns the workflow position of j.
func (j *Job) State() WorkflowState {
	s := WorkflowState{Status: j.Status}
	if p, ok := j.Phase(); ok {
		s.Phase = &p
	}
	return s
}

// String renders the state as "Status" or "Status (Phase)".
func (s WorkflowState) String() string {
	if s.Phase == nil {
		return string(s.Status)
	}
	return string(s.Status) + " (" + string(*s.Phase) + ")"
}

// JobPatch is a partial edit of the descriptive fields of a job.
// Nil fields are left untouched.
type JobPatch struct {
	Customer    *string             `json:"customer,omitempty"`
	Product     *string             `json:"product,omitempty"`
	Priority    *constants.Priority `json:"priority,omitempty"`
	SIQty       *int                `json:"siQty,omitempty"`
	JobQty      *int                `json:"jobQty,omitempty"`
	Remark      *string             `json:"remark,omitempty"`
	StartDate   *time.Time          `json:"startDate,omitempty"`
	DueDate     *time.Time          `json:"dueDate,omitempty"`
	JobsheetNo  *string             `json:"jobsheetNo,omitempty"`
	ReferenceNo *string             `json:"referenceNo,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p JobPatch) Empty() bool {
	return p.Customer == nil && p.Product == nil && p.Priority == nil &&
		p.SIQty == nil && p.JobQty == nil && p.Remark == nil &&
		p.StartDate == nil && p.DueDate == nil &&
		p.JobsheetNo == nil && p.ReferenceNo == nil
}

// JobFilter selects jobs for listings and subscriptions.
type JobFilter struct {
	IncludeDeleted bool
	Statuses       []constants.JobStatus
	Customer       string
}

// ActiveJobs is the filter used by board views.
func ActiveJobs() JobFilter { return JobFilter{} }

// Match reports whether j passes the filter.
func (f JobFilter) Match(j *Job) bool {
	if j == nil {
		return false
	}
	if j.IsDeleted && !f.IncludeDeleted {
		return false
	}
	if f.Customer != "" && j.Customer != f.Customer {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if j.Status == s {
			return true
		}
	}
	return false
}
