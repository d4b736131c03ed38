package lifecycle

import (
	"strings"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

// DefaultPhaseCap bounds progress on phases that are not yet current.
const DefaultPhaseCap = 90

// NextState returns the single forward edge available from j.
// It does not check preconditions; see checkForward.
func NextState(j *entity.Job) (entity.WorkflowState, error) {
	switch j.Status {
	case constants.JobStatusAllocated:
		p := constants.FirstPhase
		return entity.WorkflowState{Status: constants.JobStatusOnProcess, Phase: &p}, nil
	case constants.JobStatusOnProcess:
		cur, ok := j.Phase()
		if !ok {
			return entity.WorkflowState{}, common.NewInvalidTransition("job %s is OnProcess without a phase", j.ID)
		}
		if next, ok := cur.Next(); ok {
			return entity.WorkflowState{Status: constants.JobStatusOnProcess, Phase: &next}, nil
		}
		return entity.WorkflowState{Status: constants.JobStatusWaiting}, nil
	case constants.JobStatusWaiting:
		return entity.WorkflowState{Status: constants.JobStatusComplete}, nil
	case constants.JobStatusComplete:
		return entity.WorkflowState{Status: constants.JobStatusReport}, nil
	case constants.JobStatusReport:
		return entity.WorkflowState{}, common.NewInvalidTransition("job %s is in Report; no further transitions", j.ID)
	}
	return entity.WorkflowState{}, common.NewInvalidTransition("job %s has unknown status %q", j.ID, j.Status)
}

func sameState(a, b entity.WorkflowState) bool {
	if a.Status != b.Status {
		return false
	}
	if (a.Phase == nil) != (b.Phase == nil) {
		return false
	}
	return a.Phase == nil || *a.Phase == *b.Phase
}

// checkForward validates that target is the allowed edge out of j and that
// its preconditions hold.
func checkForward(j *entity.Job, target entity.WorkflowState) error {
	next, err := NextState(j)
	if err != nil {
		return err
	}
	if !sameState(next, target) {
		return common.NewInvalidTransition("cannot move job %s from %s to %s", j.ID, j.State(), target)
	}
	switch j.Status {
	case constants.JobStatusOnProcess:
		cur, _ := j.Phase()
		if v := j.PhaseProgress.Get(cur); v != constants.ProgressMax {
			return common.NewPreconditionFailed("phase %s of job %s is at %d%%, not complete", cur, j.ID, v)
		}
	case constants.JobStatusWaiting:
		var missing []string
		if strings.TrimSpace(j.JobsheetNo) == "" {
			missing = append(missing, "jobsheetNo")
		}
		if strings.TrimSpace(j.ReferenceNo) == "" {
			missing = append(missing, "referenceNo")
		}
		if len(missing) > 0 {
			return common.NewPreconditionFailed("job %s cannot complete without %s", j.ID, strings.Join(missing, " and "))
		}
	}
	return nil
}

// moveTo places j at target, clearing the phase when target has none.
func moveTo(j *entity.Job, target entity.WorkflowState) {
	j.Status = target.Status
	if target.Phase != nil {
		j.SetPhase(*target.Phase)
	} else {
		j.ClearPhase()
	}
}

// reverseOne undoes one workflow step on j in place.
func reverseOne(j *entity.Job) error {
	switch j.Status {
	case constants.JobStatusOnProcess:
		cur, ok := j.Phase()
		if !ok {
			return common.NewInvalidTransition("job %s is OnProcess without a phase", j.ID)
		}
		prev, ok := cur.Prev()
		if !ok {
			j.Status = constants.JobStatusAllocated
			j.ClearPhase()
			j.PhaseProgress = entity.PhaseProgress{}
			return nil
		}
		j.SetPhase(prev)
		resetFrom(&j.PhaseProgress, prev)
		return nil
	case constants.JobStatusWaiting:
		j.Status = constants.JobStatusOnProcess
		j.SetPhase(constants.LastPhase)
		resetFrom(&j.PhaseProgress, constants.LastPhase)
		j.JobsheetNo = ""
		j.ReferenceNo = ""
		return nil
	case constants.JobStatusComplete, constants.JobStatusReport:
		j.Status = constants.JobStatusWaiting
		j.ClearPhase()
		return nil
	case constants.JobStatusAllocated:
		return common.NewInvalidTransition("job %s is Allocated; nothing to reverse", j.ID)
	}
	return common.NewInvalidTransition("job %s has unknown status %q", j.ID, j.Status)
}

// resetFrom sets every phase before p to 100 and p and later phases to 0.
func resetFrom(pp *entity.PhaseProgress, p constants.Phase) {
	idx := p.Index()
	for i, ph := range constants.Phases() {
		if i < idx {
			pp.Set(ph, constants.ProgressMax)
		} else {
			pp.Set(ph, constants.ProgressMin)
		}
	}
}

// NormalizeProgress clamps every column to [0,100], pins phases before
// current at 100 and caps phases after current at phaseCap.
func NormalizeProgress(pp entity.PhaseProgress, current constants.Phase, phaseCap int) entity.PhaseProgress {
	idx := current.Index()
	out := pp
	for i, ph := range constants.Phases() {
		v := clamp(pp.Get(ph), constants.ProgressMin, constants.ProgressMax)
		switch {
		case i < idx:
			v = constants.ProgressMax
		case i > idx && v > phaseCap:
			v = phaseCap
		}
		out.Set(ph, v)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
