package constants

// Phase is a packing phase a job passes through while OnProcess.
type Phase string

const (
	PhasePicking     Phase = "Picking"
	PhasePacking     Phase = "Packing"
	PhaseProcessData Phase = "ProcessData"
	PhaseStorage     Phase = "Storage"
)

// phaseOrder is the only order in which phases may become current.
var phaseOrder = []Phase{
	PhasePicking,
	PhasePacking,
	PhaseProcessData,
	PhaseStorage,
}

// Phases returns the phases in workflow order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of p in the phase order, or -1 for unknown phases.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// Next returns the phase after p. ok is false for Storage and unknown phases.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(phaseOrder) {
		return "", false
	}
	return phaseOrder[i+1], true
}

// Prev returns the phase before p. ok is false for Picking and unknown phases.
func (p Phase) Prev() (Phase, bool) {
	i := p.Index()
	if i <= 0 {
		return "", false
	}
	return phaseOrder[i-1], true
}

// PhaseAt returns the phase at index i.
func PhaseAt(i int) (Phase, bool) {
	if i < 0 || i >= len(phaseOrder) {
		return "", false
	}
	return phaseOrder[i], true
}

// FirstPhase and LastPhase bound the OnProcess segment of the workflow.
const (
	FirstPhase = PhasePicking
	LastPhase  = PhaseStorage
)
