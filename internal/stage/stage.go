// Package stage holds the fixed hazard lifecycle: eleven ordered stages
// grouped into five display phases.
package stage

import (
	"strings"

	"hazardline/internal/errclass"
)

type Stage string

const (
	Submitted                Stage = "Submitted"
	SmInitialReview          Stage = "SmInitialReview"
	AssignedCorrectiveAction Stage = "AssignedCorrectiveAction"
	SmCaReview               Stage = "SmCaReview"
	LineManagerApproval      Stage = "LineManagerApproval"
	ExecApproval             Stage = "ExecApproval"
	ImplementationAssignment Stage = "ImplementationAssignment"
	ImplementationInProgress Stage = "ImplementationInProgress"
	Published                Stage = "Published"
	EffectivenessReview      Stage = "EffectivenessReview"
	Closed                   Stage = "Closed"
)

type Phase string

const (
	Investigation Phase = "Investigation"
	ActionPlan    Phase = "Action Plan"
	Collection    Phase = "Collection"
	Approvals     Phase = "Approvals"
	Resolution    Phase = "Resolution"
)

// Status classifies a phase relative to the current stage.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCurrent   Status = "current"
	StatusFuture    Status = "future"
)

var order = []Stage{
	Submitted,
	SmInitialReview,
	AssignedCorrectiveAction,
	SmCaReview,
	LineManagerApproval,
	ExecApproval,
	ImplementationAssignment,
	ImplementationInProgress,
	Published,
	EffectivenessReview,
	Closed,
}

var phaseOrder = []Phase{Investigation, ActionPlan, Collection, Approvals, Resolution}

var phaseOfStage = map[Stage]Phase{
	Submitted:                Investigation,
	SmInitialReview:          Investigation,
	AssignedCorrectiveAction: ActionPlan,
	SmCaReview:               Collection,
	LineManagerApproval:      Approvals,
	ExecApproval:             Approvals,
	ImplementationAssignment: Resolution,
	ImplementationInProgress: Resolution,
	Published:                Resolution,
	EffectivenessReview:      Resolution,
	Closed:                   Resolution,
}

var labels = map[Stage]string{
	Submitted:                "Submitted",
	SmInitialReview:          "Safety Manager Initial Review",
	AssignedCorrectiveAction: "Assigned for Corrective Action",
	SmCaReview:               "SM Review of Corrective Action",
	LineManagerApproval:      "Line Manager Approval",
	ExecApproval:             "Accountable Executive Approval",
	ImplementationAssignment: "Implementation Assignment",
	ImplementationInProgress: "Implementation in Progress",
	Published:                "Published",
	EffectivenessReview:      "Review for Effectiveness",
	Closed:                   "Closed",
}

// All returns the stages in lifecycle order.
func All() []Stage {
	out := make([]Stage, len(order))
	copy(out, order)
	return out
}

// Phases returns the display phases in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

func (s Stage) Valid() bool {
	_, ok := phaseOfStage[s]
	return ok
}

// Label is the human-readable stage name.
func (s Stage) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Parse accepts a stage identifier or its label, case-insensitively.
func Parse(in string) (Stage, error) {
	in = strings.TrimSpace(in)
	for _, s := range order {
		if strings.EqualFold(in, string(s)) || strings.EqualFold(in, labels[s]) {
			return s, nil
		}
	}
	return "", errclass.ErrValidation.WithMessagef("unknown stage %q", in)
}

// Index is the position of s in the lifecycle, or -1.
func Index(s Stage) int {
	for i, st := range order {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the single legal forward stage.
func Next(s Stage) (Stage, bool) {
	i := Index(s)
	if i < 0 || i == len(order)-1 {
		return "", false
	}
	return order[i+1], true
}

// Before reports whether a precedes b in the lifecycle.
func Before(a, b Stage) bool {
	return Index(a) < Index(b)
}

// Between reports whether s lies in the closed range [from, to].
func Between(s, from, to Stage) bool {
	i := Index(s)
	return i >= 0 && i >= Index(from) && i <= Index(to)
}

func PhaseOf(s Stage) Phase {
	return phaseOfStage[s]
}

func StagesOf(p Phase) []Stage {
	var out []Stage
	for _, s := range order {
		if phaseOfStage[s] == p {
			out = append(out, s)
		}
	}
	return out
}

// PhaseIndex is the position of p in the five-phase sequence, or -1.
func PhaseIndex(p Phase) int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// PercentComplete is currentPhaseIndex / (phases - 1), scaled to 0..100.
func PercentComplete(s Stage) int {
	idx := PhaseIndex(PhaseOf(s))
	if idx < 0 {
		return 0
	}
	return idx * 100 / (len(phaseOrder) - 1)
}

// Classify places phase p relative to the phase of the current stage.
func Classify(p Phase, current Stage) Status {
	pi := PhaseIndex(p)
	ci := PhaseIndex(PhaseOf(current))
	switch {
	case pi < ci:
		return StatusCompleted
	case pi == ci:
		return StatusCurrent
	default:
		return StatusFuture
	}
}

type PhaseProgress struct {
	Phase  Phase   `json:"phase"`
	Status Status  `json:"status"`
	Stages []Stage `json:"stages"`
}

type Progress struct {
	Stage   Stage           `json:"stage"`
	Label   string          `json:"label"`
	Phase   Phase           `json:"phase"`
	Percent int             `json:"percent_complete"`
	Phases  []PhaseProgress `json:"phases"`
}

// ProgressOf builds the progress-bar view for a hazard at stage s.
func ProgressOf(s Stage) Progress {
	p := Progress{
		Stage:   s,
		Label:   s.Label(),
		Phase:   PhaseOf(s),
		Percent: PercentComplete(s),
	}
	for _, ph := range phaseOrder {
		p.Phases = append(p.Phases, PhaseProgress{
			Phase:  ph,
			Status: Classify(ph, s),
			Stages: StagesOf(ph),
		})
	}
	return p
}
