package domain

import "hazardline/internal/stage"

// Report severities as filed by the reporter.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

var Severities = []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

type Hazard struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	ImmediateActions      string   `json:"immediate_actions,omitempty"`
	PotentialConsequences string   `json:"potential_consequences,omitempty"`
	Location              string   `json:"location,omitempty"`
	Category              string   `json:"category,omitempty"`
	ReportedBy            string   `json:"reported_by"`
	ReportedDate          string   `json:"reported_date" format:"date"`
	Severity              string   `json:"severity" enum:"Critical,High,Medium,Low"`
	SubmitterLineManager  string   `json:"submitter_line_manager,omitempty"`
	IsAnonymous           bool     `json:"is_anonymous,omitempty"`
	RiskFactors           []string `json:"risk_factors,omitempty"`

	Stage                      stage.Stage                `json:"workflow_stage"`
	RiskAnalysis               *RiskAnalysis              `json:"risk_analysis,omitempty"`
	WhyAnalysis                Whys                       `json:"why_analysis"`
	InvestigationNotes         string                     `json:"investigation_notes,omitempty"`
	Pace                       *Assignments               `json:"pace_assignments,omitempty"`
	Attachments                []Attachment               `json:"attachments,omitempty"`
	CorrectiveActionComponents CorrectiveActionComponents `json:"corrective_action_components"`
	FinalCorrectiveAction      string                     `json:"final_corrective_action,omitempty"`
	Approvals                  Approvals                  `json:"approvals"`
	ImplementationNotes        string                     `json:"implementation_notes,omitempty"`
	PublicationContent         string                     `json:"publication_content,omitempty"`
	EffectivenessReviewNotes   string                     `json:"effectiveness_review_notes,omitempty"`
	History                    []HistoryEntry             `json:"workflow_history,omitempty"`

	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Whys holds the five sequential causal statements; "" means unanswered.
type Whys [5]string

type RiskAnalysis struct {
	Severity   int `json:"severity" minimum:"1" maximum:"5"`
	Likelihood int `json:"likelihood" minimum:"0" maximum:"4"`
}

type Attachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url,omitempty"`
	UploadedBy   string `json:"uploaded_by,omitempty"`
	UploadedDate string `json:"uploaded_date,omitempty" format:"date-time"`
}

type CorrectiveActionComponents struct {
	Communications bool `json:"communications"`
	Training       bool `json:"training"`
	Policy         bool `json:"policy"`
	Equipment      bool `json:"equipment"`
}

type Decision struct {
	Approved bool   `json:"approved"`
	By       string `json:"approved_by,omitempty"`
	Date     string `json:"approved_date,omitempty" format:"date-time"`
	Comments string `json:"comments,omitempty"`
}

type Approvals struct {
	LineManager        *Decision `json:"line_manager,omitempty"`
	Executive          *Decision `json:"executive,omitempty"`
	FinalSafetyClosure *Decision `json:"final_safety_closure,omitempty"`
}

type HistoryEntry struct {
	Stage     stage.Stage `json:"stage"`
	Timestamp string      `json:"timestamp" format:"date-time"`
	Actor     string      `json:"actor"`
	Action    string      `json:"action"`
}

// PACE role slots.

type AssigneeType string

const (
	AssigneeUser   AssigneeType = "user"
	AssigneeCustom AssigneeType = "custom"
)

type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotSubmitted SlotStatus = "submitted"
	SlotApproved  SlotStatus = "approved"
	SlotRejected  SlotStatus = "rejected"
	SlotCompleted SlotStatus = "completed"
)

type RoleSlot struct {
	ID                 string       `json:"id,omitempty"`
	AssigneeType       AssigneeType `json:"assignee_type,omitempty" enum:"user,custom"`
	AssigneeRef        string       `json:"assignee_ref,omitempty"`
	CustomName         string       `json:"custom_name,omitempty"`
	CustomEmail        string       `json:"custom_email,omitempty"`
	CustomInstructions string       `json:"custom_instructions,omitempty"`
	Status             SlotStatus   `json:"status,omitempty" enum:"pending,submitted,approved,rejected,completed"`
	Response           string       `json:"response,omitempty"`
	ResponseDate       string       `json:"response_date,omitempty" format:"date-time"`
}

// Assigned reports whether anyone holds the slot.
func (s RoleSlot) Assigned() bool {
	return s.AssigneeRef != "" || s.CustomName != "" || s.CustomEmail != ""
}

// DisplayName is the best human label for the assignee.
func (s RoleSlot) DisplayName() string {
	switch {
	case s.AssigneeType == AssigneeCustom && s.CustomName != "":
		return s.CustomName
	case s.AssigneeRef != "":
		return s.AssigneeRef
	case s.CustomName != "":
		return s.CustomName
	default:
		return s.CustomEmail
	}
}

type Assignments struct {
	ProcessOwner RoleSlot   `json:"process_owner"`
	Approver     RoleSlot   `json:"approver"`
	Contributors []RoleSlot `json:"contributors"`
	Executers    []RoleSlot `json:"executers"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
