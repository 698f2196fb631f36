// Package report assembles the corrective-action report preview from a
// hazard. Everything here is a pure read.
package report

import (
	"fmt"
	"strings"

	"hazardline/internal/domain"
	"hazardline/internal/risk"
	"hazardline/internal/stage"
)

const DefaultPendingPlaceholder = "Pending response"

type Options struct {
	// PendingPlaceholder stands in for a response not yet received.
	PendingPlaceholder string
}

// Feedback is one line of the team feedback block.
type Feedback struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Response string `json:"response"`
	Pending  bool   `json:"pending"`
}

type Draft struct {
	HazardID           string              `json:"hazard_id"`
	Stage              stage.Stage         `json:"stage"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	ImmediateActions   string              `json:"immediate_actions,omitempty"`
	Risk               *risk.Summary       `json:"risk,omitempty"`
	RootCauses         []risk.RootCause    `json:"root_causes"`
	InvestigationNotes string              `json:"investigation_notes,omitempty"`
	Attachments        []domain.Attachment `json:"attachments"`
	Feedback           []Feedback          `json:"feedback"`
	Plan               string              `json:"plan"`
}

// Section is a titled block of the rendered report.
type Section struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// BuildPreview reflects h exactly as given; nothing is cached.
func BuildPreview(h domain.Hazard, opts Options) Draft {
	placeholder := opts.PendingPlaceholder
	if placeholder == "" {
		placeholder = DefaultPendingPlaceholder
	}
	d := Draft{
		HazardID:           h.ID,
		Stage:              h.Stage,
		Title:              h.Title,
		Description:        h.Description,
		ImmediateActions:   h.ImmediateActions,
		RootCauses:         risk.Answered(h.WhyAnalysis),
		InvestigationNotes: h.InvestigationNotes,
		Attachments:        append([]domain.Attachment{}, h.Attachments...),
		Plan:               h.FinalCorrectiveAction,
	}
	if d.RootCauses == nil {
		d.RootCauses = []risk.RootCause{}
	}
	if h.RiskAnalysis != nil {
		s := risk.Summarize(*h.RiskAnalysis)
		d.Risk = &s
	}

	var owner domain.RoleSlot
	var contributors []domain.RoleSlot
	if h.Pace != nil {
		owner = h.Pace.ProcessOwner
		contributors = h.Pace.Contributors
	}
	d.Feedback = append(d.Feedback, feedbackFor("Process Owner", owner, placeholder))
	for _, c := range contributors {
		d.Feedback = append(d.Feedback, feedbackFor("Contributor", c, placeholder))
	}
	return d
}

func feedbackFor(role string, s domain.RoleSlot, placeholder string) Feedback {
	f := Feedback{Role: role, Name: s.DisplayName(), Response: s.Response}
	if strings.TrimSpace(s.Response) == "" {
		f.Response = placeholder
		f.Pending = true
	}
	return f
}

// Sections lays the draft out in reading order.
func (d Draft) Sections() []Section {
	overview := []string{"Title: " + d.Title, "Description: " + d.Description}
	if d.ImmediateActions != "" {
		overview = append(overview, "Immediate actions: "+d.ImmediateActions)
	}

	var riskLines []string
	if d.Risk != nil {
		riskLines = []string{
			fmt.Sprintf("Severity: %d", d.Risk.Severity),
			fmt.Sprintf("Likelihood: %d", d.Risk.Likelihood),
			fmt.Sprintf("Score: %d (%s)", d.Risk.Score, d.Risk.Band),
		}
	} else {
		riskLines = []string{"Not assessed"}
	}

	causes := make([]string, 0, len(d.RootCauses))
	for _, rc := range d.RootCauses {
		causes = append(causes, fmt.Sprintf("Why %d: %s", rc.Number, rc.Text))
	}

	var notes []string
	if d.InvestigationNotes != "" {
		notes = []string{d.InvestigationNotes}
	}

	evidence := make([]string, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		line := a.Name
		if a.URL != "" {
			line += " <" + a.URL + ">"
		}
		evidence = append(evidence, line)
	}

	feedback := make([]string, 0, len(d.Feedback))
	for _, f := range d.Feedback {
		label := f.Role
		if f.Name != "" {
			label += " (" + f.Name + ")"
		}
		feedback = append(feedback, label+": "+f.Response)
	}

	var plan []string
	if d.Plan != "" {
		plan = []string{d.Plan}
	}

	return []Section{
		{Title: "Incident Overview", Lines: overview},
		{Title: "Risk Analysis", Lines: riskLines},
		{Title: "Root Causes", Lines: causes},
		{Title: "Investigation Notes", Lines: notes},
		{Title: "Evidence", Lines: evidence},
		{Title: "Team Feedback", Lines: feedback},
		{Title: "Corrective Action Plan", Lines: plan},
	}
}

// Markdown renders the draft for CLI and API previews.
func (d Draft) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n", d.HazardID, d.Title)
	for _, s := range d.Sections() {
		fmt.Fprintf(&b, "\n## %s\n", s.Title)
		if len(s.Lines) == 0 {
			b.WriteString("_None_\n")
			continue
		}
		for _, l := range s.Lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	return b.String()
}
