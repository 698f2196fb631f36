// Package catalog files new hazard reports and lists or removes existing
// ones. Workflow progression lives in the engine.
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
	"hazardline/internal/events"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

const anonymousReporter = "Anonymous"

// Input is a hazard report as filed.
type Input struct {
	ID                    string   `json:"id,omitempty"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	ImmediateActions      string   `json:"immediate_actions,omitempty"`
	PotentialConsequences string   `json:"potential_consequences,omitempty"`
	Location              string   `json:"location,omitempty"`
	Category              string   `json:"category,omitempty"`
	ReportedBy            string   `json:"reported_by,omitempty"`
	ReportedDate          string   `json:"reported_date,omitempty" format:"date"`
	Severity              string   `json:"severity" enum:"Critical,High,Medium,Low"`
	SubmitterLineManager  string   `json:"submitter_line_manager,omitempty"`
	IsAnonymous           bool     `json:"is_anonymous,omitempty"`
	RiskFactors           []string `json:"risk_factors,omitempty"`
}

type Service struct {
	Store  store.HazardStore
	Events events.Recorder
	Logger *slog.Logger
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errclass.ErrValidation.WithMessage("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return errclass.ErrValidation.WithMessage("description is required")
	}
	if normalizeSeverity(in.Severity) == "" {
		return errclass.ErrValidation.WithMessagef("severity must be one of %s", strings.Join(domain.Severities, ", "))
	}
	if !in.IsAnonymous && strings.TrimSpace(in.ReportedBy) == "" {
		return errclass.ErrValidation.WithMessage("reported_by is required unless the report is anonymous")
	}
	if in.ReportedDate != "" {
		if _, err := time.Parse(time.DateOnly, in.ReportedDate); err != nil {
			return errclass.ErrValidation.WithMessagef("reported_date %q must be YYYY-MM-DD", in.ReportedDate)
		}
	}
	return nil
}

func normalizeSeverity(v string) string {
	for _, s := range domain.Severities {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return s
		}
	}
	return ""
}

// Submit files a report in stage Submitted with a "submitted" history entry.
func (s Service) Submit(ctx context.Context, in Input, actorID string) (domain.Hazard, error) {
	if err := in.validate(); err != nil {
		return domain.Hazard{}, err
	}
	now := s.now().UTC()
	ts := now.Format(time.RFC3339)
	reporter := strings.TrimSpace(in.ReportedBy)
	if in.IsAnonymous {
		reporter = anonymousReporter
	}
	if actorID == "" {
		actorID = reporter
	}
	date := in.ReportedDate
	if date == "" {
		date = now.Format(time.DateOnly)
	}
	var factors []string
	for _, f := range in.RiskFactors {
		if f = strings.TrimSpace(f); f != "" {
			factors = append(factors, f)
		}
	}
	h := domain.Hazard{
		ID:                    strings.TrimSpace(in.ID),
		Title:                 strings.TrimSpace(in.Title),
		Description:           strings.TrimSpace(in.Description),
		ImmediateActions:      strings.TrimSpace(in.ImmediateActions),
		PotentialConsequences: strings.TrimSpace(in.PotentialConsequences),
		Location:              strings.TrimSpace(in.Location),
		Category:              strings.TrimSpace(in.Category),
		ReportedBy:            reporter,
		ReportedDate:          date,
		Severity:              normalizeSeverity(in.Severity),
		SubmitterLineManager:  strings.TrimSpace(in.SubmitterLineManager),
		IsAnonymous:           in.IsAnonymous,
		RiskFactors:           factors,
		Stage:                 stage.Submitted,
		History: []domain.HistoryEntry{{
			Stage:     stage.Submitted,
			Timestamp: ts,
			Actor:     actorID,
			Action:    "submitted",
		}},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	id, err := s.Store.Create(ctx, h)
	if err != nil {
		return domain.Hazard{}, err
	}
	s.record(ctx, events.TypeHazardSubmitted, id, actorID, events.Payload{"title": h.Title, "severity": h.Severity})
	return s.Store.Get(ctx, id)
}

func (s Service) Get(ctx context.Context, id string) (domain.Hazard, error) {
	return s.Store.Get(ctx, id)
}

func (s Service) List(ctx context.Context, f store.Filter) ([]domain.Hazard, error) {
	return s.Store.List(ctx, f)
}

func (s Service) Delete(ctx context.Context, id, actorID string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, events.TypeHazardDeleted, id, actorID, nil)
	return nil
}

func (s Service) record(ctx context.Context, evtType, id, actorID string, payload events.Payload) {
	if s.Events == nil {
		return
	}
	evt, err := events.New(evtType, id, actorID, payload)
	if err == nil {
		_, err = s.Events.Record(ctx, evt)
	}
	if err != nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "record event failed", "event_type", evtType, "hazard_id", id, "error", err)
	}
}
