// Package store defines the hazard persistence contract shared by the SQLite
// repository and the in-memory store.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
	"hazardline/internal/pace"
	"hazardline/internal/stage"
)

// HazardStore is a durable keyed collection of hazards.
type HazardStore interface {
	// Create stores h and returns its id. An empty h.ID gets the next HZ-NNN id.
	Create(ctx context.Context, h domain.Hazard) (string, error)
	Get(ctx context.Context, id string) (domain.Hazard, error)
	// Update shallow-merges p into the stored hazard and bumps its version.
	Update(ctx context.Context, id string, p Patch) (domain.Hazard, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]domain.Hazard, error)
}

// Patch carries the top-level fields to replace. Nested objects are replaced
// whole; nil means untouched. A non-zero ExpectedVersion must match the
// stored version or the update fails with a conflict.
type Patch struct {
	ExpectedVersion int64

	Stage                      *stage.Stage
	RiskAnalysis               *domain.RiskAnalysis
	WhyAnalysis                *domain.Whys
	InvestigationNotes         *string
	Pace                       *domain.Assignments
	Attachments                *[]domain.Attachment
	CorrectiveActionComponents *domain.CorrectiveActionComponents
	FinalCorrectiveAction      *string
	Approvals                  *domain.Approvals
	ImplementationNotes        *string
	PublicationContent         *string
	EffectivenessReviewNotes   *string
	History                    *[]domain.HistoryEntry
	UpdatedAt                  string
}

// Apply merges p into h. Version handling is left to the store.
func (p Patch) Apply(h *domain.Hazard) {
	if p.Stage != nil {
		h.Stage = *p.Stage
	}
	if p.RiskAnalysis != nil {
		ra := *p.RiskAnalysis
		h.RiskAnalysis = &ra
	}
	if p.WhyAnalysis != nil {
		h.WhyAnalysis = *p.WhyAnalysis
	}
	if p.InvestigationNotes != nil {
		h.InvestigationNotes = *p.InvestigationNotes
	}
	if p.Pace != nil {
		h.Pace = pace.Clone(p.Pace)
	}
	if p.Attachments != nil {
		h.Attachments = append([]domain.Attachment{}, (*p.Attachments)...)
	}
	if p.CorrectiveActionComponents != nil {
		h.CorrectiveActionComponents = *p.CorrectiveActionComponents
	}
	if p.FinalCorrectiveAction != nil {
		h.FinalCorrectiveAction = *p.FinalCorrectiveAction
	}
	if p.Approvals != nil {
		h.Approvals = cloneApprovals(*p.Approvals)
	}
	if p.ImplementationNotes != nil {
		h.ImplementationNotes = *p.ImplementationNotes
	}
	if p.PublicationContent != nil {
		h.PublicationContent = *p.PublicationContent
	}
	if p.EffectivenessReviewNotes != nil {
		h.EffectivenessReviewNotes = *p.EffectivenessReviewNotes
	}
	if p.History != nil {
		h.History = append([]domain.HistoryEntry{}, (*p.History)...)
	}
	if p.UpdatedAt != "" {
		h.UpdatedAt = p.UpdatedAt
	}
}

// CheckVersion enforces the optimistic concurrency token.
func (p Patch) CheckVersion(h domain.Hazard) error {
	if p.ExpectedVersion != 0 && p.ExpectedVersion != h.Version {
		return errclass.ErrConflict.WithMessagef("hazard %s is at version %d, expected %d", h.ID, h.Version, p.ExpectedVersion)
	}
	return nil
}

type Filter struct {
	Stage    stage.Stage
	Severity string
	Limit    int
	// Cursor is "created_at|id" of the last item already seen.
	Cursor string
}

func (f Filter) Match(h domain.Hazard) bool {
	if f.Stage != "" && h.Stage != f.Stage {
		return false
	}
	if f.Severity != "" && !strings.EqualFold(h.Severity, f.Severity) {
		return false
	}
	return true
}

// ParseCursor splits a composite cursor.
func ParseCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errclass.ErrValidation.WithMessage("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func ComposeCursor(h domain.Hazard) string {
	return h.CreatedAt + "|" + h.ID
}

const idPrefix = "HZ-"

// NextID returns max numeric suffix + 1 over existing HZ ids.
func NextID(existing []string) string {
	max := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, idPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", idPrefix, max+1)
}

// SortByCreated orders hazards by created_at then id.
func SortByCreated(items []domain.Hazard) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})
}

// Clone deep-copies a hazard so callers never share nested state.
func Clone(h domain.Hazard) domain.Hazard {
	out := h
	if h.RiskFactors != nil {
		out.RiskFactors = append([]string{}, h.RiskFactors...)
	}
	if h.RiskAnalysis != nil {
		ra := *h.RiskAnalysis
		out.RiskAnalysis = &ra
	}
	out.Pace = pace.Clone(h.Pace)
	if h.Attachments != nil {
		out.Attachments = append([]domain.Attachment{}, h.Attachments...)
	}
	if h.History != nil {
		out.History = append([]domain.HistoryEntry{}, h.History...)
	}
	out.Approvals = cloneApprovals(h.Approvals)
	return out
}

func cloneApprovals(a domain.Approvals) domain.Approvals {
	cp := func(d *domain.Decision) *domain.Decision {
		if d == nil {
			return nil
		}
		c := *d
		return &c
	}
	return domain.Approvals{
		LineManager:        cp(a.LineManager),
		Executive:          cp(a.Executive),
		FinalSafetyClosure: cp(a.FinalSafetyClosure),
	}
}
