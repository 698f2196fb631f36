// Package storetest holds behaviour checks every HazardStore must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
	"hazardline/internal/pace"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

func sample(title, createdAt string) domain.Hazard {
	return domain.Hazard{
		Title:        title,
		Description:  "Standing water on runway 24L",
		ReportedBy:   "john",
		ReportedDate: "2024-01-01",
		Severity:     domain.SeverityHigh,
		Stage:        stage.Submitted,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// Run exercises the HazardStore contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.HazardStore) {
	t.Run("CreateAssignsSequentialIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id1, err := s.Create(ctx, sample("one", "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
		id2, err := s.Create(ctx, sample("two", "2024-01-01T00:00:01Z"))
		require.NoError(t, err)
		assert.Equal(t, "HZ-001", id1)
		assert.Equal(t, "HZ-002", id2)

		h := sample("explicit", "2024-01-01T00:00:02Z")
		h.ID = "HZ-010"
		id, err := s.Create(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, "HZ-010", id)
		next, err := s.Create(ctx, sample("after", "2024-01-01T00:00:03Z"))
		require.NoError(t, err)
		assert.Equal(t, "HZ-011", next)

		_, err = s.Create(ctx, h)
		assert.True(t, errors.Is(err, errclass.ErrConflict))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "HZ-404")
		assert.True(t, errors.Is(err, errclass.ErrNotFound))
	})

	t.Run("RoundTripNestedFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		h := sample("nested", "2024-01-01T00:00:00Z")
		h.RiskFactors = []string{"Lack of Awareness"}
		h.WhyAnalysis = domain.Whys{"a", "", "c", "", ""}
		id, err := s.Create(ctx, h)
		require.NoError(t, err)

		assignments, _, err := pace.AddContributor(pace.New(), pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: "ann"})
		require.NoError(t, err)
		next := stage.SmInitialReview
		got, err := s.Update(ctx, id, store.Patch{
			Stage:        &next,
			RiskAnalysis: &domain.RiskAnalysis{Severity: 4, Likelihood: 2},
			Pace:         assignments,
			Approvals:    &domain.Approvals{LineManager: &domain.Decision{Approved: true, By: "lm"}},
			History:      &[]domain.HistoryEntry{{Stage: next, Actor: "sm", Action: "advanced"}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)

		fetched, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, stage.SmInitialReview, fetched.Stage)
		require.NotNil(t, fetched.RiskAnalysis)
		assert.Equal(t, 4, fetched.RiskAnalysis.Severity)
		require.NotNil(t, fetched.Pace)
		require.Len(t, fetched.Pace.Contributors, 1)
		assert.Equal(t, assignments.Contributors[0].ID, fetched.Pace.Contributors[0].ID)
		assert.Equal(t, domain.Whys{"a", "", "c", "", ""}, fetched.WhyAnalysis)
		assert.Equal(t, []string{"Lack of Awareness"}, fetched.RiskFactors)
		require.NotNil(t, fetched.Approvals.LineManager)
		assert.True(t, fetched.Approvals.LineManager.Approved)
		require.Len(t, fetched.History, 1)
		assert.Equal(t, h.Description, fetched.Description)
	})

	t.Run("UpdateVersionConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.Create(ctx, sample("v", "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
		notes := "first"
		_, err = s.Update(ctx, id, store.Patch{ExpectedVersion: 1, InvestigationNotes: &notes})
		require.NoError(t, err)
		notes = "stale"
		_, err = s.Update(ctx, id, store.Patch{ExpectedVersion: 1, InvestigationNotes: &notes})
		assert.True(t, errors.Is(err, errclass.ErrConflict))
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "first", got.InvestigationNotes)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		notes := "x"
		_, err := s.Update(context.Background(), "HZ-999", store.Patch{InvestigationNotes: &notes})
		assert.True(t, errors.Is(err, errclass.ErrNotFound))
	})

	t.Run("DeleteAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, ts := range []string{"2024-01-01T00:00:00Z", "2024-01-01T00:00:01Z", "2024-01-01T00:00:02Z"} {
			h := sample("list", ts)
			if i == 2 {
				h.Severity = domain.SeverityLow
			}
			_, err := s.Create(ctx, h)
			require.NoError(t, err)
		}
		all, err := s.List(ctx, store.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "HZ-001", all[0].ID)

		page, err := s.List(ctx, store.Filter{Limit: 1, Cursor: store.ComposeCursor(all[0])})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "HZ-002", page[0].ID)

		low, err := s.List(ctx, store.Filter{Severity: domain.SeverityLow})
		require.NoError(t, err)
		require.Len(t, low, 1)
		assert.Equal(t, "HZ-003", low[0].ID)

		require.NoError(t, s.Delete(ctx, "HZ-002"))
		assert.True(t, errors.Is(s.Delete(ctx, "HZ-002"), errclass.ErrNotFound))
		all, err = s.List(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
