package stage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardline/internal/errclass"
	"hazardline/internal/stage"
)

func TestNextFollowsForwardMap(t *testing.T) {
	all := stage.All()
	require.Len(t, all, 11)
	for i := 0; i < len(all)-1; i++ {
		next, ok := stage.Next(all[i])
		require.True(t, ok, "stage %s", all[i])
		assert.Equal(t, all[i+1], next)
	}
	_, ok := stage.Next(stage.Closed)
	assert.False(t, ok)
	_, ok = stage.Next(stage.Stage("Bogus"))
	assert.False(t, ok)
}

func TestPhaseMembership(t *testing.T) {
	cases := map[stage.Stage]stage.Phase{
		stage.Submitted:                stage.Investigation,
		stage.SmInitialReview:          stage.Investigation,
		stage.AssignedCorrectiveAction: stage.ActionPlan,
		stage.SmCaReview:               stage.Collection,
		stage.LineManagerApproval:      stage.Approvals,
		stage.ExecApproval:             stage.Approvals,
		stage.ImplementationAssignment: stage.Resolution,
		stage.Closed:                   stage.Resolution,
	}
	for s, want := range cases {
		assert.Equal(t, want, stage.PhaseOf(s), "stage %s", s)
	}
	assert.Equal(t, []stage.Stage{stage.LineManagerApproval, stage.ExecApproval}, stage.StagesOf(stage.Approvals))
	total := 0
	for _, p := range stage.Phases() {
		total += len(stage.StagesOf(p))
	}
	assert.Equal(t, len(stage.All()), total)
}

func TestPercentComplete(t *testing.T) {
	assert.Equal(t, 0, stage.PercentComplete(stage.Submitted))
	assert.Equal(t, 25, stage.PercentComplete(stage.AssignedCorrectiveAction))
	assert.Equal(t, 50, stage.PercentComplete(stage.SmCaReview))
	assert.Equal(t, 75, stage.PercentComplete(stage.ExecApproval))
	assert.Equal(t, 100, stage.PercentComplete(stage.Closed))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, stage.StatusCompleted, stage.Classify(stage.Investigation, stage.SmCaReview))
	assert.Equal(t, stage.StatusCurrent, stage.Classify(stage.Collection, stage.SmCaReview))
	assert.Equal(t, stage.StatusFuture, stage.Classify(stage.Approvals, stage.SmCaReview))

	p := stage.ProgressOf(stage.LineManagerApproval)
	require.Len(t, p.Phases, 5)
	assert.Equal(t, stage.StatusCurrent, p.Phases[3].Status)
	assert.Equal(t, "Line Manager Approval", p.Label)
}

func TestParse(t *testing.T) {
	s, err := stage.Parse("smcareview")
	require.NoError(t, err)
	assert.Equal(t, stage.SmCaReview, s)

	s, err = stage.Parse("Review for Effectiveness")
	require.NoError(t, err)
	assert.Equal(t, stage.EffectivenessReview, s)

	_, err = stage.Parse("Archived")
	assert.True(t, errors.Is(err, errclass.ErrValidation))
}

func TestBetween(t *testing.T) {
	assert.True(t, stage.Between(stage.SmCaReview, stage.AssignedCorrectiveAction, stage.ImplementationInProgress))
	assert.False(t, stage.Between(stage.Published, stage.AssignedCorrectiveAction, stage.ImplementationInProgress))
	assert.True(t, stage.Before(stage.Published, stage.Closed))
}
