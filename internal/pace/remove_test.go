package pace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"hazardline/internal/errclass"
)

func TestRemoveMemberRejectsSingleSlotRoles(t *testing.T) {
	for _, role := range []Role{ProcessOwner, Approver} {
		out, err := removeMember(New(), Ref{Role: role})
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, errclass.ErrValidation), "%s: %v", role, err)
	}
}
