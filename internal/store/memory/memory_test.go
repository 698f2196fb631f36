package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardline/internal/domain"
	"hazardline/internal/store"
	"hazardline/internal/store/memory"
	"hazardline/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.HazardStore { return memory.New() })
}

func TestGetReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id, err := s.Create(ctx, domain.Hazard{Title: "copy", Attachments: []domain.Attachment{{ID: "a1", Name: "photo.jpg"}}})
	require.NoError(t, err)

	h, err := s.Get(ctx, id)
	require.NoError(t, err)
	h.Attachments[0].Name = "changed"

	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", again.Attachments[0].Name)
}
