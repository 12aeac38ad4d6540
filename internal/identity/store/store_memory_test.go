package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ekyc/internal/identity/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

const testWallet = domain.WalletAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b")

func TestInMemoryStore_WalletIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	first := models.NewWalletIdentity(testWallet, time.Now())
	require.NoError(t, s.Create(ctx, first))

	second := models.NewWalletIdentity(testWallet, time.Now())
	assert.ErrorIs(t, s.Create(ctx, second), sentinel.ErrConflict)

	found, err := s.FindByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestInMemoryStore_WalletlessIdentities(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Create(ctx, &models.Identity{ID: domain.NewUserID(), VerificationStatus: models.StatusPending}))
	}
	assert.Equal(t, 2, s.Count())
}

func TestInMemoryStore_SetInstitution(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	identity := models.NewWalletIdentity(testWallet, time.Now())
	require.NoError(t, s.Create(ctx, identity))

	require.NoError(t, s.SetInstitution(ctx, identity.ID, true))
	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, found.IsInstitution)

	assert.ErrorIs(t, s.SetInstitution(ctx, domain.NewUserID(), true), sentinel.ErrNotFound)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	identity := models.NewWalletIdentity(testWallet, time.Now())
	require.NoError(t, s.Create(ctx, identity))

	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	found.IsInstitution = true

	again, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.False(t, again.IsInstitution)
}
