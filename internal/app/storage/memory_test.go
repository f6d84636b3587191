package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/app/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemory()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()

	inv := storagetest.NewInvoice(time.Now())
	expires := inv.CreatedAt.Add(time.Hour)
	inv.ExpiresAt = &expires
	_, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	*got.ExpiresAt = got.ExpiresAt.Add(time.Hour)
	got.Amount = "99"

	again, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", again.Amount)
	assert.True(t, expires.Equal(*again.ExpiresAt))
}
