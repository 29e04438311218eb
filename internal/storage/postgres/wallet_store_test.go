package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-fleet/internal/storage"
)

func TestWalletStore_NextIndexMonotonic(t *testing.T) {
	store := NewWalletStore(setupTestDB(t))
	ctx := context.Background()

	first, err := store.NextIndex(ctx)
	require.NoError(t, err)
	second, err := store.NextIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), first)
	assert.Equal(t, first+1, second)
}

func TestWalletStore_SetAddressAndList(t *testing.T) {
	store := NewWalletStore(setupTestDB(t))
	ctx := context.Background()

	for i, addr := range []string{"AddrA", "AddrB", "AddrC"} {
		idx, err := store.NextIndex(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
		require.NoError(t, store.SetAddress(ctx, idx, addr))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Index)
	assert.Equal(t, "AddrB", page[0].Address)
	assert.Equal(t, "AddrC", page[1].Address)
	assert.NotZero(t, page[0].CreatedAt)
}

func TestWalletStore_DuplicateAddress(t *testing.T) {
	store := NewWalletStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.SetAddress(ctx, 0, "AddrA"))
	err := store.SetAddress(ctx, 1, "AddrA")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestWalletStore_GetByAddresses(t *testing.T) {
	store := NewWalletStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.SetAddress(ctx, 0, "AddrA"))
	require.NoError(t, store.SetAddress(ctx, 1, "AddrB"))

	got, err := store.GetByAddresses(ctx, []string{"AddrB", "Unknown"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Index)

	got, err = store.GetByAddresses(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalletStore_ListInvalidInput(t *testing.T) {
	store := NewWalletStore(setupTestDB(t))

	_, err := store.List(context.Background(), 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
