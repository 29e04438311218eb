package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-fleet/internal/storage"
)

func newTestStore(t *testing.T) *WalletStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWalletStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, addr := range []string{"AddrA", "AddrB", "AddrC"} {
		idx, err := s.NextIndex(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
		require.NoError(t, s.SetAddress(ctx, idx, addr))
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := s.List(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Index)
	assert.Equal(t, "AddrB", page[0].Address)
	assert.Equal(t, "AddrC", page[1].Address)
	assert.NotZero(t, page[1].CreatedAt)

	got, err := s.GetByAddresses(ctx, []string{"AddrC", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Index)
}

func TestWalletStore_IndexOrderBeyondOneByte(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAddress(ctx, 256, "High"))
	require.NoError(t, s.SetAddress(ctx, 3, "Low"))

	page, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Low", page[0].Address)
	assert.Equal(t, "High", page[1].Address)

	next, err := s.NextIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(257), next)
}

func TestWalletStore_Duplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAddress(ctx, 0, "AddrA"))
	assert.ErrorIs(t, s.SetAddress(ctx, 1, "AddrA"), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.SetAddress(ctx, 0, "AddrB"), storage.ErrDuplicateKey)

	_, err := s.List(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
