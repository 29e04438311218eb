package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"wallet-fleet/internal/storage"
)

func setupTestStore(t *testing.T) *WalletStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewWalletStore(ctx, endpoint, "", "", 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
		_ = container.Terminate(ctx)
	})
	return store
}

func TestWalletStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
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

	page, err := s.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "AddrA", page[0].Address)
	assert.Equal(t, "AddrB", page[1].Address)

	got, err := s.GetByAddresses(ctx, []string{"AddrC", "AddrA", "nope"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].Index)
	assert.Equal(t, uint64(2), got[1].Index)
}

func TestWalletStore_Duplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAddress(ctx, 5, "AddrA"))
	assert.ErrorIs(t, s.SetAddress(ctx, 6, "AddrA"), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.SetAddress(ctx, 5, "AddrB"), storage.ErrDuplicateKey)

	// AddrB's claim was rolled back, so it can be stored under a fresh index.
	require.NoError(t, s.SetAddress(ctx, 7, "AddrB"))

	next, err := s.NextIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), next)
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord("42", "1700000000000|Addr")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.Index)
	assert.Equal(t, int64(1700000000000), rec.CreatedAt)
	assert.Equal(t, "Addr", rec.Address)

	_, err = decodeRecord("x", "1|a")
	assert.Error(t, err)
	_, err = decodeRecord("1", "no-separator")
	assert.Error(t, err)
}
