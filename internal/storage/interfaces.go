package storage

import (
	"context"

	"wallet-fleet/internal/domain"
)

// WalletStore persists the derived-wallet index. Secret keys are never stored;
// callers re-derive them from the master seed and the index.
type WalletStore interface {
	// NextIndex reserves and returns the next unused derivation index.
	// Indices are never reused, even if SetAddress is never called for one.
	NextIndex(ctx context.Context) (uint64, error)

	// SetAddress records the derived address for index.
	// Returns ErrDuplicateKey if the address is already stored under another index.
	SetAddress(ctx context.Context, index uint64, address string) error

	// List returns records ordered by index ASC, skipping offset and returning at most limit.
	List(ctx context.Context, offset, limit int) ([]*domain.WalletRecord, error)

	// GetByAddresses returns records for the given addresses. Unknown addresses are omitted.
	GetByAddresses(ctx context.Context, addresses []string) ([]*domain.WalletRecord, error)

	// Count returns the number of wallets with a recorded address.
	Count(ctx context.Context) (int, error)
}

// TransferLogStore is the append-only ledger of transfer outcomes.
type TransferLogStore interface {
	// InsertBulk appends records. An empty slice is a no-op.
	InsertBulk(ctx context.Context, records []*domain.TransferRecord) error

	// GetByJobID returns all records for a job, ordered by timestamp ASC, then from address.
	GetByJobID(ctx context.Context, jobID string) ([]*domain.TransferRecord, error)
}
