package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// NextIndex reserves the next derivation index from wallet_index_seq.
func (s *WalletStore) NextIndex(ctx context.Context) (uint64, error) {
	var idx int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('wallet_index_seq')`).Scan(&idx); err != nil {
		return 0, fmt.Errorf("reserve wallet index: %w", err)
	}
	return uint64(idx), nil
}

// SetAddress records the address for a reserved index.
func (s *WalletStore) SetAddress(ctx context.Context, index uint64, address string) error {
	query := `
		INSERT INTO wallets (derivation_index, address, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query, int64(index), address, time.Now().UnixMilli())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// List returns wallets ordered by derivation index.
func (s *WalletStore) List(ctx context.Context, offset, limit int) ([]*domain.WalletRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT derivation_index, address, created_at
		FROM wallets
		ORDER BY derivation_index ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	return scanWallets(rows)
}

// GetByAddresses returns the stored wallets among addresses.
func (s *WalletStore) GetByAddresses(ctx context.Context, addresses []string) ([]*domain.WalletRecord, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT derivation_index, address, created_at
		FROM wallets
		WHERE address = ANY($1)
		ORDER BY derivation_index ASC
	`

	rows, err := s.pool.Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("get wallets by addresses: %w", err)
	}
	defer rows.Close()

	return scanWallets(rows)
}

// Count returns the number of stored wallets.
func (s *WalletStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM wallets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return n, nil
}

func scanWallets(rows pgx.Rows) ([]*domain.WalletRecord, error) {
	var wallets []*domain.WalletRecord

	for rows.Next() {
		var (
			w   domain.WalletRecord
			idx int64
		)
		if err := rows.Scan(&idx, &w.Address, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		w.Index = uint64(idx)
		wallets = append(wallets, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}

	return wallets, nil
}
