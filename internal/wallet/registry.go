package wallet

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/solana"
	"wallet-fleet/internal/storage"
)

const (
	// MaxCreate bounds a single Create call.
	MaxCreate = 10_000
	// MaxPageSize bounds List and ListWithBalances pages.
	MaxPageSize = 1_000
)

// ErrSeedMismatch is returned when a stored address does not match the
// wallet re-derived from the configured seed.
var ErrSeedMismatch = fmt.Errorf("%w: stored address does not match derived wallet", domain.ErrSigning)

// Registry derives wallets from the master seed and tracks their indices in
// a WalletStore. Only addresses are persisted.
type Registry struct {
	seed  []byte
	store storage.WalletStore
	rpc   solana.RPCClient
}

// NewRegistry creates a registry. rpc may be nil when balances are never listed.
func NewRegistry(seed []byte, store storage.WalletStore, rpc solana.RPCClient) (*Registry, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty master seed", domain.ErrSigning)
	}
	if store == nil {
		return nil, errors.New("wallet store is required")
	}
	return &Registry{
		seed:  append([]byte(nil), seed...),
		store: store,
		rpc:   rpc,
	}, nil
}

// Create reserves count new indices, derives their wallets and records the addresses.
// Wallets created before a failure stay recorded.
func (r *Registry) Create(ctx context.Context, count int) ([]domain.Wallet, error) {
	if count <= 0 || count > MaxCreate {
		return nil, domain.Usagef("count must be between 1 and %d, got %d", MaxCreate, count)
	}

	created := make([]domain.Wallet, 0, count)
	defer func() {
		observability.RecordWalletsCreated(len(created))
	}()

	for i := 0; i < count; i++ {
		index, err := r.store.NextIndex(ctx)
		if err != nil {
			return created, fmt.Errorf("reserve index: %w", err)
		}

		w, err := Derive(r.seed, index)
		if err != nil {
			return created, err
		}

		if err := r.store.SetAddress(ctx, index, w.Address().String()); err != nil {
			return created, fmt.Errorf("record wallet %d: %w", index, err)
		}
		created = append(created, w)
	}

	logger.Info(ctx, "wallets created",
		"count", len(created),
		"first_index", *created[0].Index,
		"last_index", *created[len(created)-1].Index,
	)
	return created, nil
}

// List returns one 1-based page of wallets ordered by index.
func (r *Registry) List(ctx context.Context, page, pageSize int) ([]domain.Wallet, error) {
	if page < 1 {
		return nil, domain.Usagef("page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, domain.Usagef("page_size must be between 1 and %d, got %d", MaxPageSize, pageSize)
	}

	records, err := r.store.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return r.rederive(records)
}

// All returns every recorded wallet ordered by index.
func (r *Registry) All(ctx context.Context) ([]domain.Wallet, error) {
	var out []domain.Wallet
	for offset := 0; ; offset += MaxPageSize {
		records, err := r.store.List(ctx, offset, MaxPageSize)
		if err != nil {
			return nil, fmt.Errorf("list wallets: %w", err)
		}

		wallets, err := r.rederive(records)
		if err != nil {
			return nil, err
		}
		out = append(out, wallets...)

		if len(records) < MaxPageSize {
			return out, nil
		}
	}
}

// Count returns the number of recorded wallets.
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// LookupByAddress resolves addresses to fleet wallets, preserving input order.
// An unknown or repeated address is a usage error.
func (r *Registry) LookupByAddress(ctx context.Context, addresses []string) ([]domain.Wallet, error) {
	if len(addresses) == 0 {
		return nil, domain.Usagef("no addresses given")
	}

	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		if _, dup := seen[a]; dup {
			return nil, domain.Usagef("address %s given more than once", a)
		}
		seen[a] = struct{}{}
	}

	records, err := r.store.GetByAddresses(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("lookup wallets: %w", err)
	}

	byAddress := make(map[string]*domain.WalletRecord, len(records))
	for _, rec := range records {
		byAddress[rec.Address] = rec
	}

	ordered := make([]*domain.WalletRecord, 0, len(addresses))
	for _, a := range addresses {
		rec, ok := byAddress[a]
		if !ok {
			return nil, domain.Usagef("address %s is not a fleet wallet", a)
		}
		ordered = append(ordered, rec)
	}
	return r.rederive(ordered)
}

// ListWithBalances returns one page of wallets with their lamport balances,
// fetched in a single batched call. Missing accounts report zero.
func (r *Registry) ListWithBalances(ctx context.Context, page, pageSize int) ([]domain.WalletBalance, error) {
	if r.rpc == nil {
		return nil, errors.New("registry has no rpc client")
	}

	wallets, err := r.List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return []domain.WalletBalance{}, nil
	}

	keys := make([]sdk.PublicKey, len(wallets))
	for i, w := range wallets {
		keys[i] = w.Address()
	}

	balances, err := r.rpc.GetMultipleBalances(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	out := make([]domain.WalletBalance, len(wallets))
	for i, w := range wallets {
		out[i] = domain.WalletBalance{
			Index:   *w.Index,
			Address: keys[i].String(),
		}
		if balances[i] != nil {
			out[i].Lamports = *balances[i]
		}
	}
	return out, nil
}

func (r *Registry) rederive(records []*domain.WalletRecord) ([]domain.Wallet, error) {
	out := make([]domain.Wallet, 0, len(records))
	for _, rec := range records {
		w, err := Derive(r.seed, rec.Index)
		if err != nil {
			return nil, err
		}
		if w.Address().String() != rec.Address {
			return nil, fmt.Errorf("wallet %d (%s): %w", rec.Index, rec.Address, ErrSeedMismatch)
		}
		out = append(out, w)
	}
	return out, nil
}
