package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu        sync.RWMutex
	next      uint64
	byIndex   map[uint64]*domain.WalletRecord
	byAddress map[string]uint64
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		byIndex:   make(map[uint64]*domain.WalletRecord),
		byAddress: make(map[string]uint64),
	}
}

var _ storage.WalletStore = (*WalletStore)(nil)

// NextIndex reserves the next derivation index.
func (s *WalletStore) NextIndex(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.next
	s.next++
	return idx, nil
}

// SetAddress records address for index. Returns ErrDuplicateKey if either is taken.
func (s *WalletStore) SetAddress(_ context.Context, index uint64, address string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIndex[index]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byAddress[address]; exists {
		return storage.ErrDuplicateKey
	}

	s.byIndex[index] = &domain.WalletRecord{
		Index:     index,
		Address:   address,
		CreatedAt: time.Now().UnixMilli(),
	}
	s.byAddress[address] = index
	if index >= s.next {
		s.next = index + 1
	}
	return nil
}

// List returns records ordered by index ASC.
func (s *WalletStore) List(_ context.Context, offset, limit int) ([]*domain.WalletRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	indices := make([]uint64, 0, len(s.byIndex))
	for idx := range s.byIndex {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	if offset >= len(indices) {
		return nil, nil
	}
	end := min(offset+limit, len(indices))

	result := make([]*domain.WalletRecord, 0, end-offset)
	for _, idx := range indices[offset:end] {
		rec := *s.byIndex[idx]
		result = append(result, &rec)
	}
	return result, nil
}

// GetByAddresses returns known records among addresses, ordered by index.
func (s *WalletStore) GetByAddresses(_ context.Context, addresses []string) ([]*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletRecord
	seen := make(map[uint64]struct{}, len(addresses))
	for _, addr := range addresses {
		idx, ok := s.byAddress[addr]
		if !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		rec := *s.byIndex[idx]
		result = append(result, &rec)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

// Count returns the number of stored wallets.
func (s *WalletStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIndex), nil
}
