package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// TransferLogStore is an in-memory implementation of storage.TransferLogStore.
type TransferLogStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.TransferRecord // keyed by job_id
}

// NewTransferLogStore creates a new in-memory transfer ledger.
func NewTransferLogStore() *TransferLogStore {
	return &TransferLogStore{
		data: make(map[string][]*domain.TransferRecord),
	}
}

var _ storage.TransferLogStore = (*TransferLogStore)(nil)

// InsertBulk appends records. Fails the whole batch if any record lacks a job id.
func (s *TransferLogStore) InsertBulk(_ context.Context, records []*domain.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.JobID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		rec := *r
		s.data[r.JobID] = append(s.data[r.JobID], &rec)
	}
	return nil
}

// GetByJobID returns records for jobID ordered by timestamp, then from address.
func (s *TransferLogStore) GetByJobID(_ context.Context, jobID string) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[jobID]
	result := make([]*domain.TransferRecord, len(stored))
	for i, r := range stored {
		rec := *r
		result[i] = &rec
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].From < result[j].From
	})
	return result, nil
}
