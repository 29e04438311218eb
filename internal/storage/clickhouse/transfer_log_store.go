package clickhouse

import (
	"context"
	"fmt"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// TransferLogStore implements storage.TransferLogStore using ClickHouse.
type TransferLogStore struct {
	conn *Conn
}

// NewTransferLogStore creates a new TransferLogStore.
func NewTransferLogStore(conn *Conn) *TransferLogStore {
	return &TransferLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferLogStore = (*TransferLogStore)(nil)

// InsertBulk appends records in a single batch.
func (s *TransferLogStore) InsertBulk(ctx context.Context, records []*domain.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.JobID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_log (
			job_id, kind, from_address, to_address, lamports,
			signature, status, error, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.JobID, string(r.Kind), r.From, r.To, r.Lamports,
			r.Signature, string(r.Status), r.Error, r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByJobID returns all records for jobID ordered by timestamp, then from address.
func (s *TransferLogStore) GetByJobID(ctx context.Context, jobID string) ([]*domain.TransferRecord, error) {
	query := `
		SELECT job_id, kind, from_address, to_address, lamports,
		       signature, status, error, timestamp_ms
		FROM transfer_log
		WHERE job_id = ?
		ORDER BY timestamp_ms ASC, from_address ASC
	`

	rows, err := s.conn.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query transfer log: %w", err)
	}
	defer rows.Close()

	var records []*domain.TransferRecord
	for rows.Next() {
		var (
			r            domain.TransferRecord
			kind, status string
		)
		err := rows.Scan(
			&r.JobID, &kind, &r.From, &r.To, &r.Lamports,
			&r.Signature, &status, &r.Error, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer record: %w", err)
		}
		r.Kind = domain.JobKind(kind)
		r.Status = domain.TransferStatus(status)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer records: %w", err)
	}
	return records, nil
}
