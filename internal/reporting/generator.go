// Package reporting renders transfer ledger reports per job.
package reporting

import (
	"context"
	"fmt"
	"time"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// Generator produces job reports from the transfer ledger.
type Generator struct {
	ledger storage.TransferLogStore
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(ledger storage.TransferLogStore) *Generator {
	return &Generator{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for jobID. Returns storage.ErrNotFound when the
// ledger holds nothing for it.
func (g *Generator) Generate(ctx context.Context, jobID string) (*JobReport, error) {
	if jobID == "" {
		return nil, domain.Usagef("job id is required")
	}

	records, err := g.ledger.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for job %s: %w", jobID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
	}

	return &JobReport{
		GeneratedAt: g.now(),
		JobID:       jobID,
		Kind:        records[0].Kind,
		Summary:     summarize(records),
		Transfers:   records,
	}, nil
}

func summarize(records []*domain.TransferRecord) Summary {
	s := Summary{
		Total:   len(records),
		FirstAt: records[0].Timestamp,
		LastAt:  records[0].Timestamp,
	}

	for _, r := range records {
		switch r.Status {
		case domain.TransferConfirmed:
			s.Confirmed++
			s.LamportsMoved += r.Lamports
		case domain.TransferSent:
			s.Sent++
			s.LamportsMoved += r.Lamports
		case domain.TransferUnconfirmed:
			s.Unconfirmed++
		case domain.TransferFailed:
			s.Failed++
		}

		s.FirstAt = min(s.FirstAt, r.Timestamp)
		s.LastAt = max(s.LastAt, r.Timestamp)
	}
	return s
}
