package reporting

import (
	"time"

	"wallet-fleet/internal/domain"
)

// JobReport summarizes the ledger of one job.
type JobReport struct {
	// Metadata
	GeneratedAt time.Time
	JobID       string
	Kind        domain.JobKind

	Summary Summary

	// Transfers ordered by timestamp, then from address
	Transfers []*domain.TransferRecord
}

// Summary counts transfers by outcome.
type Summary struct {
	Total       int
	Confirmed   int
	Sent        int
	Unconfirmed int
	Failed      int

	// LamportsMoved sums confirmed and sent transfers. Unconfirmed ones may
	// also have landed; reconcile those by balance.
	LamportsMoved uint64

	FirstAt int64 // Unix ms
	LastAt  int64 // Unix ms
}
