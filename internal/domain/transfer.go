package domain

import (
	"github.com/gagliardetto/solana-go"
)

// TransferStatus is the outcome of a single transfer unit.
type TransferStatus string

const (
	// TransferConfirmed means the signature was broadcast and confirmed.
	TransferConfirmed TransferStatus = "CONFIRMED"
	// TransferSent means the signature was broadcast; confirmation was not awaited.
	TransferSent TransferStatus = "SENT"
	// TransferUnconfirmed means the signature was broadcast but confirmation failed or timed out.
	// Funds may still have moved; reconcile by balance.
	TransferUnconfirmed TransferStatus = "UNCONFIRMED"
	// TransferFailed means nothing was broadcast, or the broadcast was rejected.
	TransferFailed TransferStatus = "FAILED"
)

// TransferResult is the per-target outcome reported by the dispatcher.
type TransferResult struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Signature string // empty when the transaction could not be built
	Status    TransferStatus
	Err       error
}

// OK reports whether the transfer reached the chain.
func (r TransferResult) OK() bool {
	return r.Status == TransferConfirmed || r.Status == TransferSent
}

// TransferRecord is the ledger form of a TransferResult.
// Corresponds to the transfer_log table in ClickHouse.
type TransferRecord struct {
	JobID     string
	Kind      JobKind
	From      string
	To        string
	Lamports  uint64
	Signature string
	Status    TransferStatus
	Error     string
	Timestamp int64 // Unix timestamp in milliseconds
}

// NewTransferRecord converts a result into a ledger record.
func NewTransferRecord(jobID string, kind JobKind, r TransferResult, ts int64) *TransferRecord {
	rec := &TransferRecord{
		JobID:     jobID,
		Kind:      kind,
		From:      r.From.String(),
		To:        r.To.String(),
		Lamports:  r.Lamports,
		Signature: r.Signature,
		Status:    r.Status,
		Timestamp: ts,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// CountByStatus tallies results per status.
func CountByStatus(results []TransferResult) map[TransferStatus]int {
	counts := make(map[TransferStatus]int, 4)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
