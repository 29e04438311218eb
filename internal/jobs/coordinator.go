// Package jobs coordinates funding and collecting jobs over the fleet.
//
// At most one funding job exists at a time. Funding completion and
// collection share a busy flag, so neither can overlap the other.
// The mutex guards state transitions only; it is never held across I/O.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-fleet/internal/dispatch"
	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/solana"
	"wallet-fleet/internal/storage"
)

// ErrDistributionFunded is returned by AbortFunding when the distribution
// wallet already holds lamports that would be stranded.
var ErrDistributionFunded = fmt.Errorf("%w: distribution wallet holds lamports, complete the job instead", domain.ErrJobState)

// ErrNothingBroadcast is returned by CompleteFunding when no transfer reached
// the node. The job stays Initiated.
var ErrNothingBroadcast = fmt.Errorf("%w: no transfer was broadcast, funding job kept", domain.ErrPartialFailure)

// Manager owns the funding slot and runs jobs.
type Manager struct {
	rpc        solana.RPCClient
	dispatcher *dispatch.Dispatcher
	ledger     storage.TransferLogStore
	strict     bool
	now        func() time.Time

	mu         sync.Mutex
	state      domain.JobState
	job        *domain.FundingJob
	collecting bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLedger appends every transfer outcome to store.
func WithLedger(store storage.TransferLogStore) Option {
	return func(m *Manager) {
		m.ledger = store
	}
}

// WithStrictFailures makes CompleteFunding return ErrPartialFailure when
// any target was not confirmed.
func WithStrictFailures(strict bool) Option {
	return func(m *Manager) {
		m.strict = strict
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an idle manager.
func NewManager(rpc solana.RPCClient, dispatcher *dispatch.Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		rpc:        rpc,
		dispatcher: dispatcher,
		now:        time.Now,
		state:      domain.JobStateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FundingStatus is a point-in-time view of the funding slot.
type FundingStatus struct {
	State domain.JobState
	Job   *domain.FundingJob // nil unless Initiated or Completing
}

// FundingStatus returns the current slot state and a copy of the active job.
func (m *Manager) FundingStatus() FundingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := FundingStatus{State: m.state}
	if m.job != nil {
		snap := m.job.Snapshot()
		st.Job = &snap
	}
	return st
}

// AbortFunding discards an initiated job whose distribution wallet is still empty.
func (m *Manager) AbortFunding(ctx context.Context) (err error) {
	defer func() { recordJob(domain.JobKindFunding, "abort", err) }()

	job, err := m.beginCompletion()
	if err != nil {
		return err
	}

	balance, err := m.rpc.GetBalance(ctx, job.DistributionAddress())
	if err != nil {
		m.revertCompletion()
		return fmt.Errorf("read distribution balance: %w", err)
	}
	if balance > 0 {
		m.revertCompletion()
		return fmt.Errorf("%w (%d lamports at %s)", ErrDistributionFunded, balance, job.DistributionAddress())
	}

	m.clearSlot()
	logger.Info(ctx, "funding job aborted", "job_id", job.ID)
	return nil
}

// beginCompletion moves Initiated to Completing and returns the job.
func (m *Manager) beginCompletion() (*domain.FundingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == domain.JobStateCompleting || m.collecting:
		return nil, domain.ErrJobBusy
	case m.state != domain.JobStateInitiated:
		return nil, domain.ErrFundingJobNotStarted
	}
	m.state = domain.JobStateCompleting
	return m.job, nil
}

func (m *Manager) revertCompletion() {
	m.mu.Lock()
	m.state = domain.JobStateInitiated
	m.mu.Unlock()
}

func (m *Manager) clearSlot() {
	m.mu.Lock()
	m.state = domain.JobStateIdle
	m.job = nil
	m.mu.Unlock()
}

// beginCollection takes the busy flag.
func (m *Manager) beginCollection() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collecting || m.state == domain.JobStateCompleting {
		return domain.ErrJobBusy
	}
	m.collecting = true
	return nil
}

func (m *Manager) endCollection() {
	m.mu.Lock()
	m.collecting = false
	m.mu.Unlock()
}

// record appends results to the ledger. Ledger failures are logged, not returned:
// the transfers already happened.
func (m *Manager) record(ctx context.Context, jobID string, kind domain.JobKind, results []domain.TransferResult) {
	if m.ledger == nil || len(results) == 0 {
		return
	}

	ts := m.now().UnixMilli()
	records := make([]*domain.TransferRecord, len(results))
	for i, r := range results {
		records[i] = domain.NewTransferRecord(jobID, kind, r, ts)
	}

	if err := m.ledger.InsertBulk(ctx, records); err != nil {
		logger.Error(ctx, "append transfer ledger failed",
			"job_id", jobID, "records", len(records), "error", err)
	}
}

func recordJob(kind domain.JobKind, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(domain.Classify(err))
	}
	observability.RecordJob(string(kind), operation, outcome)
}
