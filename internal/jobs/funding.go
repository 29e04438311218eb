package jobs

import (
	"context"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"wallet-fleet/internal/dispatch"
	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/wallet"
)

// FundingReport is the outcome of a completed funding dispatch.
type FundingReport struct {
	Job     domain.FundingJob
	Results []domain.TransferResult
}

// Failed returns the number of targets that were not confirmed.
func (r *FundingReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Broadcast returns the number of targets whose transfer reached the node.
func (r *FundingReport) Broadcast() int {
	n := 0
	for _, res := range r.Results {
		switch res.Status {
		case domain.TransferConfirmed, domain.TransferSent, domain.TransferUnconfirmed:
			n++
		}
	}
	return n
}

// InitiateFunding reserves the funding slot for a new job paying
// lamportsPerTarget to each target and returns it. The caller must fund
// the job's distribution address with at least TotalRequired lamports.
func (m *Manager) InitiateFunding(ctx context.Context, targets []sdk.PublicKey, lamportsPerTarget uint64) (job domain.FundingJob, err error) {
	defer func() { recordJob(domain.JobKindFunding, "initiate", err) }()

	if len(targets) == 0 {
		return domain.FundingJob{}, domain.Usagef("no funding targets")
	}
	if lamportsPerTarget == 0 {
		return domain.FundingJob{}, domain.Usagef("lamports per target must be positive")
	}
	seen := make(map[sdk.PublicKey]struct{}, len(targets))
	for _, t := range targets {
		if t.IsZero() {
			return domain.FundingJob{}, domain.Usagef("empty target address")
		}
		if _, dup := seen[t]; dup {
			return domain.FundingJob{}, domain.Usagef("target %s listed more than once", t)
		}
		seen[t] = struct{}{}
	}

	m.mu.Lock()
	if m.state != domain.JobStateIdle {
		m.mu.Unlock()
		return domain.FundingJob{}, domain.ErrJobActive
	}
	m.state = domain.JobStateReserving
	m.mu.Unlock()

	created, err := m.newFundingJob(ctx, targets, lamportsPerTarget)
	if err != nil {
		m.clearSlot()
		return domain.FundingJob{}, err
	}

	m.mu.Lock()
	m.job = created
	m.state = domain.JobStateInitiated
	snap := created.Snapshot()
	m.mu.Unlock()

	logger.Info(ctx, "funding job initiated",
		"job_id", created.ID,
		"targets", len(targets),
		"lamports_per_target", lamportsPerTarget,
		"distribution", created.DistributionAddress().String(),
		"total_required", created.TotalRequired.String(),
	)
	return snap, nil
}

func (m *Manager) newFundingJob(ctx context.Context, targets []sdk.PublicKey, lamportsPerTarget uint64) (*domain.FundingJob, error) {
	rent, err := m.rpc.GetMinimumBalanceForRentExemption(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query rent-exempt minimum: %w", err)
	}

	dist, err := wallet.Generate()
	if err != nil {
		return nil, err
	}

	return &domain.FundingJob{
		ID:                uuid.NewString(),
		Distribution:      dist,
		Targets:           append([]sdk.PublicKey(nil), targets...),
		LamportsPerTarget: lamportsPerTarget,
		RentExemptMinimum: rent,
		TotalRequired:     domain.TotalFundingRequired(lamportsPerTarget, len(targets), rent),
		CreatedAt:         m.now().UnixMilli(),
	}, nil
}

// CompleteFunding checks the distribution balance and, if sufficient, pays
// every target concurrently. Per-target failures are reported in the
// FundingReport; with strict failures enabled they also yield
// ErrPartialFailure. The slot is cleared once any transfer was broadcast.
// When nothing was broadcast, or an earlier step failed, the job stays
// Initiated so completion can be retried with the same distribution key.
func (m *Manager) CompleteFunding(ctx context.Context) (report *FundingReport, err error) {
	defer func() { recordJob(domain.JobKindFunding, "complete", err) }()

	job, err := m.beginCompletion()
	if err != nil {
		return nil, err
	}

	balance, err := m.rpc.GetBalance(ctx, job.DistributionAddress())
	if err != nil {
		m.revertCompletion()
		return nil, fmt.Errorf("read distribution balance: %w", err)
	}
	if !job.IsFunded(balance) {
		m.revertCompletion()
		return nil, fmt.Errorf("%w: have %d, need %s", domain.ErrInsufficientFunding, balance, job.TotalRequired)
	}

	blockhash, err := m.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		m.revertCompletion()
		return nil, fmt.Errorf("fetch block reference: %w", err)
	}

	transfers := make([]dispatch.Transfer, len(job.Targets))
	for i, target := range job.Targets {
		transfers[i] = dispatch.Transfer{
			From:     job.Distribution,
			To:       target,
			Lamports: job.LamportsPerTarget,
		}
	}

	// The fan-out must finish even if the caller goes away.
	dispatchCtx := context.WithoutCancel(ctx)

	logger.Info(ctx, "funding job completing", "job_id", job.ID, "targets", len(transfers))
	results := m.dispatcher.Dispatch(dispatchCtx, domain.JobKindFunding, transfers, blockhash)

	report = &FundingReport{Job: job.Snapshot(), Results: results}
	m.record(dispatchCtx, job.ID, domain.JobKindFunding, results)

	if report.Broadcast() == 0 {
		m.revertCompletion()
		logger.Warn(ctx, "funding job broadcast nothing, job kept",
			"job_id", job.ID, "targets", len(results),
			"distribution", job.DistributionAddress().String())
		return report, fmt.Errorf("%w: %d funding transfers", ErrNothingBroadcast, len(results))
	}
	m.clearSlot()

	failed := report.Failed()
	logger.Info(ctx, "funding job completed",
		"job_id", job.ID, "targets", len(results), "failed", failed)

	if failed > 0 && m.strict {
		return report, fmt.Errorf("%w: %d of %d funding transfers", domain.ErrPartialFailure, failed, len(results))
	}
	return report, nil
}
