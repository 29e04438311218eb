package jobs

import (
	"context"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/txbuilder"
)

// CollectionReport is the outcome of a collection. Results holds one entry
// per broadcast attempted, in source order.
type CollectionReport struct {
	Job     domain.CollectionJob
	Results []domain.TransferResult
}

// Collect moves total/len(sources) lamports from every source to destination.
//
// Every balance is checked and every transfer is built before anything is
// broadcast; a short source or a build failure sends nothing. Broadcasts
// run in source order and stop at the first failure, which is returned with
// the results recorded so far.
func (m *Manager) Collect(ctx context.Context, sources []domain.Wallet, destination sdk.PublicKey, total uint64) (report *CollectionReport, err error) {
	defer func() { recordJob(domain.JobKindCollection, "collect", err) }()

	if err := validateCollection(sources, destination, total); err != nil {
		return nil, err
	}

	if err := m.beginCollection(); err != nil {
		return nil, err
	}
	defer m.endCollection()

	job := domain.CollectionJob{
		ID:          uuid.NewString(),
		Sources:     sources,
		Destination: destination,
		Total:       total,
		PerSource:   domain.PerSourceAmount(total, len(sources)),
	}

	if err := m.checkSourceBalances(ctx, job); err != nil {
		return nil, err
	}

	blockhash, err := m.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch block reference: %w", err)
	}

	signed := make([]*txbuilder.SignedTransfer, len(sources))
	for i, src := range sources {
		st, err := txbuilder.BuildTransfer(src, job.PerSource, destination, blockhash)
		if err != nil {
			return nil, fmt.Errorf("build transfer from %s: %w", src.Address(), err)
		}
		signed[i] = st
	}

	report = &CollectionReport{Job: job, Results: make([]domain.TransferResult, 0, len(signed))}
	defer func() {
		m.record(ctx, job.ID, domain.JobKindCollection, report.Results)
	}()

	for _, st := range signed {
		res := domain.TransferResult{
			From:      st.From,
			To:        st.To,
			Lamports:  st.Lamports,
			Signature: st.Signature,
			Status:    domain.TransferSent,
		}

		if _, err := m.rpc.SendTransaction(ctx, st.Encoded); err != nil {
			res.Status = domain.TransferFailed
			res.Err = err
			report.Results = append(report.Results, res)
			observability.RecordTransfer(string(domain.JobKindCollection), string(res.Status))

			logger.Error(ctx, "collection aborted",
				"job_id", job.ID, "from", st.From.String(), "sent", len(report.Results)-1, "error", err)
			return report, fmt.Errorf("broadcast from %s: %w", st.From, err)
		}

		report.Results = append(report.Results, res)
		observability.RecordTransfer(string(domain.JobKindCollection), string(res.Status))
	}

	logger.Info(ctx, "collection completed",
		"job_id", job.ID,
		"sources", len(sources),
		"per_source", job.PerSource,
		"collected", job.Collected(),
		"destination", destination.String(),
	)
	return report, nil
}

func validateCollection(sources []domain.Wallet, destination sdk.PublicKey, total uint64) error {
	if len(sources) == 0 {
		return domain.Usagef("no source wallets")
	}
	if total == 0 {
		return domain.Usagef("total lamports must be positive")
	}
	if domain.PerSourceAmount(total, len(sources)) == 0 {
		return domain.Usagef("total %d is smaller than the number of sources %d", total, len(sources))
	}
	if destination.IsZero() {
		return domain.Usagef("empty destination address")
	}

	seen := make(map[sdk.PublicKey]struct{}, len(sources))
	for _, src := range sources {
		addr := src.Address()
		if _, dup := seen[addr]; dup {
			return domain.Usagef("source %s listed more than once", addr)
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// checkSourceBalances fetches all source balances in one call. Missing
// accounts hold zero.
func (m *Manager) checkSourceBalances(ctx context.Context, job domain.CollectionJob) error {
	addrs := make([]sdk.PublicKey, len(job.Sources))
	for i, src := range job.Sources {
		addrs[i] = src.Address()
	}

	balances, err := m.rpc.GetMultipleBalances(ctx, addrs)
	if err != nil {
		return fmt.Errorf("read source balances: %w", err)
	}

	for i, b := range balances {
		var have uint64
		if b != nil {
			have = *b
		}
		if have < job.PerSource {
			return fmt.Errorf("%w: %s has %d, needs %d", domain.ErrInsufficientSol, addrs[i], have, job.PerSource)
		}
	}
	return nil
}
