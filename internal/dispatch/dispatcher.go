// Package dispatch fans transfers out concurrently and collects a structured
// result per target.
package dispatch

import (
	"context"
	"errors"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/solana"
	"wallet-fleet/internal/txbuilder"
)

// Transfer is one unit of work.
type Transfer struct {
	From     domain.Wallet
	To       sdk.PublicKey
	Lamports uint64
}

// Dispatcher sends independent transfers concurrently. A failed unit never
// affects its siblings and nothing is retried.
type Dispatcher struct {
	rpc         solana.RPCClient
	confirmer   solana.Confirmer
	maxInFlight int
	confirm     bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxInFlight bounds concurrent units. 0 means unlimited.
func WithMaxInFlight(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxInFlight = n
		}
	}
}

// WithConfirmation toggles waiting for confirmation. Enabled by default.
func WithConfirmation(wait bool) Option {
	return func(d *Dispatcher) {
		d.confirm = wait
	}
}

// New creates a dispatcher. confirmer may be nil only with WithConfirmation(false).
func New(rpc solana.RPCClient, confirmer solana.Confirmer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rpc:       rpc,
		confirmer: confirmer,
		confirm:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.confirmer == nil {
		d.confirm = false
	}
	return d
}

// Dispatch runs every transfer against the shared blockhash and returns
// once all units have finished. Results are in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, kind domain.JobKind, transfers []Transfer, blockhash sdk.Hash) []domain.TransferResult {
	start := time.Now()
	results := make([]domain.TransferResult, len(transfers))

	var g errgroup.Group
	if d.maxInFlight > 0 {
		g.SetLimit(d.maxInFlight)
	}

	// Units never return an error: a failed unit must not cancel its
	// siblings, so outcomes are carried in results.
	for i, tr := range transfers {
		g.Go(func() error {
			results[i] = d.send(ctx, tr, blockhash)
			observability.RecordTransfer(string(kind), string(results[i].Status))
			return nil
		})
	}
	_ = g.Wait()

	observability.RecordDispatch(string(kind), time.Since(start).Seconds())

	counts := domain.CountByStatus(results)
	logger.Info(ctx, "dispatch finished",
		"kind", kind,
		"transfers", len(transfers),
		"confirmed", counts[domain.TransferConfirmed],
		"sent", counts[domain.TransferSent],
		"unconfirmed", counts[domain.TransferUnconfirmed],
		"failed", counts[domain.TransferFailed],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// send runs one unit: build, subscribe, broadcast, wait.
// The subscription is acknowledged before the broadcast so the
// notification cannot be missed.
func (d *Dispatcher) send(ctx context.Context, tr Transfer, blockhash sdk.Hash) domain.TransferResult {
	res := domain.TransferResult{
		From:     tr.From.Address(),
		To:       tr.To,
		Lamports: tr.Lamports,
		Status:   domain.TransferFailed,
	}

	st, err := txbuilder.BuildTransfer(tr.From, tr.Lamports, tr.To, blockhash)
	if err != nil {
		res.Err = err
		logger.Error(ctx, "build transfer failed", "to", tr.To.String(), "error", err)
		return res
	}
	res.Signature = st.Signature

	var sub solana.Subscription
	if d.confirm {
		sub, err = d.confirmer.Subscribe(ctx, st.Signature)
		if err != nil {
			res.Err = err
			logger.Warn(ctx, "subscribe failed, transfer not sent",
				"to", tr.To.String(), "signature", st.Signature, "error", err)
			return res
		}
	}

	if _, err := d.rpc.SendTransaction(ctx, st.Encoded); err != nil {
		if sub != nil {
			sub.Cancel()
		}
		res.Err = err
		logger.Warn(ctx, "broadcast failed",
			"to", tr.To.String(), "signature", st.Signature, "error", err)
		return res
	}

	if sub == nil {
		res.Status = domain.TransferSent
		return res
	}

	if err := sub.Wait(ctx); err != nil {
		res.Status = domain.TransferUnconfirmed
		if errors.Is(err, solana.ErrTransactionFailed) {
			res.Status = domain.TransferFailed
		}
		res.Err = err
		logger.Warn(ctx, "transfer not confirmed",
			"to", tr.To.String(), "signature", st.Signature, "error", err)
		return res
	}

	res.Status = domain.TransferConfirmed
	return res
}
