package solana

import (
	"context"

	sdk "github.com/gagliardetto/solana-go"
)

// RPCClient is the subset of the Solana HTTP JSON-RPC API the fleet uses.
type RPCClient interface {
	// GetBalance returns the lamport balance of an account. Missing accounts hold 0.
	GetBalance(ctx context.Context, account sdk.PublicKey) (uint64, error)

	// GetMultipleBalances returns one entry per account in input order,
	// nil where the account does not exist.
	GetMultipleBalances(ctx context.Context, accounts []sdk.PublicKey) ([]*uint64, error)

	// GetLatestBlockhash returns a recent block reference for transaction building.
	GetLatestBlockhash(ctx context.Context) (sdk.Hash, error)

	// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for an
	// account holding dataSize bytes.
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)

	// SendTransaction broadcasts a base58-encoded signed transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, encoded string) (string, error)
}
