// Package stub provides in-memory fakes of the Solana RPC client and the
// confirmation channel for tests.
package stub

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	sdk "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"wallet-fleet/internal/solana"
)

// SentTransfer is a broadcast system transfer decoded from its wire form.
type SentTransfer struct {
	From      sdk.PublicKey
	To        sdk.PublicKey
	Lamports  uint64
	Signature string
	Blockhash sdk.Hash
}

// RPCClient implements solana.RPCClient for testing.
// Configure the exported fields before use; they are not guarded.
type RPCClient struct {
	Balances          map[sdk.PublicKey]uint64
	Blockhash         sdk.Hash
	RentExemptMinimum uint64

	// SendErrors rejects broadcasts by recipient.
	SendErrors map[sdk.PublicKey]error
	// BeforeSend runs before every broadcast; a non-nil error rejects it.
	BeforeSend func(t SentTransfer) error

	BalanceErr   error
	BlockhashErr error
	RentErr      error

	mu    sync.Mutex
	sent  []SentTransfer
	calls map[string]int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:          make(map[sdk.PublicKey]uint64),
		Blockhash:         sdk.Hash{9, 9, 9},
		RentExemptMinimum: 890880,
		SendErrors:        make(map[sdk.PublicKey]error),
		calls:             make(map[string]int),
	}
}

func (c *RPCClient) record(method string) {
	c.mu.Lock()
	c.calls[method]++
	c.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Sent returns the accepted broadcasts in arrival order.
func (c *RPCClient) Sent() []SentTransfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentTransfer(nil), c.sent...)
}

// GetBalance returns Balances[account], 0 when absent.
func (c *RPCClient) GetBalance(_ context.Context, account sdk.PublicKey) (uint64, error) {
	c.record("getBalance")
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[account], nil
}

// GetMultipleBalances returns nil entries for accounts absent from Balances.
func (c *RPCClient) GetMultipleBalances(_ context.Context, accounts []sdk.PublicKey) ([]*uint64, error) {
	c.record("getMultipleAccounts")
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}

	out := make([]*uint64, len(accounts))
	for i, a := range accounts {
		if v, ok := c.Balances[a]; ok {
			out[i] = &v
		}
	}
	return out, nil
}

// GetLatestBlockhash returns Blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (sdk.Hash, error) {
	c.record("getLatestBlockhash")
	if c.BlockhashErr != nil {
		return sdk.Hash{}, c.BlockhashErr
	}
	return c.Blockhash, nil
}

// GetMinimumBalanceForRentExemption returns RentExemptMinimum.
func (c *RPCClient) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	c.record("getMinimumBalanceForRentExemption")
	if c.RentErr != nil {
		return 0, c.RentErr
	}
	return c.RentExemptMinimum, nil
}

// SendTransaction decodes the transfer, applies BeforeSend and SendErrors,
// and records accepted broadcasts.
func (c *RPCClient) SendTransaction(_ context.Context, encoded string) (string, error) {
	c.record("sendTransaction")

	transfer, err := DecodeTransfer(encoded)
	if err != nil {
		return "", err
	}

	if c.BeforeSend != nil {
		if err := c.BeforeSend(transfer); err != nil {
			return "", err
		}
	}
	if err := c.SendErrors[transfer.To]; err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sent = append(c.sent, transfer)
	c.mu.Unlock()

	return transfer.Signature, nil
}

// DecodeTransfer parses a base58 wire transaction holding one system transfer.
func DecodeTransfer(encoded string) (SentTransfer, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return SentTransfer{}, fmt.Errorf("decode base58: %w", err)
	}

	tx, err := sdk.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return SentTransfer{}, fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 || len(tx.Message.Instructions) != 1 {
		return SentTransfer{}, fmt.Errorf("unexpected transaction shape")
	}

	ix := tx.Message.Instructions[0]
	if len(ix.Accounts) < 2 || len(ix.Data) < 12 {
		return SentTransfer{}, fmt.Errorf("not a system transfer")
	}

	return SentTransfer{
		From:      tx.Message.AccountKeys[ix.Accounts[0]],
		To:        tx.Message.AccountKeys[ix.Accounts[1]],
		Lamports:  binary.LittleEndian.Uint64(ix.Data[4:12]),
		Signature: tx.Signatures[0].String(),
		Blockhash: tx.Message.RecentBlockhash,
	}, nil
}
