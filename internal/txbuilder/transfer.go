// Package txbuilder builds and signs native SOL transfer transactions.
package txbuilder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"

	"wallet-fleet/internal/domain"
)

// SignedTransfer is a signed system transfer ready to broadcast.
type SignedTransfer struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Signature string // base58 first signature, the transaction id
	Encoded   string // base58 wire encoding
}

// BuildTransfer builds a one-instruction transfer of lamports from signer to
// recipient, pinned to blockhash, signed by signer who also pays the fee.
// Identical inputs yield an identical transaction and signature.
func BuildTransfer(signer domain.Wallet, lamports uint64, recipient solana.PublicKey, blockhash solana.Hash) (*SignedTransfer, error) {
	switch {
	case lamports == 0:
		return nil, domain.Usagef("transfer amount must be positive")
	case recipient.IsZero():
		return nil, domain.Usagef("recipient is empty")
	case blockhash.IsZero():
		return nil, domain.Usagef("block reference is empty")
	case len(signer.Key) != 64:
		return nil, fmt.Errorf("%w: malformed signer key", domain.ErrSigning)
	}

	from := signer.Address()
	ix := system.NewTransferInstruction(lamports, from, recipient).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: assemble transaction: %v", domain.ErrEncoding, err)
	}

	sigs, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &signer.Key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sign transfer: %v", domain.ErrSigning, err)
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: no signature produced", domain.ErrSigning)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: serialize transaction: %v", domain.ErrEncoding, err)
	}

	return &SignedTransfer{
		From:      from,
		To:        recipient,
		Lamports:  lamports,
		Signature: sigs[0].String(),
		Encoded:   base58.Encode(raw),
	}, nil
}
