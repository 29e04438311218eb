// Package wallet derives fleet wallets from a master seed and keeps the
// derivation index registry.
package wallet

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"

	"wallet-fleet/internal/domain"
)

// Derive deterministically builds the wallet at index from seed.
//
// The ed25519 seed is BLAKE3-256(seed || big-endian uint64 index). Equal
// inputs always yield the same keypair; distinct indices yield distinct
// keypairs. Safe for concurrent use.
func Derive(seed []byte, index uint64) (domain.Wallet, error) {
	if len(seed) == 0 {
		return domain.Wallet{}, fmt.Errorf("%w: empty master seed", domain.ErrSigning)
	}

	entropy := make([]byte, len(seed)+8)
	copy(entropy, seed)
	binary.BigEndian.PutUint64(entropy[len(seed):], index)

	sum := blake3.Sum256(entropy)
	key := ed25519.NewKeyFromSeed(sum[:])

	idx := index
	return domain.Wallet{
		Index: &idx,
		Key:   solana.PrivateKey(key),
	}, nil
}

// Generate creates a random, non-derived wallet.
func Generate() (domain.Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("%w: generate keypair: %v", domain.ErrSigning, err)
	}
	return domain.Wallet{Key: key}, nil
}
