package domain

import (
	"github.com/gagliardetto/solana-go"
)

// Wallet is a signing keypair managed by the fleet.
// Derived wallets carry their derivation index; generated ones (distribution
// wallets) leave Index nil.
type Wallet struct {
	Index *uint64           // derivation index, nil for generated wallets
	Key   solana.PrivateKey // 64-byte ed25519 secret key
}

// Address returns the wallet's public key.
func (w Wallet) Address() solana.PublicKey {
	return w.Key.PublicKey()
}

// IsDerived reports whether the wallet was derived from the master seed.
func (w Wallet) IsDerived() bool {
	return w.Index != nil
}

// WalletRecord is the persisted form of a derived wallet. The secret key is
// never stored; it is re-derived from the master seed and Index.
// Corresponds to the wallets table in PostgreSQL.
type WalletRecord struct {
	Index     uint64 // PRIMARY KEY, derivation index
	Address   string // base58 public key, unique
	CreatedAt int64  // Unix timestamp in milliseconds
}

// WalletBalance pairs a wallet address with its lamport balance.
type WalletBalance struct {
	Index    uint64
	Address  string
	Lamports uint64
}
