package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"wallet-fleet/internal/domain"
)

// SeedFromMnemonic validates a BIP-39 mnemonic and returns its 64-byte seed.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", domain.ErrSigning)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: mnemonic seed: %v", domain.ErrSigning, err)
	}
	return seed, nil
}

// NewMnemonic generates a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}
