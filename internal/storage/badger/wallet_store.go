// Package badger implements the wallet index on an embedded Badger database.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

// Key layout:
//
//	wallet/next           -> be64 next index
//	wallet/idx/<be64>     -> be64 created_at || address
//	wallet/addr/<address> -> be64 index
var (
	keyNext       = []byte("wallet/next")
	prefixIndex   = []byte("wallet/idx/")
	prefixAddress = []byte("wallet/addr/")
)

// WalletStore implements storage.WalletStore using Badger.
type WalletStore struct {
	db *badger.DB
}

var _ storage.WalletStore = (*WalletStore)(nil)

// Open opens (or creates) the wallet index at path.
func Open(path string) (*WalletStore, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a non-persistent store, used by tests and dry runs.
func OpenInMemory() (*WalletStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*WalletStore, error) {
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("wallet index at %s is locked by another process: %w", opts.Dir, err)
		}
		return nil, fmt.Errorf("open wallet index at %s: %w", opts.Dir, err)
	}
	return &WalletStore{db: db}, nil
}

// Close closes the database.
func (s *WalletStore) Close() error {
	return s.db.Close()
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func indexKey(idx uint64) []byte {
	return append(append([]byte{}, prefixIndex...), be64(idx)...)
}

func addressKey(addr string) []byte {
	return append(append([]byte{}, prefixAddress...), addr...)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *WalletStore) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// NextIndex reserves the next derivation index.
func (s *WalletStore) NextIndex(_ context.Context) (uint64, error) {
	var idx uint64
	err := s.update(func(txn *badger.Txn) error {
		idx = 0
		item, err := txn.Get(keyNext)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				idx = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return txn.Set(keyNext, be64(idx+1))
	})
	if err != nil {
		return 0, fmt.Errorf("badger reserve index: %w", err)
	}
	return idx, nil
}

// SetAddress records address for index. Returns ErrDuplicateKey if either is taken.
func (s *WalletStore) SetAddress(_ context.Context, index uint64, address string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	err := s.update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{indexKey(index), addressKey(address)} {
			_, err := txn.Get(key)
			if err == nil {
				return storage.ErrDuplicateKey
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		value := append(be64(uint64(time.Now().UnixMilli())), address...)
		if err := txn.Set(indexKey(index), value); err != nil {
			return err
		}
		if err := txn.Set(addressKey(address), be64(index)); err != nil {
			return err
		}

		// Keep the counter ahead of explicitly written indices.
		next := uint64(0)
		if item, err := txn.Get(keyNext); err == nil {
			_ = item.Value(func(val []byte) error {
				next = binary.BigEndian.Uint64(val)
				return nil
			})
		}
		if index >= next {
			return txn.Set(keyNext, be64(index+1))
		}
		return nil
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return err
	}
	if err != nil {
		return fmt.Errorf("badger set address: %w", err)
	}
	return nil
}

func decodeRecord(key, val []byte) (*domain.WalletRecord, error) {
	idxBytes := bytes.TrimPrefix(key, prefixIndex)
	if len(idxBytes) != 8 || len(val) < 8 {
		return nil, fmt.Errorf("corrupt wallet entry %x", key)
	}
	return &domain.WalletRecord{
		Index:     binary.BigEndian.Uint64(idxBytes),
		CreatedAt: int64(binary.BigEndian.Uint64(val[:8])),
		Address:   string(val[8:]),
	}, nil
}

// List returns records ordered by index ASC. Big-endian keys iterate in index order.
func (s *WalletStore) List(_ context.Context, offset, limit int) ([]*domain.WalletRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	var result []*domain.WalletRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixIndex
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(prefixIndex); it.ValidForPrefix(prefixIndex) && len(result) < limit; it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(item.KeyCopy(nil), val)
			if err != nil {
				return err
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list wallets: %w", err)
	}
	return result, nil
}

// GetByAddresses returns known records among addresses.
func (s *WalletStore) GetByAddresses(_ context.Context, addresses []string) ([]*domain.WalletRecord, error) {
	var result []*domain.WalletRecord
	seen := make(map[uint64]struct{}, len(addresses))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, addr := range addresses {
			item, err := txn.Get(addressKey(addr))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			idx := binary.BigEndian.Uint64(raw)
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}

			recItem, err := txn.Get(indexKey(idx))
			if err != nil {
				return err
			}
			val, err := recItem.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(indexKey(idx), val)
			if err != nil {
				return err
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger get wallets: %w", err)
	}
	return result, nil
}

// Count returns the number of stored wallets.
func (s *WalletStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixIndex
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixIndex); it.ValidForPrefix(prefixIndex); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count wallets: %w", err)
	}
	return n, nil
}
