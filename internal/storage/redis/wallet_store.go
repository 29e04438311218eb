// Package redis implements the wallet index on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
)

const (
	// walletKeyPrefix namespaces every key written by the store.
	walletKeyPrefix = "fleet:wallets"

	keyNext      = walletKeyPrefix + ":next"       // INCR counter, value = last reserved index + 1
	keyOrder     = walletKeyPrefix + ":order"      // ZSET member=index score=index
	keyByIndex   = walletKeyPrefix + ":by_index"   // HASH index -> created_at|address
	keyByAddress = walletKeyPrefix + ":by_address" // HASH address -> index
)

// WalletStore implements storage.WalletStore using Redis.
type WalletStore struct {
	conn *redis.Client
}

var _ storage.WalletStore = (*WalletStore)(nil)

// NewWalletStore connects to Redis and verifies the connection with a ping.
func NewWalletStore(ctx context.Context, addr, username, password string, db int) (*WalletStore, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &WalletStore{conn: conn}, nil
}

// Close closes the connection.
func (s *WalletStore) Close() error {
	return s.conn.Close()
}

// NextIndex reserves the next derivation index with INCR.
func (s *WalletStore) NextIndex(ctx context.Context) (uint64, error) {
	n, err := s.conn.Incr(ctx, keyNext).Result()
	if err != nil {
		return 0, fmt.Errorf("redis reserve index: %w", err)
	}
	return uint64(n - 1), nil
}

// SetAddress claims the address and index with HSETNX, then adds the index
// to the ordering set.
func (s *WalletStore) SetAddress(ctx context.Context, index uint64, address string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	idx := strconv.FormatUint(index, 10)

	ok, err := s.conn.HSetNX(ctx, keyByAddress, address, idx).Result()
	if err != nil {
		return fmt.Errorf("redis claim address: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}

	value := strconv.FormatInt(time.Now().UnixMilli(), 10) + "|" + address
	ok, err = s.conn.HSetNX(ctx, keyByIndex, idx, value).Result()
	if err != nil || !ok {
		s.conn.HDel(ctx, keyByAddress, address)
		if err != nil {
			return fmt.Errorf("redis claim index: %w", err)
		}
		return storage.ErrDuplicateKey
	}

	if err := s.conn.ZAdd(ctx, keyOrder, redis.Z{Score: float64(index), Member: idx}).Err(); err != nil {
		return fmt.Errorf("redis index wallet: %w", err)
	}
	return s.advanceCounter(ctx, index)
}

// advanceCounter keeps INCR ahead of explicitly written indices.
func (s *WalletStore) advanceCounter(ctx context.Context, index uint64) error {
	cur, err := s.conn.Get(ctx, keyNext).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis read counter: %w", err)
	}
	if index < cur {
		return nil
	}
	if err := s.conn.Set(ctx, keyNext, index+1, 0).Err(); err != nil {
		return fmt.Errorf("redis advance counter: %w", err)
	}
	return nil
}

func decodeRecord(idx, value string) (*domain.WalletRecord, error) {
	index, err := strconv.ParseUint(idx, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet index %q: %w", idx, err)
	}
	created, address, ok := strings.Cut(value, "|")
	if !ok {
		return nil, fmt.Errorf("corrupt wallet entry %q", value)
	}
	ts, err := strconv.ParseInt(created, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet timestamp %q: %w", created, err)
	}
	return &domain.WalletRecord{Index: index, Address: address, CreatedAt: ts}, nil
}

// load fetches records for the given index strings in order.
func (s *WalletStore) load(ctx context.Context, indices []string) ([]*domain.WalletRecord, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	values, err := s.conn.HMGet(ctx, keyByIndex, indices...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load wallets: %w", err)
	}

	result := make([]*domain.WalletRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord(indices[i], str)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// List returns records ordered by index ASC.
func (s *WalletStore) List(ctx context.Context, offset, limit int) ([]*domain.WalletRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	indices, err := s.conn.ZRange(ctx, keyOrder, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list wallets: %w", err)
	}
	return s.load(ctx, indices)
}

// GetByAddresses returns known records among addresses, ordered by index.
func (s *WalletStore) GetByAddresses(ctx context.Context, addresses []string) ([]*domain.WalletRecord, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	raw, err := s.conn.HMGet(ctx, keyByAddress, addresses...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lookup addresses: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	var indices []string
	for _, v := range raw {
		idx, ok := v.(string)
		if !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}

	records, err := s.load(ctx, indices)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

// Count returns the number of stored wallets.
func (s *WalletStore) Count(ctx context.Context) (int, error) {
	n, err := s.conn.ZCard(ctx, keyOrder).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count wallets: %w", err)
	}
	return int(n), nil
}
