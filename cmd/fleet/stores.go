package main

import (
	"context"
	"fmt"

	"wallet-fleet/internal/config"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/storage"
	badgerstore "wallet-fleet/internal/storage/badger"
	chstore "wallet-fleet/internal/storage/clickhouse"
	"wallet-fleet/internal/storage/memory"
	pgstore "wallet-fleet/internal/storage/postgres"
	redisstore "wallet-fleet/internal/storage/redis"
)

// stores holds the configured backends and how to release them.
type stores struct {
	wallets storage.WalletStore
	ledger  storage.TransferLogStore
	closers []func()
}

// Close releases backends in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openPostgres(ctx context.Context, dsn string) (*pgstore.Pool, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

// openStores creates the wallet index and the transfer ledger.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.wallets = pgstore.NewWalletStore(pool)

	case config.StorageBadger:
		db, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger at %s: %w", cfg.BadgerPath, err)
		}
		st.closers = append(st.closers, func() { closeLogged(ctx, "badger", db.Close) })
		st.wallets = db

	case config.StorageRedis:
		rdb, err := redisstore.NewWalletStore(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		st.closers = append(st.closers, func() { closeLogged(ctx, "redis", rdb.Close) })
		st.wallets = rdb

	default:
		logger.Warn(ctx, "using in-memory wallet index, wallets are lost on exit")
		st.wallets = memory.NewWalletStore()
	}

	switch cfg.Ledger {
	case config.LedgerClickhouse:
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		st.closers = append(st.closers, func() { closeLogged(ctx, "clickhouse", conn.Close) })
		st.ledger = chstore.NewTransferLogStore(conn)

	default:
		st.ledger = memory.NewTransferLogStore()
	}

	return st, nil
}

func closeLogged(ctx context.Context, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn(ctx, "close failed", "backend", name, "error", err)
	}
}
