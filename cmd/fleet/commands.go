package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"wallet-fleet/internal/api"
	"wallet-fleet/internal/config"
	"wallet-fleet/internal/dispatch"
	"wallet-fleet/internal/jobs"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/reporting"
	"wallet-fleet/internal/solana"
	"wallet-fleet/internal/storage/migrations"
	"wallet-fleet/internal/wallet"
)

// setup loads configuration and initializes logging.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func newRPCClient(cfg *config.Config) *solana.HTTPClient {
	return solana.NewHTTPClient(cfg.RPCURL,
		solana.WithTimeout(cfg.RPCTimeout),
		solana.WithMaxRetries(cfg.RPCRetries),
		solana.WithCommitment(cfg.Commitment),
	)
}

func newRegistry(cfg *config.Config, st *stores, rpc solana.RPCClient) (*wallet.Registry, error) {
	seed, err := wallet.SeedFromMnemonic(cfg.Mnemonic, cfg.MnemonicPassphrase)
	if err != nil {
		return nil, err
	}
	return wallet.NewRegistry(seed, st.wallets, rpc)
}

// serveCommand runs the HTTP API until interrupted.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Description: "Start the HTTP API with the confirmation channel connected.",
		Usage:       "Serves the fleet HTTP API on FLEET_HTTP_ADDR.",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			rpc := newRPCClient(cfg)
			registry, err := newRegistry(cfg, st, rpc)
			if err != nil {
				return err
			}

			wsCfg := solana.DefaultWSConfig()
			wsCfg.Commitment = cfg.Commitment
			wsCfg.ConfirmTimeout = cfg.ConfirmTimeout
			channel := solana.NewConfirmationChannel(cfg.WSURL, &wsCfg)
			defer channel.Close()

			if err := channel.Connect(ctx); err != nil {
				return fmt.Errorf("connect confirmation channel: %w", err)
			}

			dispatcher := dispatch.New(rpc, channel, dispatch.WithMaxInFlight(cfg.MaxInFlight))
			manager := jobs.NewManager(rpc, dispatcher,
				jobs.WithLedger(st.ledger),
				jobs.WithStrictFailures(cfg.StrictFailures()),
			)

			logger.Info(ctx, "fleet starting",
				"storage", cfg.Storage,
				"ledger", cfg.Ledger,
				"commitment", cfg.Commitment,
				"failure_policy", cfg.FailurePolicy,
			)
			reports := reporting.NewGenerator(st.ledger)
			server := api.NewServer(registry, manager, reports, api.WithCORSOrigins(cfg.CORSOrigins))
			return server.Run(ctx, cfg.HTTPAddr)
		},
	}
}

// migrateCommand applies schema migrations for the configured backends.
func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Description: "Apply embedded schema migrations to PostgreSQL and ClickHouse, as configured.",
		Usage:       "Creates the wallet index and transfer ledger schemas.",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			migrated := false
			if cfg.Storage == config.StoragePostgres {
				pool, err := openPostgres(ctx, cfg.PostgresDSN)
				if err != nil {
					return err
				}
				err = migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return fmt.Errorf("postgres migrations: %w", err)
				}
				logger.Info(ctx, "postgres migrations applied")
				migrated = true
			}

			if cfg.Ledger == config.LedgerClickhouse {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
				if err != nil {
					return fmt.Errorf("clickhouse migrations: %w", err)
				}
				conn.Close()
				logger.Info(ctx, "clickhouse migrations applied")
				migrated = true
			}

			if !migrated {
				logger.Info(ctx, "no persistent backend configured, nothing to migrate")
			}
			return nil
		},
	}
}

// reportCommand prints the ledger of one job.
//
// Usage example:
//
//	fleet report --job-id 3f0c... --format csv
func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Prints the transfer ledger of a job as Markdown or CSV.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "job-id",
				Usage:    "Job identifier returned by funding or collect",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (md, csv)",
				Value: "md",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := reporting.NewGenerator(st.ledger).Generate(ctx, c.String("job-id"))
			if err != nil {
				return err
			}

			switch format := c.String("format"); format {
			case "md":
				fmt.Print(reporting.RenderMarkdown(report))
			case "csv":
				out, err := reporting.RenderCSV(report)
				if err != nil {
					return err
				}
				fmt.Print(out)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
}

func walletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallets",
		Usage: "Create, list and derive fleet wallets.",
		Commands: []*cli.Command{
			createWalletsCommand(),
			listWalletsCommand(),
			deriveWalletCommand(),
			newMnemonicCommand(),
		},
	}
}

// createWalletsCommand derives and records new wallets.
//
// Usage example:
//
//	fleet wallets create --count 10
func createWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Derives the next wallets and records their addresses.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of wallets to create",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			registry, err := newRegistry(cfg, st, nil)
			if err != nil {
				return err
			}

			created, err := registry.Create(ctx, c.Int("count"))
			if err != nil {
				return err
			}
			for _, w := range created {
				fmt.Printf("%d\t%s\n", *w.Index, w.Address())
			}
			return nil
		},
	}
}

// listWalletsCommand prints one page of wallets, optionally with balances.
//
// Usage example:
//
//	fleet wallets list --page 2 --page-size 50 --balances
func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Lists recorded wallets ordered by derivation index.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Usage: "1-based page number", Value: 1},
			&cli.IntFlag{Name: "page-size", Usage: "Wallets per page", Value: 100},
			&cli.BoolFlag{Name: "balances", Usage: "Fetch lamport balances from the RPC node"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			registry, err := newRegistry(cfg, st, newRPCClient(cfg))
			if err != nil {
				return err
			}

			page, pageSize := c.Int("page"), c.Int("page-size")
			if c.Bool("balances") {
				balances, err := registry.ListWithBalances(ctx, page, pageSize)
				if err != nil {
					return err
				}
				for _, b := range balances {
					fmt.Printf("%d\t%s\t%d\n", b.Index, b.Address, b.Lamports)
				}
				return nil
			}

			wallets, err := registry.List(ctx, page, pageSize)
			if err != nil {
				return err
			}
			for _, w := range wallets {
				fmt.Printf("%d\t%s\n", *w.Index, w.Address())
			}
			return nil
		},
	}
}

// deriveWalletCommand prints the address at an index without touching storage.
//
// Usage example:
//
//	fleet wallets derive --index 3
func deriveWalletCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Prints the address derived at an index from the configured mnemonic.",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:     "index",
				Usage:    "Derivation index",
				Required: true,
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			seed, err := wallet.SeedFromMnemonic(cfg.Mnemonic, cfg.MnemonicPassphrase)
			if err != nil {
				return err
			}
			w, err := wallet.Derive(seed, c.Uint64("index"))
			if err != nil {
				return err
			}
			fmt.Println(w.Address())
			return nil
		},
	}
}

func newMnemonicCommand() *cli.Command {
	return &cli.Command{
		Name:  "mnemonic",
		Usage: "Generates a fresh 24-word mnemonic for FLEET_MNEMONIC.",
		Action: func(_ context.Context, _ *cli.Command) error {
			m, err := wallet.NewMnemonic()
			if err != nil {
				return err
			}
			fmt.Println(m)
			return nil
		},
	}
}
