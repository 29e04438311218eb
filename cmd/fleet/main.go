// Command fleet manages a fleet of derived Solana wallets and moves SOL in
// bulk between them.
//
// Usage:
//
//	fleet serve
//	fleet migrate
//	fleet wallets create --count 10
//	fleet wallets list --page 1 --page-size 50
//	fleet wallets derive --index 3
//	fleet wallets mnemonic
//	fleet report --job-id <id> --format csv
//
// Configuration is read from FLEET_* environment variables and an optional .env file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fleet:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "fleet",
		Description:           "Manage a fleet of Solana wallets: fund them from one distribution wallet and collect from them in bulk.",
		Usage:                 "fleet [command] [flags]",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			walletsCommand(),
			reportCommand(),
		},
	}
}
