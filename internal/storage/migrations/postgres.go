package migrations

import (
	"context"
	"fmt"

	"wallet-fleet/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded wallet schema. Statements are idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	names, contents, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		if _, err := pool.Exec(ctx, contents[name]); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
