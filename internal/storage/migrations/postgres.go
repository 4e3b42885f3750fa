package migrations

import (
	"context"
	"fmt"
	"strings"

	"solana-copy-bot/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded PostgreSQL file. Files use
// IF NOT EXISTS and are safe to re-run on each start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, f := range files {
		if strings.TrimSpace(f.sql) == "" {
			continue
		}
		// pgx runs multi-statement text through the simple protocol when no args are given.
		if _, err := pool.Exec(ctx, f.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
