// Package dbconn owns pgxpool lifecycle and a DDL policy knob. Full schema
// migration tooling is out of scope; this is the minimal "apply or check the
// one schema we own" policy, talking to Postgres directly via pgx.
package dbconn

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerops/platform/internal/platform/config"
)

//go:embed schema.sql
var schemaSQL string

// Open connects a pgxpool.Pool and applies the configured DDL policy.
func Open(ctx context.Context, dsn string, policy config.DDLPolicy) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbconn: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbconn: ping: %w", err)
	}

	switch policy {
	case config.DDLNone:
		// Caller manages schema out of band.
	case config.DDLValidate:
		if err := validate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	case config.DDLCreateDrop:
		if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS journal_entries, accounts, transfer_records CASCADE`); err != nil {
			pool.Close()
			return nil, fmt.Errorf("dbconn: drop: %w", err)
		}
		fallthrough
	case config.DDLCreate, config.DDLUpdate, "":
		if _, err := pool.Exec(ctx, schemaSQL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("dbconn: apply schema: %w", err)
		}
	default:
		pool.Close()
		return nil, fmt.Errorf("dbconn: unknown DDL policy %q", policy)
	}

	return pool, nil
}

func validate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range []string{"accounts", "journal_entries", "transfer_records"} {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists); err != nil {
			return fmt.Errorf("dbconn: validate %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("dbconn: validate: table %q is missing", table)
		}
	}
	return nil
}
