package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the persistent store. Supported drivers are "postgres"
// (lib/pq) and "sqlite3" (used by tests and local development).
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case "postgres":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil

	case "sqlite3":
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		// In-memory sqlite loses its schema when the last connection
		// closes; a single connection keeps it alive for the process.
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil

	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Bootstrap creates the schema if it does not exist. Order items cascade
// with their parent order; nothing else cascades.
func Bootstrap(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Producer)(nil),
		(*Customer)(nil),
		(*Shop)(nil),
		(*Product)(nil),
		(*Order)(nil),
		(*Cart)(nil),
		(*CartItem)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateTable().
		Model((*OrderItem)(nil)).
		IfNotExists().
		ForeignKey(`("order_id") REFERENCES "orders" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("creating table for order items: %w", err)
	}

	return nil
}
