package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/davebekker/signal-budget-bot/internal/config"
	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/storage/bolt"
	"github.com/davebekker/signal-budget-bot/internal/storage/jsonfile"
	"github.com/davebekker/signal-budget-bot/internal/storage/postgres"
	"github.com/davebekker/signal-budget-bot/internal/storage/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
)

// openStore opens the state store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg config.StoreConfig) (interfaces.StateStore, error) {
	switch cfg.Driver {
	case config.DriverJSON:
		store, err := jsonfile.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverBolt:
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres, config.DriverPgx:
		db, err := sql.Open(cfg.Driver, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		store := postgres.NewPostgresStateStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
