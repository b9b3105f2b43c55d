// Package backend selects and opens the storage.Store named by the
// configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"expense-ledger/internal/config"
	"expense-ledger/internal/storage"
	"expense-ledger/internal/storage/memory"
	"expense-ledger/internal/storage/postgres"
	"expense-ledger/internal/storage/sqlite"
)

// Open opens the store selected by cfg.Store, runs its migrations and checks
// it answers a ping. The caller owns the returned store and must Close it.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	var (
		store storage.Store
		err   error
	)
	switch cfg.Store {
	case config.StoreSQLite:
		store, err = sqlite.NewDB(cfg.DBPath)
	case config.StorePostgres:
		store, err = postgres.Open(ctx, cfg.DatabaseDSN)
	case config.StoreMemory:
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Store, err)
	}

	ev := log.Info().Str("store", cfg.Store)
	if cfg.Store == config.StoreSQLite {
		ev = ev.Str("path", cfg.DBPath)
	}
	ev.Msg("Store opened")
	return store, nil
}
