package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/storage"
	"github.com/abgdnv/storefront/pkg/bootstrap"
)

// OpenStorage opens the configured session storage. The returned close function releases
// any connections and is safe to call once.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory session storage, state is lost on restart")
		return storage.NewMemoryStorage(), func() {}, nil
	case config.StorageFile:
		fs, err := storage.NewFileStorage(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using file session storage", "dir", cfg.Dir)
		return fs, func() {}, nil
	case config.StoragePostgres:
		if cfg.Database.MigrationsPath != "" {
			if err := bootstrap.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
				return nil, nil, err
			}
			logger.Info("Database migrations applied", "path", cfg.Database.MigrationsPath)
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Successfully connected to the database!")
		return storage.NewPgStorage(dbPool), dbPool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
