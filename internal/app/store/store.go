// Package store opens the persistence backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/taskboard/internal/app/migrate"
	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/internal/repository/memory"
	"github.com/splax/taskboard/internal/repository/mongodb"
	"github.com/splax/taskboard/internal/repository/postgres"
	"github.com/splax/taskboard/pkg/config"
)

// Open connects to the configured store. Postgres schemas are migrated before
// the store is returned; mongo indexes are created on connect.
func Open(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return openPostgres(ctx, cfg, log)
	case config.StoreDriverMongo:
		repo, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close(context.Background())
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		log.Info("store ready", "driver", cfg.StoreDriver, "database", cfg.MongoDatabase)
		return repo, nil
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	if err := runner.Ensure(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("store ready", "driver", cfg.StoreDriver)
	return postgres.New(pool), nil
}
