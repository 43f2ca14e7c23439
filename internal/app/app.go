// Package app wires configuration into the storage backend and the
// recurrence materializer shared by the server and the one-shot worker.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/recurrence"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
	"github.com/mmynk/splitledger/internal/storage/postgres"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/clock"
)

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ready(ctx context.Context) error
}

// OpenStore opens the backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver, "database", cfg.DBPath)
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver)
		return store, nil
	case config.DriverMemory:
		slog.Warn("Storage initialized in memory; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.DBDriver)
	}
}

// NewMaterializer builds the materializer for store. When cfg.RedisURL is set
// the per-group lock is a Redis lease shared across processes; the returned
// close func releases the Redis client.
func NewMaterializer(ctx context.Context, cfg *config.Config, store storage.Store, clk clock.Clock) (*recurrence.Materializer, func(), error) {
	opts := []recurrence.Option{recurrence.WithConcurrency(cfg.MaterializeConcurrency)}
	closeFn := func() {}

	if cfg.RedisURL != "" {
		locker, client, err := recurrence.NewRedisLockerFromURL(ctx, cfg.RedisURL, recurrence.DefaultLeaseTTL)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, recurrence.WithLocker(locker))
		closeFn = func() { closeRedis(client) }
		slog.Info("Materialization locks backed by Redis")
	}

	return recurrence.NewMaterializer(store, clk, opts...), closeFn, nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Warn("Failed to close redis client", "error", err)
	}
}
