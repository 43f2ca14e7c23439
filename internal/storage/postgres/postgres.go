// Package postgres opens a Postgres-backed storage.Store on a pgx pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlstore"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store is a sqlstore.Store that also owns the pgx pool under it.
type Store struct {
	*sqlstore.Store
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string and
// applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	return &Store{Store: sqlstore.New(db, sqlstore.Postgres), pool: pool}, nil
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the database handle and the pool.
func (s *Store) Close() error {
	err := s.Store.Close()
	s.pool.Close()
	return err
}
