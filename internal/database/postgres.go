// Package database provides PostgreSQL and in-memory persistence for annotations and
// content items.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
)

// Store owns the PostgreSQL connection pool shared by the repositories.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and runs the schema migrations.
func NewPostgresStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		pool:   pool,
		logger: logger,
	}

	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return store, nil
}

// migrate creates the necessary database tables if they don't exist.
func (s *Store) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS annotations (
			seq BIGSERIAL UNIQUE,
			id UUID PRIMARY KEY,
			asset_id TEXT NOT NULL,
			x DOUBLE PRECISION NOT NULL CHECK (x >= 0 AND x <= 100),
			y DOUBLE PRECISION NOT NULL CHECK (y >= 0 AND y <= 100),
			text TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			color VARCHAR(16) NOT NULL DEFAULT 'red',
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_annotations_asset ON annotations(asset_id, created_at, seq);

		CREATE TABLE IF NOT EXISTS content_items (
			id UUID PRIMARY KEY,
			client_id TEXT NOT NULL,
			draft JSONB NOT NULL,
			channels TEXT[] NOT NULL,
			status VARCHAR(16) NOT NULL,
			scheduled_at TIMESTAMP WITH TIME ZONE,
			published_at TIMESTAMP WITH TIME ZONE,
			outcomes JSONB NOT NULL DEFAULT '{}',
			metrics JSONB,
			claimed_until TIMESTAMP WITH TIME ZONE,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		ALTER TABLE content_items ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMP WITH TIME ZONE;

		CREATE INDEX IF NOT EXISTS idx_content_items_due ON content_items(status, scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_content_items_client ON content_items(client_id, scheduled_at);
	`

	_, err := s.pool.Exec(ctx, query)
	return err
}

// Annotations returns the annotation repository backed by this store.
func (s *Store) Annotations() AnnotationRepository {
	return &PostgresAnnotationRepository{pool: s.pool, logger: s.logger}
}

// ContentItems returns the content item repository backed by this store.
func (s *Store) ContentItems() ContentItemRepository {
	return &PostgresContentItemRepository{pool: s.pool, logger: s.logger}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
	s.logger.Info("Closed database connection")
}
