// Package store provides a generic document-store facade over a JSONB-backed
// PostgreSQL table: typed CRUD, exact-match query, ad-hoc update operators, and
// an aggregation-pipeline builder.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantumlayerhq/sbom-enrich/pkg/config"
)

// Pool wraps a PostgreSQL connection pool shared read-only across every
// collection's Store[T] and every task in the process.
type Pool struct {
	db *pgxpool.Pool
}

// NewPool creates a new database connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: pool}, nil
}

// Close closes the database connection pool.
func (p *Pool) Close() {
	if p.db != nil {
		p.db.Close()
	}
}

// Health checks the database connection health.
func (p *Pool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (p *Pool) Stats() *pgxpool.Stat {
	return p.db.Stat()
}

// WithTx executes fn within a transaction, rolling back on error or panic.
func (p *Pool) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EnsureCollection creates the JSONB-backed table for a collection if it does
// not already exist. Every collection shares the same (id, doc, created_at,
// updated_at) shape; callers pass the plain type name as the collection.
func (p *Pool) EnsureCollection(ctx context.Context, collection string) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, quoteIdent(collection))
	if _, err := p.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}

	if collection == "Sbom" {
		if err := p.ensureSbomVersionIndex(ctx, collection); err != nil {
			return err
		}
	}
	return nil
}

// ensureSbomVersionIndex enforces the (purl, version) uniqueness invariant
// (spec §3, §8) at the database level: sbomsvc's nextVersion does a
// read-max-then-insert, so a concurrent ingest of the same purl can race
// past the read and attempt to insert a duplicate version. The unique index
// turns that race into a unique-violation on insert instead of a silent
// duplicate, which the ingest task surfaces as a per-target error.
func (p *Pool) ensureSbomVersionIndex(ctx context.Context, collection string) error {
	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s ((doc->>'purl'), ((doc->>'version')::int))`,
		quoteIdent(collection+"_purl_version_idx"), quoteIdent(collection))
	if _, err := p.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure %s purl/version index: %w", collection, err)
	}
	return nil
}
