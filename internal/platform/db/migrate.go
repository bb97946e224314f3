package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationStore records which migration files have been applied.
type MigrationStore interface {
	Applied(ctx context.Context) (map[string]bool, error)
	Apply(ctx context.Context, name, sql string) error
}

// Migrate applies every *.sql file in fsys that the store has not seen, in
// lexical order, and returns the names applied.
func Migrate(ctx context.Context, fsys fs.FS, store MigrationStore) ([]string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}
	sort.Strings(names)
	done, err := store.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range names {
		if done[name] {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			continue
		}
		if err := store.Apply(ctx, path.Base(name), string(body)); err != nil {
			return applied, fmt.Errorf("platform/db: apply %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// PGMigrationStore tracks migrations in schema_migrations.
type PGMigrationStore struct {
	pool *pgxpool.Pool
}

// NewPGMigrationStore constructs PGMigrationStore.
func NewPGMigrationStore(pool *pgxpool.Pool) *PGMigrationStore {
	return &PGMigrationStore{pool: pool}
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func (s *PGMigrationStore) Applied(ctx context.Context) (map[string]bool, error) {
	if _, err := s.pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// Apply runs sql and records name in one transaction.
func (s *PGMigrationStore) Apply(ctx context.Context, name, sql string) error {
	return WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
		return err
	})
}
