package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

var dialects = map[string]struct {
	dialect goose.Dialect
	dir     string
}{
	"sqlite": {goose.DialectSQLite3, "migrations/sqlite"},
	"pgx":    {goose.DialectPostgres, "migrations/postgres"},
}

func provider(db *sql.DB, driver string) (*goose.Provider, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}

	dir, err := fs.Sub(migrationsFS, d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations directory: %w", err)
	}

	p, err := goose.NewProvider(d.dialect, db, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	p, err := provider(db, driver)
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		slog.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
