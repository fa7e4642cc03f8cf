package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded SQL file
type Migration struct {
	Name      string
	SQL       string
	AppliedAt *time.Time
}

// Migrations returns the embedded migrations in filename order
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFiles, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Migrator applies embedded migrations and records them in schema_migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(db *sql.DB) (*Migrator, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name        TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		applied[name] = at
	}
	return applied, rows.Err()
}

// Status lists every migration with its applied time, if any
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	for i, mig := range m.migrations {
		out[i] = mig
		if at, ok := applied[mig.Name]; ok {
			at := at
			out[i].AppliedAt = &at
		}
	}
	return out, nil
}

// Up applies pending migrations, each in its own transaction, and returns
// the names applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	tm := NewTxManager(m.db)
	var done []string
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Name]; ok {
			continue
		}

		err := tm.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, mig.Name)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migration %s failed: %w", mig.Name, err)
		}
		done = append(done, mig.Name)
	}

	return done, nil
}

// SeedTenants upserts the configured tenants so foreign keys resolve
func SeedTenants(ctx context.Context, db DBTX, tenants map[string]string) error {
	slugs := make([]string, 0, len(tenants))
	for slug := range tenants {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO tenants (slug, name) VALUES ($1, $2)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name`,
			slug, tenants[slug])
		if err != nil {
			return fmt.Errorf("failed to seed tenant %s: %w", slug, ConvertError(err))
		}
	}
	return nil
}
