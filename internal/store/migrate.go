package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// ApplyMigrations runs every *.up.sql in migrationsDir that is not yet
// recorded in schema_migrations, in file name order.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	return applyMigrations(ctx, db, os.DirFS(migrationsDir))
}

// RevertMigrations runs every recorded migration's *.down.sql, newest first.
func RevertMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	fsys := os.DirFS(migrationsDir)
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	ups, err := listMigrations(fsys, ".up.sql")
	if err != nil {
		return err
	}
	for i := len(ups) - 1; i >= 0; i-- {
		version := ups[i]
		migrated, err := isMigrated(ctx, db, version)
		if err != nil {
			return err
		}
		if !migrated {
			continue
		}
		down := strings.TrimSuffix(version, ".up.sql") + ".down.sql"
		err = runMigration(ctx, db, fsys, down, `DELETE FROM schema_migrations WHERE version=$1`, version)
		if err != nil {
			return err
		}
	}
	return nil
}

func applyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	ups, err := listMigrations(fsys, ".up.sql")
	if err != nil {
		return err
	}
	for _, version := range ups {
		migrated, err := isMigrated(ctx, db, version)
		if err != nil {
			return err
		}
		if migrated {
			continue
		}
		if err := runMigration(ctx, db, fsys, version, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
			return err
		}
	}
	return nil
}

func listMigrations(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// runMigration executes file and the bookkeeping statement in one transaction.
func runMigration(ctx context.Context, db *sql.DB, fsys fs.FS, file, bookkeeping, version string) error {
	contents, err := fs.ReadFile(fsys, path.Clean(file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
