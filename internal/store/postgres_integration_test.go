package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SYNCBRIEF_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SYNCBRIEF_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func TestPostgresBackend(t *testing.T) {
	dsn := testDatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := OpenPostgresDB(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrations := filepath.Join("..", "..", "db", "migrations")
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	exerciseBackend(t, NewPostgres(db, dsn))
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := testDatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := OpenPostgresDB(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	migrations := filepath.Join("..", "..", "db", "migrations")
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations: %v", err)
	}
	if err := RevertMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("revert migrations: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no recorded migrations after revert, got %d", count)
	}
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}
