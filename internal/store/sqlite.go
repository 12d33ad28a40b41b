package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS brief_records (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	origin TEXT NOT NULL,
	revision TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

const defaultPollInterval = time.Second

// SQLite stores records in a local database file. Other processes sharing
// the file are noticed by polling the stored revision.
type SQLite struct {
	db   *sql.DB
	poll time.Duration
}

func OpenSQLite(path string, poll time.Duration) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &SQLite{db: db, poll: poll}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (Record, error) {
	var (
		record    Record
		payload   string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, origin, revision, updated_at FROM brief_records WHERE key = ?
	`, key).Scan(&payload, &record.Origin, &record.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", key, err)
	}
	record.Payload = []byte(payload)
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}

func (s *SQLite) Save(ctx context.Context, key string, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brief_records (key, payload, origin, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			origin = excluded.origin,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, key, string(record.Payload), record.Origin, record.Revision, record.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	last, err := s.head(ctx, key)
	if err != nil {
		return nil, err
	}
	return newSubscription(ctx, func(ctx context.Context, emit func(Change)) error {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			current, err := s.head(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if current.Revision != "" && current != last {
				emit(current)
			}
			last = current
		}
	}), nil
}

func (s *SQLite) head(ctx context.Context, key string) (Change, error) {
	change := Change{Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT origin, revision FROM brief_records WHERE key = ?
	`, key).Scan(&change.Origin, &change.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return change, nil
	}
	if err != nil {
		return Change{}, fmt.Errorf("poll %s: %w", key, err)
	}
	return change, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
