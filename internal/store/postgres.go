package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// notifyChannel carries {key, origin, revision} only. Postgres caps NOTIFY
// payloads at 8000 bytes, so listeners reload the record themselves.
const notifyChannel = "brief_changes"

// OpenPostgresDB opens a small pool: the brief is a single row, but the
// change listener and request handlers run concurrently.
func OpenPostgresDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type Postgres struct {
	db          *sql.DB
	databaseURL string
}

// NewPostgres wraps an opened pool. databaseURL is used to open the
// dedicated LISTEN connection for each subscription.
func NewPostgres(db *sql.DB, databaseURL string) *Postgres {
	return &Postgres{db: db, databaseURL: databaseURL}
}

func (s *Postgres) Load(ctx context.Context, key string) (Record, error) {
	var (
		record  Record
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, origin, revision, updated_at FROM brief_records WHERE key = $1
	`, key).Scan(&payload, &record.Origin, &record.Revision, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", key, err)
	}
	record.Payload = []byte(payload)
	return record, nil
}

func (s *Postgres) Save(ctx context.Context, key string, record Record) error {
	notice, err := json.Marshal(Change{Key: key, Origin: record.Origin, Revision: record.Revision})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO brief_records (key, payload, origin, revision, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			origin = EXCLUDED.origin,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at
	`, key, string(record.Payload), record.Origin, record.Revision); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(notice)); err != nil {
		return fmt.Errorf("notify %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", key, err)
	}
	return nil
}

func (s *Postgres) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	return newSubscription(ctx, func(ctx context.Context, emit func(Change)) error {
		defer conn.Close(context.Background())
		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("wait for notification: %w", err)
			}
			var change Change
			if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
				slog.Warn("ignoring malformed change notice", "channel", notification.Channel, "err", err)
				continue
			}
			if change.Key == key {
				emit(change)
			}
		}
	}), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
