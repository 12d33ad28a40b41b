// Package store persists the serialized brief under a single key and
// reports writes made by other processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Record is one stored brief. Payload is opaque to the backends.
type Record struct {
	Payload   []byte
	Origin    string
	Revision  string
	UpdatedAt time.Time
}

// Change announces that a key was written by origin.
type Change struct {
	Key      string `json:"key"`
	Origin   string `json:"origin"`
	Revision string `json:"revision"`
}

type Backend interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, record Record) error
	// Subscribe starts listening for writes to key. Writes that happen after
	// Subscribe returns are reported on the subscription.
	Subscribe(ctx context.Context, key string) (*Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

type Options struct {
	Kind          string
	SQLitePath    string
	PollInterval  time.Duration
	RedisURL      string
	DatabaseURL   string
	MigrationsDir string
}

// OpenBackend opens the backend named by opts.Kind.
func OpenBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemory(), nil
	case KindSQLite, "":
		return OpenSQLite(opts.SQLitePath, opts.PollInterval)
	case KindRedis:
		return NewRedis(ctx, opts.RedisURL)
	case KindPostgres:
		db, err := OpenPostgresDB(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, db, opts.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		return NewPostgres(db, opts.DatabaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
