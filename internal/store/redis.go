package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the payload under the key itself, metadata in "<key>:meta",
// and announces writes on the "<key>:changes" channel.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func metaKey(key string) string    { return key + ":meta" }
func changesKey(key string) string { return key + ":changes" }

func (r *Redis) Load(ctx context.Context, key string) (Record, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", key, err)
	}

	meta, err := r.client.HGetAll(ctx, metaKey(key)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load %s meta: %w", key, err)
	}
	record := Record{
		Payload:  payload,
		Origin:   meta["origin"],
		Revision: meta["revision"],
	}
	if ms, err := strconv.ParseInt(meta["updated_at"], 10, 64); err == nil {
		record.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return record, nil
}

func (r *Redis) Save(ctx context.Context, key string, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, record.Payload, 0)
		pipe.HSet(ctx, metaKey(key), map[string]any{
			"origin":     record.Origin,
			"revision":   record.Revision,
			"updated_at": strconv.FormatInt(record.UpdatedAt.UnixMilli(), 10),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	message, err := json.Marshal(Change{Key: key, Origin: record.Origin, Revision: record.Revision})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.client.Publish(ctx, changesKey(key), message).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, key string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, changesKey(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	return newSubscription(ctx, func(ctx context.Context, emit func(Change)) error {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case message, ok := <-messages:
				if !ok {
					return errors.New("redis change channel closed")
				}
				var change Change
				if err := json.Unmarshal([]byte(message.Payload), &change); err != nil {
					slog.Warn("ignoring malformed change notice", "channel", message.Channel, "err", err)
					continue
				}
				if change.Key != key {
					continue
				}
				emit(change)
			}
		}
	}), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
