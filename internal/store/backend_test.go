package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// exerciseBackend checks the behaviour every backend shares.
func exerciseBackend(t *testing.T, backend Backend) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const key = "syncbrief_test"
	if _, err := backend.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent key, got %v", err)
	}

	sub, err := backend.Subscribe(ctx, key)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	first := Record{Payload: []byte(`{"title":"A"}`), Origin: "tab-a", Revision: "rev-a"}
	if err := backend.Save(ctx, key, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := backend.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Payload, first.Payload) || loaded.Origin != "tab-a" || loaded.Revision != "rev-a" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Fatal("expected updated time to be recorded")
	}

	second := Record{Payload: []byte(`{"title":"B"}`), Origin: "tab-b", Revision: "rev-b"}
	if err := backend.Save(ctx, key, second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	if loaded, _ := backend.Load(ctx, key); !bytes.Equal(loaded.Payload, second.Payload) {
		t.Fatalf("expected overwrite, got %s", loaded.Payload)
	}

	// Changes may coalesce, but the last one must arrive.
	for {
		select {
		case change := <-sub.Changes():
			if change.Key != key {
				t.Fatalf("change for wrong key: %+v", change)
			}
			if change.Revision == "rev-b" {
				if change.Origin != "tab-b" {
					t.Fatalf("unexpected origin %+v", change)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for change notification")
		}
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestMemoryBackendIsolatesPayloads(t *testing.T) {
	backend := NewMemory()
	ctx := context.Background()
	payload := []byte(`{"title":"A"}`)
	if err := backend.Save(ctx, "k", Record{Payload: payload, Revision: "r"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	payload[2] = 'X'
	loaded, _ := backend.Load(ctx, "k")
	if string(loaded.Payload) != `{"title":"A"}` {
		t.Fatalf("stored payload aliased caller buffer: %s", loaded.Payload)
	}
}

func TestSubscriptionKeepsLatestChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	sub := newSubscription(ctx, func(ctx context.Context, emit func(Change)) error {
		emit(Change{Revision: "1"})
		emit(Change{Revision: "2"})
		emit(Change{Revision: "3"})
		close(release)
		<-ctx.Done()
		return nil
	})
	<-release
	if change := <-sub.Changes(); change.Revision != "3" {
		t.Fatalf("expected latest change, got %+v", change)
	}
	sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Fatal("close must wait for the feed to stop")
	}
	if sub.Err() != nil {
		t.Fatalf("cancelled feed reported %v", sub.Err())
	}
}

func TestOpenBackendRejectsUnknownKind(t *testing.T) {
	if _, err := OpenBackend(context.Background(), Options{Kind: "etcd"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
