package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteBackend(t *testing.T) {
	backend, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "brief.db"), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer backend.Close()
	exerciseBackend(t, backend)
}

func TestSQLiteSharedFileSeesOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brief.db")
	reader, err := OpenSQLite(path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	writer, err := OpenSQLite(path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()

	ctx := t.Context()
	sub, err := reader.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := writer.Save(ctx, "k", Record{Payload: []byte(`{}`), Origin: "other", Revision: "r1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	select {
	case change := <-sub.Changes():
		if change.Origin != "other" || change.Revision != "r1" {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller never reported the other writer")
	}
}
