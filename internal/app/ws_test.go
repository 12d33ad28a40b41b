package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubDeliversBroadcastRacingInitialFrame(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, func() any {
			hub.Broadcast(map[string]string{"type": "brief", "source": "remote"})
			return map[string]string{"type": "brief", "source": "snapshot"}
		})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for _, want := range []string{"snapshot", "remote"} {
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s frame: %v", want, err)
		}
		if msg["source"] != want {
			t.Fatalf("source = %q, want %q", msg["source"], want)
		}
	}
}

func TestHubRefusesClientsAfterClose(t *testing.T) {
	hub := NewHub()
	hub.Close()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, func() any {
			called = true
			return nil
		})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed connection")
	}
	if called {
		t.Fatal("initial should not be built for a closed hub")
	}
	if hub.Count() != 0 {
		t.Fatalf("Count = %d", hub.Count())
	}
}
