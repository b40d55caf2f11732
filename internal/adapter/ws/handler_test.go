package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/quorumlabs/quorum/internal/adapter/ws"
)

func newHubServer(hub *ws.Hub) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(hub.HandleWS))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestBroadcastWithNoConnections(t *testing.T) {
	hub := ws.NewHub()

	// Must not panic or block.
	hub.BroadcastEvent(context.Background(), ws.EventSessionStarted, ws.SessionStartedEvent{SessionID: "s"})

	if n := hub.ConnectionCount(); n != 0 {
		t.Fatalf("connections = %d, want 0", n)
	}
}

func TestBroadcastReachesConnectedClient(t *testing.T) {
	hub := ws.NewHub()
	srv := newHubServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	hub.BroadcastEvent(ctx, ws.EventRoundVerified, ws.RoundVerifiedEvent{
		SessionID: "sess-1",
		Round:     0,
		Status:    "pass",
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if msg.Type != ws.EventRoundVerified {
		t.Fatalf("type = %q, want %q", msg.Type, ws.EventRoundVerified)
	}

	var ev ws.RoundVerifiedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.SessionID != "sess-1" || ev.Status != "pass" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDisconnectPrunesConnection(t *testing.T) {
	hub := ws.NewHub()
	srv := newHubServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })
}
