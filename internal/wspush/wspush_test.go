package wspush

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ampiolux/lcs-gateway/internal/push"
)

func TestHandlerDeliversBroadcastEvents(t *testing.T) {
	hub := push.New()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine time to register the subscriber.
	deadline := time.Now().Add(time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.Count() != 1 {
		t.Fatalf("hub.Count() = %d, want 1", hub.Count())
	}

	hub.Broadcast(push.Event{Type: push.EventStateChanged, AgentID: "a1", Payload: map[string]int{"brightness": 50}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev push.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != push.EventStateChanged || ev.AgentID != "a1" {
		t.Fatalf("got event %+v, want state_changed/a1", ev)
	}
}
