package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := dialHub(t, h)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.Publish(TrainingFinished, map[string]string{"name": "weather"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if evt.Type != TrainingFinished || !strings.Contains(string(evt.Data), "weather") {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestHubSubscriptionFilter(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := dialHub(t, h)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := conn.WriteJSON(ClientMessage{Type: "subscribe", Topic: TrainingFailed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var c *client
	h.mu.RLock()
	for cl := range h.clients {
		c = cl
	}
	h.mu.RUnlock()
	waitFor(t, func() bool { return !c.wants(TrainingStarted) })

	h.Publish(TrainingStarted, map[string]string{"name": "skipped"})
	h.Publish(TrainingFailed, map[string]string{"name": "kept"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if evt.Type != TrainingFailed {
		t.Fatalf("expected %s, got %s", TrainingFailed, evt.Type)
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := dialHub(t, h)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}
