package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"map-manager/internal/billing"
)

func TestEventHubFanOut(t *testing.T) {
	hub := NewEventHub()
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	if hub.Subscribers() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", hub.Subscribers())
	}

	hub.OnItemPurchased(billing.SKUFullVersion, false)

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			if e.Type != EventPurchased || e.SKU != billing.SKUFullVersion || e.Time.IsZero() {
				t.Errorf("Unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Error("Expected cancelled channel to be closed")
	}
	if hub.Subscribers() != 1 {
		t.Errorf("Expected 1 subscriber after cancel, got %d", hub.Subscribers())
	}
}

func TestEventHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewEventHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < eventsBufferSize+5; i++ {
		hub.ShowProgress(billing.TaskRequestInventory)
	}
	hub.OnError(billing.TaskPurchaseFullVersion, "boom")

	var last Event
	for i := 0; i < eventsBufferSize; i++ {
		last = <-ch
	}
	if last.Type != EventError || last.Message != "boom" || last.Task != "purchase_full_version" {
		t.Errorf("Expected newest event to survive, got %+v", last)
	}
}

func TestEventHubClose(t *testing.T) {
	hub := NewEventHub()
	ch, cancel := hub.Subscribe()
	hub.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("Expected channel closed by Close")
	}

	late, _ := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Expected subscription after Close to be closed")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Expected no subscribers, got %d", hub.Subscribers())
	}
}

func TestServeEventsChecksOrigin(t *testing.T) {
	env := newTestEnv(t, enabledConfig())
	srv := httptest.NewServer(http.HandlerFunc(env.h.ServeEvents))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("Expected cross-origin handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for cross-origin handshake, got %v", resp)
	}

	header = http.Header{"Origin": []string{srv.URL}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Same-origin Dial: %v", err)
	}
	conn.Close()
}

func TestServeEventsStreamsPurchase(t *testing.T) {
	env := newTestEnv(t, enabledConfig())
	srv := httptest.NewServer(http.HandlerFunc(env.h.ServeEvents))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() Event {
		t.Helper()
		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			t.Fatal(err)
		}
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return e
	}

	first := read()
	if first.Type != EventStatus || first.Status == nil || !first.Status.Available {
		t.Fatalf("Expected initial status event, got %+v", first)
	}

	if err := env.helper.PurchaseFullVersion(); err != nil {
		t.Fatalf("PurchaseFullVersion: %v", err)
	}

	seen := map[string]bool{}
	for !seen[EventPurchased] {
		e := read()
		seen[e.Type] = true
		if e.Type == EventPurchased && e.SKU != billing.SKUFullVersion {
			t.Errorf("Unexpected purchased SKU %q", e.SKU)
		}
	}
	if !seen[EventShowProgress] || !seen[EventDismissProgress] {
		t.Errorf("Expected progress events, saw %v", seen)
	}

	env.hub.Close()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}

func TestServeEventsDisabled(t *testing.T) {
	env := newTestEnv(t, enabledConfig())
	h := New(env.db, env.indexer, nil, env.helper, nil)

	w := httptest.NewRecorder()
	h.ServeEvents(w, httptest.NewRequest(http.MethodGet, "/api/purchases/events", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
