package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"map-manager/internal/billing"
	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingEvery  = (eventsPongWait * 9) / 10
	eventsBufferSize = 32
)

// Event types pushed to subscribers.
const (
	EventError           = "error"
	EventItems           = "items"
	EventPurchased       = "purchased"
	EventShowProgress    = "show_progress"
	EventDismissProgress = "dismiss_progress"
	EventStatus          = "status"
)

// The nil CheckOrigin refuses handshakes whose Origin host differs from the
// request Host. Clients sending no Origin are allowed.
var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is one billing callback, or the initial status, as sent on the wire.
type Event struct {
	Type    string          `json:"type"`
	Task    string          `json:"task,omitempty"`
	SKU     string          `json:"sku,omitempty"`
	Active  bool            `json:"active,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  *billing.Status `json:"status,omitempty"`
	Time    time.Time       `json:"time"`
}

// EventHub fans billing listener callbacks out to websocket subscribers.
// Slow subscribers lose their oldest queued events.
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	log    logging.Logger
}

var _ billing.Listener = (*EventHub)(nil)

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		subs: make(map[chan Event]struct{}),
		log:  logging.For("events"),
	}
}

// Subscribe registers a new subscriber. The returned channel is closed by
// cancel or by Close.
func (hub *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventsBufferSize)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		close(ch)
		return ch, func() {}
	}
	hub.subs[ch] = struct{}{}
	metrics.WebsocketSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			if _, ok := hub.subs[ch]; ok {
				delete(hub.subs, ch)
				close(ch)
				metrics.WebsocketSubscribers.Dec()
			}
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (hub *EventHub) Subscribers() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.subs)
}

// Close disconnects every subscriber. Later subscriptions are closed at once.
func (hub *EventHub) Close() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.closed = true
	for ch := range hub.subs {
		delete(hub.subs, ch)
		close(ch)
		metrics.WebsocketSubscribers.Dec()
	}
}

func (hub *EventHub) broadcast(e Event) {
	e.Time = time.Now()
	metrics.WebsocketEventsTotal.WithLabelValues(e.Type).Inc()

	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range hub.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
			hub.log.Debug("dropped %s event for slow subscriber", e.Type)
		}
	}
}

func (hub *EventHub) OnError(task billing.TaskType, msg string) {
	hub.broadcast(Event{Type: EventError, Task: task.String(), Message: msg})
}

func (hub *EventHub) OnGetItems() {
	hub.broadcast(Event{Type: EventItems})
}

func (hub *EventHub) OnItemPurchased(sku string, active bool) {
	hub.broadcast(Event{Type: EventPurchased, SKU: sku, Active: active})
}

func (hub *EventHub) ShowProgress(task billing.TaskType) {
	hub.broadcast(Event{Type: EventShowProgress, Task: task.String()})
}

func (hub *EventHub) DismissProgress(task billing.TaskType) {
	hub.broadcast(Event{Type: EventDismissProgress, Task: task.String()})
}

// ServeEvents upgrades to a websocket and streams billing events, starting
// with the current status. Client messages are ignored.
func (h *Handlers) ServeEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSONError(w, "Event stream disabled", http.StatusNotFound)
		return
	}

	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsPongWait)); err != nil {
		h.log.Debug("websocket set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	status := h.billing.Status(r.Context())
	if err := writeEvent(conn, Event{Type: EventStatus, Status: &status, Time: time.Now()}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(eventsWriteWait))
				return
			}
			if err := writeEvent(conn, e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, e Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(e)
}
