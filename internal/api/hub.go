package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"guardian/internal/guardian"
)

// subscriberBuffer bounds each subscriber's backlog. A slow client that
// falls this far behind starts losing events rather than stalling the
// broadcast loop.
const subscriberBuffer = 32

// sseKeepaliveInterval is how often idle SSE connections get a ping so
// proxies do not drop them.
const sseKeepaliveInterval = 10 * time.Second

// Hub fans the guardian's event stream out to every connected client,
// SSE and WebSocket alike. Events arrive on a single channel owned by
// the broadcast loop; each subscriber gets its own buffered channel.
type Hub struct {
	events <-chan guardian.Event

	mu          sync.Mutex
	subscribers map[int64]chan guardian.Event
	nextID      int64
}

// NewHub creates a hub reading from the given event channel. Call Run to
// start distribution.
func NewHub(events <-chan guardian.Event) *Hub {
	return &Hub{
		events:      events,
		subscribers: make(map[int64]chan guardian.Event),
	}
}

// Run distributes events until ctx is cancelled or the event channel
// closes. Intended to run as a dedicated goroutine.
func (h *Hub) Run(ctx context.Context) {
	slog.Info("Event broadcast loop started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Event broadcast loop shutting down")
			return
		case e, ok := <-h.events:
			if !ok {
				slog.Info("Event channel closed, broadcast loop shutting down")
				return
			}
			h.broadcast(e)
		}
	}
}

func (h *Hub) broadcast(e guardian.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			slog.Warn("Subscriber backlog full, dropping event",
				"subscriber_id", id, "type", e.Type)
		}
	}
}

// Subscribe registers a new event consumer. The returned channel is
// closed by Unsubscribe.
func (h *Hub) Subscribe() (int64, <-chan guardian.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan guardian.Event, subscriberBuffer)
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// HandleStream serves the SSE event stream.
func (h *Hub) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, events := h.Subscribe()
	defer h.Unsubscribe(id)
	slog.Info("SSE stream connected", "subscriber_id", id, "ip", r.RemoteAddr)

	if err := writeSSE(w, "connected", fmt.Sprintf(`{"subscriber_id":%d}`, id)); err != nil {
		slog.Warn("Failed to write SSE connected event", "error", err)
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("SSE stream disconnected", "subscriber_id", id)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				slog.Warn("Failed to marshal event", "error", err, "type", e.Type)
				continue
			}
			if err := writeSSE(w, "message", string(data)); err != nil {
				slog.Warn("Failed to write SSE message", "error", err, "subscriber_id", id)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("Failed to write SSE keepalive", "error", err, "subscriber_id", id)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
