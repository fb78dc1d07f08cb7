// Package eventhub fans out sessionmgr lifecycle events to connected
// SSE clients. Adapted from cwilson613-specularium's internal/hub.Hub:
// same register/unregister/broadcast channel loop and non-blocking
// per-client send, generalized from a raw []byte/interface{} broadcast
// to the project's typed sessionmgr.Event so it can be wired straight
// into sessionmgr.New as a Publisher, with the JSON encoding of each
// event pushed to the edge (inside ServeHTTP) instead of the center.
package eventhub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"netwalk/internal/logging"
	"netwalk/internal/sessionmgr"
)

// client represents one connected SSE subscriber.
type client struct {
	id     string
	events chan sessionmgr.Event
}

// Hub fans sessionmgr.Event values out to every connected SSE client.
// Implements sessionmgr.Publisher.
type Hub struct {
	logger      *logging.Logger
	clients     map[*client]struct{}
	clientCount atomic.Int64
	register    chan *client
	unregister  chan *client
	broadcast   chan sessionmgr.Event
}

// New returns a Hub. Run must be started in its own goroutine before
// any event is published.
func New(logger *logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan sessionmgr.Event, 256),
	}
}

// Run processes register/unregister/broadcast until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))
			h.logger.Info("sse client connected", logging.F("client_id", c.id), logging.F("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.events)
			}
			h.clientCount.Store(int64(len(h.clients)))
			h.logger.Info("sse client disconnected", logging.F("client_id", c.id), logging.F("total", len(h.clients)))

		case event := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.events <- event:
				default:
					h.logger.Warn("sse client slow, dropping event", logging.F("client_id", c.id))
				}
			}

		case <-done:
			return
		}
	}
}

// Publish broadcasts event to every connected client, implementing
// sessionmgr.Publisher. Never blocks: a full broadcast buffer drops
// the event rather than stall the caller, matching the teacher's
// best-effort fan-out.
func (h *Hub) Publish(event sessionmgr.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("sse broadcast buffer full, dropping event", logging.F("kind", string(event.Kind)))
	}
}

// ClientCount returns the number of connected SSE clients. Safe to
// call from any goroutine, unlike reading h.clients directly.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// ServeHTTP streams sessionmgr events to one SSE client until the
// request context is cancelled or a write fails. A client that falls
// behind is not disconnected; Run drops the events its buffer cannot
// hold.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c := &client{
		id:     fmt.Sprintf("%d", time.Now().UnixNano()),
		events: make(chan sessionmgr.Event, 64),
	}

	h.register <- c
	defer func() { h.unregister <- c }()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("marshal sse event", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
