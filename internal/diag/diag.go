// Package diag is a diagnostic event bus: it fans out structured
// dispatch events to websocket subscribers, adapted from the bridge's
// UDP discovery broadcaster down to a pure in-process pub/sub (there is
// no network socket here — events are pushed by the translator as Go
// calls; the backend's discovery loop does not publish to it).
package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a single diagnostic occurrence surfaced to subscribers:
// mapping dispatch outcomes, unsupported-bit skips, and per-mapping errors.
type Event struct {
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"` // "dispatch", "skip", "error"
	StreamID uint32    `json:"stream_id,omitempty"`
	CIF0Bit  uint8     `json:"cif0_bit,omitempty"`
	Device   string    `json:"device,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Attr     string    `json:"attr,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Hub fans out Events to every currently-subscribed websocket client.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish broadcasts an event to every subscriber; subscribers that are
// not keeping up have the event dropped for them rather than blocking
// the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	close(ch)
	h.mu.Unlock()
}

// WSHandler streams diagnostic events to a websocket client as JSON text
// frames, one event per frame.
func (h *Hub) WSHandler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		CheckOrigin:       func(*http.Request) bool { return true },
		EnableCompression: false,
	}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = ws.Close() }()

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	for ev := range ch {
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}
