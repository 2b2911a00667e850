package websocket

import (
	"context"
	"sync"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/event"
)

// Hub fans session lifecycle events out to the streams attached to the
// revoked session.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan event.Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan event.Event]struct{})}
}

// Attach returns a channel receiving events for sessionID and a detach func.
func (h *Hub) Attach(sessionID string) (<-chan event.Event, func()) {
	ch := make(chan event.Event, 1)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan event.Event]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	detach := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, detach
}

// Handle is a bus Handler. Delivery never blocks: a stream that already has
// a pending notice does not need a second one.
func (h *Hub) Handle(_ context.Context, ev event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.Session.ID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Register subscribes the hub to bus.
func (h *Hub) Register(bus *event.Bus) {
	bus.Subscribe("ws_hub", h.Handle)
}

// Attached reports how many streams are attached to sessionID.
func (h *Hub) Attached(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
