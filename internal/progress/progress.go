// Package progress carries the {current, maximum, stage} events every
// long-running operation emits (upstream batch
// fetch, store reindex, content download) out to whatever is watching —
// typically the WebSocket hub wired into internal/adminapi.
package progress

import "sync"

// Event is one progress notification for a running operation. Stage is a
// short human string ("fetch-batch", "reindex", "download") rather than a
// closed enum, since distinct subsystems (upstream, store, content) each
// contribute their own stage vocabulary.
type Event struct {
	OperationID string
	Current     int
	Maximum     int
	Stage       string
}

// Func receives Events; nil is a valid no-op listener. A panicking listener
// must never escape into the emitting subsystem.
type Func func(Event)

// Emit recovers around fn so a misbehaving progress listener cannot take
// down the operation it is merely observing.
func Emit(fn Func, ev Event) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(ev)
}

// Hub fans events out to any number of subscribers, each on its own
// buffered channel.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]bool)}
}

// Subscribe registers a new listener channel; callers must call the
// returned cancel func to unregister and drain the channel.
func (h *Hub) Subscribe(buffer int) (ch chan Event, cancel func()) {
	ch = make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Broadcast fans ev out to every current subscriber; a full subscriber
// channel drops the event rather than blocking the emitting operation.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Listener returns a Func bound to this hub's Broadcast, for passing into
// an operation that expects a plain progress.Func.
func (h *Hub) Listener(operationID string) Func {
	return func(ev Event) {
		ev.OperationID = operationID
		h.Broadcast(ev)
	}
}
