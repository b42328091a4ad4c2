package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Change is the broadcast payload sent after every event-log mutation.
// Subscribers re-query the log for details; the log is the source of truth.
type Change struct {
	Op      string    `json:"op"` // "append" | "remove"
	EventID int64     `json:"event_id"`
	At      time.Time `json:"at"`
}

// Hub fans change signals out to live subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the signal and catches up by
// re-polling.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]chan Change
	nextID int64
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[int64]chan Change),
		log:  log,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (h *Hub) Subscribe() (int64, <-chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Change, 8)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers a change to every subscriber, dropping it for any whose
// buffer is full.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- c:
		default:
			h.log.Debug().Int64("subscriber", id).Msg("dropped change notification")
		}
	}
}

// SubscriberCount reports how many subscribers are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
