// Package events is an in-memory pub/sub hub with a small replay buffer so
// late subscribers (SSE clients, the terminal monitor) can catch up.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the application.
const (
	RunStarted        = "run.started"
	RunFailure        = "run.failure"
	RunCompleted      = "run.completed"
	WatcherConfigured = "watcher.configured"
	ConfigReloaded    = "config.reloaded"
)

const subscriberBuffer = 128

// Event is one published message. IDs start at 1 and have no gaps.
type Event struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Watch string          `json:"watch,omitempty"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ForWatch reports whether e concerns watch id. Service-wide events concern
// every watch, and an empty id matches everything.
func (e Event) ForWatch(id string) bool {
	return id == "" || e.Watch == "" || e.Watch == id
}

// Hub fans events out to subscribers. Slow subscribers miss events rather
// than block publishers.
type Hub struct {
	now  func() time.Time
	last atomic.Int64

	mu sync.Mutex
	// replay holds the newest len(replay) events; event n lives in slot
	// (n-1) % len(replay).
	replay    []Event
	subs      map[int]chan Event
	nextSubID int
}

// NewHub creates a hub that keeps the last capacity events for replay.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		now:    time.Now,
		replay: make([]Event, capacity),
		subs:   make(map[int]chan Event),
	}
}

// Publish JSON-encodes data and delivers it as a service-wide event.
// Unencodable data is sent as {}.
func (h *Hub) Publish(eventType string, data any) Event {
	return h.PublishWatch(eventType, "", data)
}

// PublishWatch is Publish for an event about one watch.
func (h *Hub) PublishWatch(eventType, watchID string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:    h.last.Load() + 1,
		Type:  eventType,
		Watch: watchID,
		At:    h.now().UTC(),
		Data:  payload,
	}
	h.replay[h.slot(ev.ID)] = ev
	h.last.Store(ev.ID)

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// LastID returns the id of the most recent event, or 0.
func (h *Hub) LastID() int64 {
	return h.last.Load()
}

// SnapshotSince returns the buffered events with ID > lastID, oldest first.
// Events that have already left the buffer are skipped silently.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	newest := h.last.Load()
	first := max(lastID+1, newest-int64(len(h.replay))+1, 1)
	if first > newest {
		return nil
	}
	out := make([]Event, 0, newest-first+1)
	for id := first; id <= newest; id++ {
		out = append(out, h.replay[h.slot(id)])
	}
	return out
}

func (h *Hub) slot(id int64) int {
	return int((id - 1) % int64(len(h.replay)))
}
