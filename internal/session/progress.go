package session

import (
	"sync"
	"time"
)

// Phase names a stage of a run as reported to progress subscribers.
type Phase string

const (
	PhaseMatch  Phase = "match"
	PhaseEnrich Phase = "enrich"
	PhaseDone   Phase = "done"
	PhaseError  Phase = "error"
)

// Event is one progress update.
type Event struct {
	Phase   Phase     `json:"phase"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Hub fans progress events out to subscribers. A subscriber that falls
// behind loses events rather than blocking the run.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	last    *Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The latest event, if any, is delivered
// first. Call the returned func to unsubscribe; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	if h.last != nil {
		ch <- *h.last
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends evt to every subscriber without blocking.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &evt
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Last returns the most recent event.
func (h *Hub) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
