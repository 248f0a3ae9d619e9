// Package push fans lighting-state events out to subscribed WebSocket
// clients. It adapts the gateway's original CAN-frame broadcast hub to a
// typed event payload.
package push

import (
	"sync"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/logging"
	"github.com/ampiolux/lcs-gateway/internal/metrics"
)

// BackpressurePolicy controls what happens when a subscriber's outbound
// buffer is full.
type BackpressurePolicy int

const (
	// PolicyDrop silently drops the event for that one slow subscriber.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick disconnects the slow subscriber outright.
	PolicyKick
)

// EventType names the push-surface event taxonomy.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventAgentsUpdated EventType = "agents_updated"
	EventResponse      EventType = "response"
)

// Event is one message broadcast to every subscriber.
type Event struct {
	Type      EventType   `json:"type"`
	AgentID   string      `json:"agentId,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber is one connected push client's outbound queue.
type Subscriber struct {
	Out       chan Event
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close marks the subscriber closed; idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.Closed) })
}

// Hub fans Events out to every registered Subscriber.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscriber]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New returns an empty Hub with a default buffer size of 32 events per
// subscriber and a drop-on-overflow policy.
func New() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{}), OutBufSize: 32}
}

// NewSubscriber allocates a Subscriber sized for this hub and registers it.
func (h *Hub) NewSubscriber() *Subscriber {
	buf := h.OutBufSize
	if buf <= 0 {
		buf = 32
	}
	sub := &Subscriber{Out: make(chan Event, buf), Closed: make(chan struct{})}
	h.Add(sub)
	return sub
}

// Add registers a subscriber.
func (h *Hub) Add(s *Subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	if n == 1 {
		logging.L().Info("push_clients_first_connected")
	}
}

// Remove unregisters a subscriber; safe to call multiple times.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	_, existed := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	select {
	case <-s.Closed:
	default:
		s.Close()
	}
	if existed && n == 0 {
		logging.L().Info("push_clients_last_disconnected")
	}
}

// Broadcast delivers ev to every subscriber, honoring the backpressure
// policy for any whose outbound buffer is full.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	subs := h.Snapshot()
	for _, s := range subs {
		select {
		case s.Out <- ev:
		default:
			if h.Policy == PolicyKick {
				metrics.IncError("push_kick")
				s.Close()
			} else {
				metrics.IncError("push_drop")
			}
		}
	}
}

// Snapshot returns a point-in-time copy of the subscriber set.
func (h *Hub) Snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Count reports the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
