// Package broadcast fans successfully ingested updates out to
// in-process subscribers. Delivery is best-effort: a subscriber that
// cannot keep up loses messages, never blocks the pipeline.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
	"github.com/snekkenull/AISight-sub001/internal/metrics"
)

const subscriberBuffer = 64

// Message is the fan-out envelope. Type is either an update type
// ("position", "staticData") or a diagnostic kind.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber receives messages on C until its cancel func runs. Bounds,
// when set, restrict position updates to that area; other message types
// are always delivered.
type Subscriber struct {
	ID     uuid.UUID
	Bounds *model.BoundingBox
	C      <-chan Message

	ch chan Message
}

type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "broadcast"),
		subs:   make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a subscriber, optionally scoped to a bounding
// box. The returned cancel func unregisters it and closes its channel;
// calling it more than once is safe.
func (h *Hub) Subscribe(bounds *model.BoundingBox) (*Subscriber, func()) {
	ch := make(chan Message, subscriberBuffer)
	sub := &Subscriber{
		ID:     uuid.New(),
		Bounds: bounds,
		C:      ch,
		ch:     ch,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(total))
	h.logger.Debug("subscriber added", "id", sub.ID.String(), "total", total)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub.ID]; ok {
				delete(h.subs, sub.ID)
				close(ch)
			}
			remaining := len(h.subs)
			h.mu.Unlock()

			metrics.BroadcastSubscribers.Set(float64(remaining))
			h.logger.Debug("subscriber removed", "id", sub.ID.String(), "total", remaining)
		})
	}
	return sub, cancel
}

// BroadcastAll delivers to every subscriber regardless of bounds.
func (h *Hub) BroadcastAll(typ string, data interface{}) {
	h.deliver(Message{Type: typ, Data: data, Timestamp: time.Now().UTC()}, nil)
}

// BroadcastFiltered delivers a position-bearing message only to
// subscribers whose bounds contain the coordinates. Subscribers with no
// bounds receive everything.
func (h *Hub) BroadcastFiltered(typ string, data interface{}, lat, lon float64) {
	h.deliver(Message{Type: typ, Data: data, Timestamp: time.Now().UTC()}, func(sub *Subscriber) bool {
		return sub.Bounds == nil || sub.Bounds.Contains(lat, lon)
	})
}

func (h *Hub) deliver(msg Message, accept func(*Subscriber) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if accept != nil && !accept(sub) {
			continue
		}
		select {
		case sub.ch <- msg:
			metrics.BroadcastDelivered.WithLabelValues(msg.Type).Inc()
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.mu.Unlock()
	metrics.BroadcastSubscribers.Set(0)
}
