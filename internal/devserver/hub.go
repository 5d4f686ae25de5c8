package devserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/your-username/ehr-console/internal/monitoring"
)

// Frame is one stream event. An empty Event goes out on the default channel.
type Frame struct {
	Event string
	Data  string
}

// Subscriber receives frames from the hub until it unsubscribes
type Subscriber struct {
	id   string
	send chan Frame
}

func (s *Subscriber) Frames() <-chan Frame {
	return s.send
}

type Hub struct {
	// Registered subscribers
	subscribers map[*Subscriber]bool

	// Frames to fan out
	broadcast chan Frame

	register   chan *Subscriber
	unregister chan *Subscriber

	// Closed when Run returns
	done chan struct{}

	mu      sync.RWMutex
	metrics *monitoring.MetricsCollector
}

func NewHub(metrics *monitoring.MetricsCollector) *Hub {
	return &Hub{
		broadcast:   make(chan Frame, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		subscribers: make(map[*Subscriber]bool),
		done:        make(chan struct{}),
		metrics:     metrics,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for sub := range h.subscribers {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			n := len(h.subscribers)
			h.mu.Unlock()
			h.metrics.SetGauge(monitoring.Subscribers, float64(n))
			log.Info().Str("subscriber_id", sub.id).Msg("Stream subscriber connected")

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			n := len(h.subscribers)
			h.mu.Unlock()
			h.metrics.SetGauge(monitoring.Subscribers, float64(n))
			log.Info().Str("subscriber_id", sub.id).Msg("Stream subscriber disconnected")

		case frame := <-h.broadcast:
			h.mu.Lock()
			for sub := range h.subscribers {
				select {
				case sub.send <- frame:
				default:
					// Subscriber's buffer is full, drop it
					log.Warn().Str("subscriber_id", sub.id).Msg("Subscriber send buffer full")
					close(sub.send)
					delete(h.subscribers, sub)
				}
			}
			h.mu.Unlock()
			h.metrics.IncrementCounter(monitoring.PublishedRecords, 1)
		}
	}
}

// Subscribe registers a new subscriber. It blocks until the hub accepts it or ctx ends.
func (h *Hub) Subscribe(ctx context.Context) (*Subscriber, bool) {
	sub := &Subscriber{
		id:   uuid.New().String(),
		send: make(chan Frame, 256),
	}
	select {
	case h.register <- sub:
		return sub, true
	case <-ctx.Done():
		return nil, false
	case <-h.done:
		return nil, false
	}
}

// Unsubscribe removes sub; it is a no-op once the hub has dropped it
func (h *Hub) Unsubscribe(ctx context.Context, sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Publish queues frame for every subscriber
func (h *Hub) Publish(ctx context.Context, frame Frame) {
	select {
	case h.broadcast <- frame:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
