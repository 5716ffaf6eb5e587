// Package bus provides a non-blocking publish/subscribe bus for agent
// lifecycle and performance events. A slow subscriber never blocks a
// publisher: when a subscriber's buffer is full the event is dropped.
package bus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

var (
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wt_bus_events_published_total",
			Help: "Total events published on the agent event bus",
		},
		[]string{"kind"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wt_bus_events_dropped_total",
			Help: "Total events dropped due to full subscriber buffers",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(eventsPublished)
	prometheus.MustRegister(eventsDropped)
}

// Bus fans events out to subscribers over buffered channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan domain.AgentEvent
	next int
	log  *logrus.Logger
}

// New creates an empty bus.
func New(log *logrus.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan domain.AgentEvent),
		log:  log,
	}
}

// Subscribe registers a subscriber with the given channel buffer and returns
// its receive channel plus a cancel function. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan domain.AgentEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.AgentEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(event domain.AgentEvent) {
	eventsPublished.WithLabelValues(string(event.Kind)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			eventsDropped.WithLabelValues(string(event.Kind)).Inc()
			b.log.WithFields(logrus.Fields{
				"agent_id": event.AgentID,
				"kind":     event.Kind,
			}).Warn("Subscriber buffer full, dropping event")
		}
	}
}
