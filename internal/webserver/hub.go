package webserver

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zsprackett/tubewatch/internal/events"
)

// frame is an event stamped with its stream id.
type frame struct {
	ID    uint64
	Event events.Event
}

// Hub fans events out to every connected stream client. Ids are assigned
// under mu as frames are queued, so every client channel sees them in
// increasing order.
type Hub struct {
	mu      sync.Mutex
	clients map[chan frame]struct{}
	seq     uint64

	registry  *prometheus.Registry
	connected prometheus.Gauge
	sent      *prometheus.CounterVec
	dropped   prometheus.Counter
}

// NewHub registers the stream metrics on reg. A nil reg gets a fresh
// registry that also carries the Go runtime and process collectors.
func NewHub(reg *prometheus.Registry) (*Hub, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	h := &Hub{
		clients:  make(map[chan frame]struct{}),
		registry: reg,
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tubewatch",
			Name:      "stream_clients",
			Help:      "Connected /events and /ws clients.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "events_broadcast_total",
			Help:      "Events broadcast to stream clients, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tubewatch",
			Name:      "events_dropped_total",
			Help:      "Events not delivered because a client buffer was full.",
		}),
	}
	for _, c := range []prometheus.Collector{h.connected, h.sent, h.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register stream metric: %w", err)
		}
	}
	return h, nil
}

// Broadcast implements events.Broadcaster. It never blocks: a client
// whose buffer is full misses the event.
func (h *Hub) Broadcast(e events.Event) {
	h.sent.WithLabelValues(e.Name).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	f := frame{ID: h.nextID(), Event: e}
	for ch := range h.clients {
		h.offer(ch, f)
	}
}

// send queues e for a single client.
func (h *Hub) send(ch chan frame, e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offer(ch, frame{ID: h.nextID(), Event: e})
}

func (h *Hub) offer(ch chan frame, f frame) {
	select {
	case ch <- f:
	default:
		h.dropped.Inc()
	}
}

// Clients returns the number of connected stream clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// nextID must be called with mu held.
func (h *Hub) nextID() uint64 {
	h.seq++
	return h.seq
}

// subscribe registers a client. The first events, if any, are queued
// ahead of every broadcast the client will see.
func (h *Hub) subscribe(first ...events.Event) chan frame {
	ch := make(chan frame, 16)
	h.mu.Lock()
	for _, e := range first {
		h.offer(ch, frame{ID: h.nextID(), Event: e})
	}
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	h.connected.Inc()
	return ch
}

func (h *Hub) unsubscribe(ch chan frame) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	h.connected.Dec()
}
