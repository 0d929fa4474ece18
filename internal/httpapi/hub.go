package httpapi

import (
	"sync"
	"sync/atomic"

	"github.com/cyclopcam/logs"

	"video-detector/internal/events"
	"video-detector/internal/metrics"
)

const clientBuffer = 256

// client is one websocket subscriber. send is drained by its write pump.
type client struct {
	send    chan events.Event
	dropped atomic.Bool
}

// Hub fans published events out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     logs.Log
	metrics *metrics.Metrics
}

// NewHub creates an empty hub.
func NewHub(log logs.Log, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     log,
		metrics: m,
	}
}

// Register adds a client
func (h *Hub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	if h.metrics != nil {
		h.metrics.EventClients.Add(1)
	}
	if h.log != nil {
		h.log.Debugf("Event client registered (total: %v)", len(h.clients))
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.EventClients.Add(-1)
	}
}

// Broadcast queues event for every client without blocking. A client whose
// buffer is full misses the event and is expected to catch up from
// /api/events.
func (h *Hub) Broadcast(event events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			if !c.dropped.Swap(true) && h.log != nil {
				h.log.Warnf("Event client is slow, dropping events from seq %v", event.Seq)
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
