package webserver

import (
	"sort"
	"sync"

	"racedirector/pkg/caster"
	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
)

// Message types pushed to websocket clients.
const (
	MessageTypeState      = "state"
	MessageTypeConnection = "connection"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Hub fans encoded messages out to every websocket client. Broadcast never
// blocks: a client whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	metrics *metrics.Manager
}

func NewHub(m *metrics.Manager) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		metrics: m,
	}
}

// register adds c and queues the hydrate messages before any later broadcast.
func (h *Hub) register(c *Client, hydrate func() [][]byte) {
	h.mu.Lock()
	h.clients[c.id] = c
	if hydrate != nil {
		for _, payload := range hydrate() {
			c.enqueue(payload)
		}
	}
	h.mu.Unlock()
	h.metrics.AddWebsocketClients(1)
	logging.Debug().Str("client", c.id).Msg("websocket client joined")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, found := h.clients[c.id]
	if found {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if found {
		h.metrics.AddWebsocketClients(-1)
		logging.Debug().Str("client", c.id).Msg("websocket client left")
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishState is an OnSnapshot subscriber.
func (h *Hub) PublishState(st model.State) {
	h.broadcast(MessageTypeState, st)
}

// PublishStatus is an OnStatus subscriber.
func (h *Hub) PublishStatus(status model.ConnectionStatus) {
	h.broadcast(MessageTypeConnection, status)
}

func (h *Hub) broadcast(msgType string, data any) {
	payload, err := caster.Wrap(msgType, data)
	if err != nil {
		logging.Error().Err(err).Str("type", msgType).Msg("encoding websocket message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h.clients[id].enqueue(payload)
	}
}
