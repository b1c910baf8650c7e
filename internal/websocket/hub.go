package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	clientSendBuffer = 64
	broadcastBuffer  = 256
)

// Client is one connected exam page. Send is never closed; Done is closed
// when the hub drops the client.
type Client struct {
	Send chan []byte
	done chan struct{}
}

// NewClient returns a client with a buffered outbox.
func NewClient() *Client {
	return &Client{
		Send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}
}

// Done is closed once the client is unregistered or the hub stops.
func (c *Client) Done() <-chan struct{} { return c.done }

// Offer queues data without blocking. It reports false when the outbox is
// full or the client is gone.
func (c *Client) Offer(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub fans session snapshots and notices out to every connected page.
// It implements session.Observer.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	clients map[*Client]struct{}
	// last is replayed to pages that connect later.
	mu   sync.Mutex
	last []byte

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBuffer),
		clients:    make(map[*Client]struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

var _ session.Observer = (*Hub)(nil)

// Run serves registrations and broadcasts until ctx is cancelled, then
// releases every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.done)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.mu.Lock()
			last := h.last
			h.mu.Unlock()
			if last != nil {
				c.Offer(last)
			}
			h.log.Debug().Int("clients", len(h.clients)).Msg("Client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.done)
				h.log.Debug().Int("clients", len(h.clients)).Msg("Client disconnected")
			}

		case data := <-h.broadcast:
			for c := range h.clients {
				// Drop message if buffer full
				c.Offer(data)
			}
		}
	}
}

// Register adds a client. It returns false once ctx is done.
func (h *Hub) Register(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	select {
	case h.unregister <- c:
	case <-ctx.Done():
	}
}

// OnSnapshot implements session.Observer.
func (h *Hub) OnSnapshot(s session.Snapshot) {
	data, err := json.Marshal(SnapshotEvent{Event: EventSnapshot, Snapshot: s})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode snapshot")
		return
	}
	h.mu.Lock()
	h.last = data
	h.mu.Unlock()
	h.publish(data)
}

// OnNotice implements session.Observer.
func (h *Hub) OnNotice(n session.Notice) {
	data, err := json.Marshal(NoticeEvent{Event: EventNotice, Notice: n})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode notice")
		return
	}
	h.publish(data)
}

// publish never blocks the session controller.
func (h *Hub) publish(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("Broadcast queue full, dropping message")
	}
}
