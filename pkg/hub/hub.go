// Package hub fans dashboard updates out to websocket clients over
// channels. Only the hub goroutine touches the client set.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-jellyfish/internal/log"
)

// Message is one websocket frame. Binary frames carry JPEG images, text
// frames carry JSON.
type Message struct {
	Binary bool
	Data   []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name string
	log  *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// Last text message, replayed to new clients so they render the
	// current slots before the next frame arrives
	latest []byte

	count   atomic.Int32
	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		log:        log.Component("hub").With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// Every client is disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		h.running.Store(false)
		h.once.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.latest != nil {
				c.send <- Message{Data: h.latest}
			}
			h.count.Store(int32(len(h.clients)))
			h.log.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.log.Debug("client disconnected", "clients", len(h.clients))

		case msg := <-h.broadcast:
			if !msg.Binary {
				h.latest = msg.Data
			}
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client's buffer is full, they're too slow
					h.drop(c)
					h.log.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

// Broadcast queues a message for all connected clients. It never blocks
// the caller; when the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Data: data})
	return nil
}

// BroadcastBinary broadcasts binary data such as camera frames
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Message{Binary: true, Data: data})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning returns whether the hub loop is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Queued returns the number of broadcasts waiting for the hub loop.
func (h *Hub) Queued() int {
	return len(h.broadcast)
}
