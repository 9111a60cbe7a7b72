// Package hub fans backend events out to connected websocket clients.
// Each client carries its own topic subscription set; events are delivered
// only to clients subscribed to the event's topic, while control frames go
// to everyone.
package hub

import (
	"sync"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// Hub maintains the set of active clients and routes events to them.
type Hub struct {
	name string

	clients map[*Client]bool

	broadcast  chan *protocol.Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// New creates a new Hub.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *protocol.Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. Call it in a goroutine; it returns after
// Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("client disconnected", "hub", h.name, "clients", count)

		case msg := <-h.broadcast:
			data, err := msg.Bytes()
			if err != nil {
				log.Warn("unencodable message dropped", "hub", h.name, "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if msg.Type == protocol.TypeEvent && !client.subscribedTo(msg.Topic) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, drop the slow client.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop terminates the run loop and disconnects every client. Safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues a message for delivery to subscribed clients.
func (h *Hub) Publish(msg *protocol.Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("broadcast channel full, dropping message", "hub", h.name, "topic", msg.Topic)
	}
}

// PublishEvent builds and queues an event on the given topic.
func (h *Hub) PublishEvent(topic string, payload interface{}) error {
	msg, err := protocol.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	h.Publish(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
